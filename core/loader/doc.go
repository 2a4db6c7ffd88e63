// Package loader wires application features into the HTTP server.
//
// A feature bundles its routes behind the Feature interface; the manager
// mounts all registered features in order at startup. This keeps cmd/start
// free of per-feature knowledge beyond construction.
package loader
