// Package middleware groups the Fiber middlewares used by the sync API:
// request id tagging (rayid) and API-key authentication (auth).
package middleware
