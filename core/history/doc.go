// Package history keeps a durable ledger of finished synchronization runs.
//
// The ledger lives in its own MySQL database, separate from the clinical
// Store, and is strictly optional: when the connection cannot be
// established at startup the service runs without it, and a failed write
// never fails the run it was recording.
package history
