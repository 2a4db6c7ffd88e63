// Package tasks tracks synchronization runs as addressable tasks.
//
// Every triggered run gets a task id that clients poll for progress. The
// registry enforces at most one in-flight run per target date (and per
// date/patient pair for single-patient runs); a second trigger is rejected,
// never queued. Finished tasks stay queryable for a retention period and are
// then swept away.
package tasks
