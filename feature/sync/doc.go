// Package sync reconciles Source appointments against Store examination
// rows for one day at a time.
//
// The Source is the system of record: after a run, the Store's examination
// rows for the target date mirror the active appointments. Matching is by
// fingerprint (date, patient, examiner, room, examination type); rows whose
// fingerprint matches are left in place with only time and notes updated,
// rows nothing accounts for anymore are deleted, but only when the target
// date lies strictly in the future, and never in single-patient runs.
//
// The package also carries the HTTP surface for triggering runs, polling
// task state, cancelling runs and editing the automatic schedule.
package sync
