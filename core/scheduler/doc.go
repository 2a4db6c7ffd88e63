// Package scheduler runs the periodic synchronization of the current day.
//
// A single goroutine owns all schedule state. It wakes every few seconds,
// checks whether the next planned run is due and whether the wall clock is
// inside the configured weekday/time window, and triggers the run function
// when both hold. Configuration updates, status queries and shutdown all
// travel over channels into that goroutine, so no lock protects the state.
//
// A failed run never stops the loop; the scheduler backs off for a minute
// and keeps going. Stopping the scheduler does not abort a run that is
// already in flight.
package scheduler
