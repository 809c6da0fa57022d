// Package livemetrics turns a snapshot of attendee feedback for one event
// into real-time metrics: a staged timeline with a position gauge, a crowd
// movement classification, and a robust line wait-time estimate.
//
// Every computation is a pure function of its inputs and an explicitly
// passed "now". Callers capture now once per evaluation so the rolling
// windows stay consistent with each other; Engine does this and adds
// debug-level tracing of the intermediate quantities. Nothing in this
// package performs I/O or keeps state between calls, so evaluations for
// different events can run concurrently without coordination. Inputs are
// read, never modified; callers must not mutate them during a call.
package livemetrics
