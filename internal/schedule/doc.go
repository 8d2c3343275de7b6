// Package schedule computes daily upload slots and reconciles each channel's
// queued-job backlog against its daily target.
//
// Slot generation is randomized (jittered spacing, collision probing); the
// planner only ever tops up the deficit between the backlog and the target,
// and the trigger service runs a reconciliation pass hourly.
package schedule
