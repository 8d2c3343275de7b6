// Package admin serves the local operations API: health, queue stats,
// per-channel reschedule and quota changes, and the workers on/off switch.
package admin
