// Package orchestrator drives job execution: it polls the queue on a fixed
// cadence, claims as many ready jobs as the concurrency cap allows, and runs
// each on its own goroutine through a type-registered processor.
package orchestrator
