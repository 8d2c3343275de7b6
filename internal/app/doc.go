// Package app assembles the services (store, scheduler, orchestrator,
// pipeline, notifier, admin API) and runs their lifecycle.
package app
