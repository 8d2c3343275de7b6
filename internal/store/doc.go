// Package store provides the SQLite persistence layer: channels, the durable
// job queue, produced videos and a small settings table.
//
// The jobs table is the single source of truth for pending work. Claiming is
// transactional so concurrent pollers never pick up the same job twice.
package store
