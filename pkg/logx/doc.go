// Package logx is a small structured logging facade over zerolog.
//
// It exists so services receive a Logger value (cheap to copy, safe zero
// value) instead of a concrete zerolog.Logger, and so sinks/levels can be
// swapped at runtime via Service.Apply() without re-wiring components.
package logx
