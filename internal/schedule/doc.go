// Package schedule provides the deferral primitives every pipeline component
// is built on: "run before the next frame", "run after a delay", and a
// clock.
//
// Loop is the production implementation: a single goroutine that runs
// frame callbacks on a fixed tick, timer callbacks as they expire, and any
// work a host posts onto it. Manual is a deterministic fake driven by a
// virtual clock, used by tests across the module.
//
// Both implementations run each callback in isolation: a panic is
// recovered and logged and the remaining callbacks still run.
package schedule
