// Package jobmanager provides job control for child processes launched by an
// interactive shell.
//
// A Table holds a fixed number of Job slots. A Manager owns the Table and the
// current foreground process, launches programs into free slots, and applies
// the fg, bg, kill and quit job control commands.
//
// Asynchronous notifications (child state changes, suspend and interrupt
// requests from the terminal) are received by a relay goroutine started with
// Manager.Start. The relay funnels every notification through the same mutex
// that guards the Table, so job state transitions never race with commands.
package jobmanager
