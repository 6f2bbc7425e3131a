// Package faults defines the error markers shared by the pipe, process, and
// installer layers.
//
// Errors are built with Wrap so that a marker (ErrIO, ErrSpawnFailed, ...) and
// the underlying cause both stay reachable through errors.Is while the message
// carries component and operation context. The CLI maps markers onto exit
// codes through ExitCode.
package faults
