// Package pipe provides duplex named channels: byte streams addressable by a
// path that can be handed to an external process as an input, output, or
// progress target.
//
// On POSIX systems a channel is a FIFO node under the temp directory named
// "<random>.pipe". On Windows it is a named pipe "\\.\pipe\<random>" whose
// server instances are rotated on every accept. Callers treat the path as
// opaque and only pass it along through Channel.Path.
//
// A Channel is listened on exactly once. The returned Stream is owned by the
// caller; reads after the peer has gone away report io.EOF.
package pipe
