// Package ffmpeg assembles and runs ffmpeg invocations.
//
// A Builder accumulates the argument vector in call order. Declaring an input
// or output (file, in-memory buffer, or named channel) returns a
// StreamBuilder whose modifiers (Format, CodecAudio, CodecVideo, Arg) land
// in front of that stream's token, where ffmpeg expects them. Done returns
// to the Builder. Using a builder value out of turn records a
// faults.ErrStateViolation that Start reports.
//
//	b := ffmpeg.New(bin)
//	b.InputFile("in.flv").Format("flv").Done().
//		OutputFile("out.webm").CodecVideo("libvpx-vp9").Done().
//		WithProgress()
//	cmd, err := b.Start()
//
// Start spawns the process and returns a Command that owns it. A Command is
// always terminated when it is closed, and a cleanup kills the process if the
// handle is dropped without being closed.
package ffmpeg
