// Package main hosts the ffpipe CLI entrypoint and command graph.
//
// The Cobra-based command tree turns terminal invocations into ffmpeg runs
// with live progress, probes inputs, locates or downloads the ffmpeg binary, inspects run
// history, and scaffolds configuration. It centralizes configuration
// resolution and structured logging setup so subcommands can focus on user
// experience instead of wiring.
//
// Keep this package lean: add functionality to the internal packages first,
// then surface it through dedicated commands or flags here.
package main
