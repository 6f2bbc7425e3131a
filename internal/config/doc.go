// Package config loads, normalizes, and validates ffpipe configuration data.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, and honours environment fallbacks such as FFPIPE_FFMPEG. The
// Config type gathers every knob the CLI needs: where ffmpeg lives and where
// it is downloaded from, how progress is queued, where run history is kept,
// and how logs are written.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical log formats, and clear validation errors.
package config
