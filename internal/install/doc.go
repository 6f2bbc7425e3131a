// Package install downloads a static ffmpeg build into an install directory.
//
// The release assets are single gzip-compressed binaries. Installer streams
// the asset to disk, decompresses it, and renames the result into place so a
// concurrent Locate never sees a partial binary. A file lock in the install
// directory serializes installers across processes. Progress is reported as
// best-effort Events.
package install
