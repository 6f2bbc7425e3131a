package progress

import (
	"bytes"
	"strings"
)

const statusKey = "progress="

// framer splits a byte stream into progress records. A record ends with the
// line carrying the progress key.
type framer struct {
	buf bytes.Buffer
}

// push appends chunk and returns every record completed by it.
func (f *framer) push(chunk []byte) []string {
	f.buf.Write(chunk)

	var records []string
	data := f.buf.Bytes()
	start := 0
	for pos := 0; pos < len(data); {
		nl := bytes.IndexByte(data[pos:], '\n')
		if nl < 0 {
			// ffmpeg always ends a line, but a trailing end marker is final
			// either way.
			if strings.TrimSpace(string(data[pos:])) == statusKey+"end" {
				records = append(records, string(data[start:]))
				start = len(data)
			}
			break
		}
		line := data[pos : pos+nl]
		pos += nl + 1
		if bytes.HasPrefix(bytes.TrimSpace(line), []byte(statusKey)) {
			records = append(records, string(data[start:pos]))
			start = pos
		}
	}

	rest := append([]byte(nil), data[start:]...)
	f.buf.Reset()
	f.buf.Write(rest)
	return records
}

// flush returns whatever partial record is still buffered.
func (f *framer) flush() string {
	rest := f.buf.String()
	f.buf.Reset()
	return rest
}
