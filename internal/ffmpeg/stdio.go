package ffmpeg

import "os"

type stdioKind int

const (
	stdioPiped stdioKind = iota
	stdioInherit
	stdioNull
	stdioFile
)

// Stdio selects where one of the child's standard streams is connected.
type Stdio struct {
	kind stdioKind
	file *os.File
}

// Piped connects the stream to a pipe the caller can take from the Command.
func Piped() Stdio { return Stdio{kind: stdioPiped} }

// Inherit shares the parent's stream.
func Inherit() Stdio { return Stdio{kind: stdioInherit} }

// Null connects the stream to the null device.
func Null() Stdio { return Stdio{kind: stdioNull} }

// File connects the stream to f. The caller keeps ownership of f.
func File(f *os.File) Stdio {
	if f == nil {
		return Null()
	}
	return Stdio{kind: stdioFile, file: f}
}

func (s Stdio) String() string {
	switch s.kind {
	case stdioPiped:
		return "piped"
	case stdioInherit:
		return "inherit"
	case stdioNull:
		return "null"
	default:
		return "file"
	}
}

// endpoints returns the descriptor handed to the child and, for piped
// streams, the parent end. inherit selects which parent stream to share.
func (s Stdio) endpoints(inherit *os.File, childReads bool) (child, parent *os.File, err error) {
	switch s.kind {
	case stdioInherit:
		return inherit, nil, nil
	case stdioNull:
		return nil, nil, nil
	case stdioFile:
		return s.file, nil, nil
	}
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}
	if childReads {
		return r, w, nil
	}
	return w, r, nil
}
