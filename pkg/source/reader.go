package source

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jwoglom/midistream/pkg/stream"

	log "github.com/sirupsen/logrus"
)

// ReaderSource reads a file, a character device such as a serial port, or
// stdin when the path is "-"
type ReaderSource struct {
	path   string
	reader io.Reader
}

// NewReaderSource creates a source reading path
func NewReaderSource(path string) *ReaderSource {
	return &ReaderSource{path: path}
}

// NewReaderSourceFrom creates a source reading from r
func NewReaderSourceFrom(name string, r io.Reader) *ReaderSource {
	return &ReaderSource{path: name, reader: r}
}

func (s *ReaderSource) String() string {
	if s.path == "-" {
		return "stdin"
	}
	return s.path
}

func (s *ReaderSource) open() (io.ReadCloser, error) {
	if s.reader != nil {
		if rc, ok := s.reader.(io.ReadCloser); ok {
			return rc, nil
		}
		return io.NopCloser(s.reader), nil
	}
	if s.path == "-" {
		return os.Stdin, nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	return f, nil
}

// Run reads until EOF. Cancelling ctx closes the input to unblock the read.
func (s *ReaderSource) Run(ctx context.Context, dec *stream.Decoder) error {
	r, err := s.open()
	if err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			if err := r.Close(); err != nil {
				log.Debugf("Error closing %s: %v", s, err)
			}
		case <-done:
		}
	}()

	log.Infof("Reading MIDI bytes from %s", s)
	if err := dec.ReadFrom(ctx, r); err != nil {
		return err
	}
	log.Infof("Finished reading %s", s)
	return nil
}
