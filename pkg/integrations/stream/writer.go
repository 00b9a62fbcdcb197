package stream

import (
	"encoding/json"
	"io"
	"sync"

	"awakenfetch/pkg/types/stream"

	"github.com/pkg/errors"
)

var ErrStreamClosed = errors.New("stream already terminated")

type flusher interface {
	Flush()
}

// Writer emits one JSON message per line and flushes after each when the
// underlying writer supports it. Nothing is written after a terminal message.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (s *Writer) Write(msg stream.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}

	line, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal stream message")
	}
	line = append(line, '\n')
	if _, err := s.w.Write(line); err != nil {
		return errors.Wrap(err, "write stream message")
	}
	if f, ok := s.w.(flusher); ok {
		f.Flush()
	}
	if msg.Terminal() {
		s.closed = true
	}
	return nil
}

func (s *Writer) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
