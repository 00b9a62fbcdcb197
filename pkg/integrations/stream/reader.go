package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"awakenfetch/pkg/types/stream"

	"github.com/pkg/errors"
)

const readChunkSize = 32 * 1024

// Reader decodes an NDJSON stream from raw byte chunks. A line split across reads is
// buffered until its newline arrives; an unterminated final line is parsed at EOF.
// Blank and undecodable lines are skipped.
type Reader struct {
	r       io.Reader
	buf     []byte
	chunk   []byte
	eof     bool
	skipped int
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, chunk: make([]byte, readChunkSize)}
}

// Next returns the next complete message, or io.EOF once the stream is drained.
func (s *Reader) Next(ctx context.Context) (stream.Message, error) {
	for {
		if line, ok := s.nextLine(); ok {
			msg, ok := s.decode(line)
			if !ok {
				continue
			}
			return msg, nil
		}

		if s.eof {
			rest := s.buf
			s.buf = nil
			if msg, ok := s.decode(rest); ok {
				return msg, nil
			}
			return stream.Message{}, io.EOF
		}

		if err := ctx.Err(); err != nil {
			return stream.Message{}, err
		}
		n, err := s.r.Read(s.chunk)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stream.Message{}, ctxErr
		}
		s.buf = append(s.buf, s.chunk[:n]...)
		switch {
		case errors.Is(err, io.EOF):
			s.eof = true
		case err != nil:
			return stream.Message{}, errors.Wrap(err, "read stream")
		}
	}
}

func (s *Reader) nextLine() ([]byte, bool) {
	i := bytes.IndexByte(s.buf, '\n')
	if i < 0 {
		return nil, false
	}
	line := s.buf[:i]
	s.buf = s.buf[i+1:]
	return line, true
}

func (s *Reader) decode(line []byte) (stream.Message, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return stream.Message{}, false
	}
	var msg stream.Message
	if err := json.Unmarshal(line, &msg); err != nil || msg.Type == "" {
		s.skipped++
		return stream.Message{}, false
	}
	return msg, true
}

// Skipped counts lines that could not be decoded.
func (s *Reader) Skipped() int {
	return s.skipped
}
