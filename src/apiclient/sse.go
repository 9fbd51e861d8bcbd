package apiclient

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/bdm-labs/chatdesk/src/chatapi"
)

// sseStream reads server-sent events from a streaming chat-completion
// response body and exposes them as chatapi stream chunks.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  *slog.Logger

	closed   atomic.Bool
	finished bool
	chunks   int
}

func newSSEStream(body io.ReadCloser, logger *slog.Logger) *sseStream {
	scanner := bufio.NewScanner(body)
	// Long single-event lines happen with large code blocks.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &sseStream{
		body:    body,
		scanner: scanner,
		logger:  logger,
	}
}

// Read returns the next content-bearing chunk. The sequence ends with io.EOF
// after the endpoint's [DONE] marker. A transport failure mid-stream is
// reported as one final chunk with Err set, then io.EOF; the caller keeps
// whatever it accumulated and decides what to do with the annotation.
// Read is not safe for concurrent use; a stream has exactly one consumer.
func (s *sseStream) Read() (*chatapi.StreamChunk, error) {
	if s.closed.Load() || s.finished {
		return nil, io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.finished = true
			s.logger.Debug("stream finished", "chunks", s.chunks)
			return &chatapi.StreamChunk{Done: true}, nil
		}

		var event struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason string `json:"finish_reason"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			// Skip malformed events rather than killing the stream.
			s.logger.Debug("skipping malformed stream event", "error", err)
			continue
		}
		if len(event.Choices) == 0 {
			continue
		}

		s.chunks++
		return &chatapi.StreamChunk{Content: event.Choices[0].Delta.Content}, nil
	}

	if err := s.scanner.Err(); err != nil {
		s.finished = true
		if s.closed.Load() {
			// Close aborted the read; not a transport failure.
			return nil, io.EOF
		}
		s.logger.Error("stream interrupted", "chunks", s.chunks, "error", err)
		return &chatapi.StreamChunk{Err: fmt.Errorf("stream interrupted: %w", err)}, nil
	}

	s.finished = true
	return nil, io.EOF
}

// Close releases the underlying connection. Safe to call more than once and
// from a different goroutine than Read; closing the body unblocks a Read that
// is waiting on the network.
func (s *sseStream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.body.Close()
}
