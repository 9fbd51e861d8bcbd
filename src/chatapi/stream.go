package chatapi

import (
	"errors"
	"io"
	"strings"
)

// StreamCallback is called for each chunk pulled from a stream.
type StreamCallback func(chunk *StreamChunk) error

// StreamToCallback drains a stream and calls the callback for each chunk.
// The stream is closed before returning.
func StreamToCallback(stream StreamInterface, callback StreamCallback) error {
	defer stream.Close()

	for {
		chunk, err := stream.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if chunk == nil {
			return nil
		}
		if err := callback(chunk); err != nil {
			return err
		}
	}
}

// CollectStreamContent drains a stream and concatenates all fragment content.
// An in-band error sentinel terminates collection and is returned alongside
// whatever content arrived before it.
func CollectStreamContent(stream StreamInterface) (string, error) {
	var content strings.Builder
	var streamErr error

	err := StreamToCallback(stream, func(chunk *StreamChunk) error {
		if chunk.Err != nil {
			streamErr = chunk.Err
			return io.EOF
		}
		content.WriteString(chunk.Content)
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return content.String(), err
	}
	return content.String(), streamErr
}

// StreamResult is one item produced by StreamToChannel.
type StreamResult struct {
	Chunk *StreamChunk
	Error error
}

// StreamToChannel pumps a stream into a channel. The channel is closed and the
// stream released when the sequence ends, errors, or the pumping goroutine is
// abandoned by its consumer closing the stream.
func StreamToChannel(stream StreamInterface) <-chan StreamResult {
	ch := make(chan StreamResult, 1)

	go func() {
		defer close(ch)
		defer stream.Close()

		for {
			chunk, err := stream.Read()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					ch <- StreamResult{Error: err}
				}
				return
			}
			if chunk == nil {
				return
			}
			ch <- StreamResult{Chunk: chunk}
		}
	}()

	return ch
}
