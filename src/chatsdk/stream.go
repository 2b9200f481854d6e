package chatsdk

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

const (
	dataPrefix       = "data: "
	streamTerminator = "[DONE]"
)

// EventStream decodes a server-sent-event formatted response body into an
// ordered sequence of StreamChunks. Lines are framed on '\n'; because the
// reader buffers raw bytes until a full line is available, a multi-byte UTF-8
// rune split across two network reads is reassembled before any decoding
// happens. A logical line split across reads is likewise reassembled.
type EventStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	done   bool
}

var _ StreamInterface = (*EventStream)(nil)

// NewEventStream wraps a response body in an EventStream.
func NewEventStream(body io.ReadCloser) *EventStream {
	return &EventStream{
		body:   body,
		reader: bufio.NewReader(body),
	}
}

// Read returns the next chunk from the stream, or io.EOF when the underlying
// source is exhausted. Lines without the "data: " prefix, the "[DONE]"
// terminator, and lines whose payload fails to parse as JSON are all skipped;
// partial or interleaved frames are expected during streaming and are not an
// error.
func (s *EventStream) Read() (*StreamChunk, error) {
	for {
		if s.done {
			return nil, io.EOF
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, err
			}
			// The source may end without a trailing newline. Decode
			// whatever is left, then report EOF on the next call.
			s.done = true
			if line == "" {
				return nil, io.EOF
			}
		}

		chunk, ok := decodeLine(line)
		if !ok {
			continue
		}
		return chunk, nil
	}
}

// Close closes the underlying body.
func (s *EventStream) Close() error {
	return s.body.Close()
}

// decodeLine parses one framed line into a chunk. The second return value is
// false when the line carries nothing to emit.
func decodeLine(line string) (*StreamChunk, bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, dataPrefix) {
		return nil, false
	}

	payload := strings.TrimPrefix(line, dataPrefix)
	if strings.TrimSpace(payload) == streamTerminator {
		// End-of-content sentinel. The outer loop still waits for the
		// transport to signal end of stream.
		return nil, false
	}

	var chunk StreamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return nil, false
	}
	return &chunk, true
}

// StreamCallback is a function called for each chunk in a stream.
type StreamCallback func(chunk *StreamChunk) error

// StreamToCallback reads a stream to completion and calls the callback for
// each chunk, in stream order.
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

// DeltaFunc observes one decoded text fragment.
type DeltaFunc func(delta string)

// DecodeStream performs one pass over one stream and returns the full
// concatenated text. Each non-empty text fragment is passed to onDelta, when
// non-nil, synchronously and in discovery order. The aggregator, when
// non-nil, observes every chunk for response metadata.
func DecodeStream(stream StreamInterface, onDelta DeltaFunc, agg *StreamAggregator) (string, error) {
	var content strings.Builder

	err := StreamToCallback(stream, func(chunk *StreamChunk) error {
		if agg != nil {
			agg.AddChunk(chunk)
		}
		if delta := chunk.DeltaContent(); delta != "" {
			content.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
		return nil
	})

	return content.String(), err
}

// CollectStreamContent reads a stream and collects all content into a single
// string.
func CollectStreamContent(stream StreamInterface) (string, error) {
	return DecodeStream(stream, nil, nil)
}

// StreamAggregator tracks response metadata while a stream is decoded.
type StreamAggregator struct {
	ID      string
	Created int64
	Model   string

	FinishReason string
}

// AddChunk processes a stream chunk and updates the aggregated state.
func (a *StreamAggregator) AddChunk(chunk *StreamChunk) {
	if a.ID == "" {
		a.ID = chunk.ID
	}
	if a.Created == 0 {
		a.Created = chunk.Created
	}
	if a.Model == "" {
		a.Model = chunk.Model
	}
	if len(chunk.Choices) > 0 && chunk.Choices[0].FinishReason != "" {
		a.FinishReason = chunk.Choices[0].FinishReason
	}
}
