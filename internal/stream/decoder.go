// Package stream decodes the relay's framed event stream and applies it to a
// session transcript.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"papertalk.app/relay/internal/http/dto"
)

const (
	dataPrefix = "data: "

	// maxFrameSize bounds a single frame. The terminal complete event carries
	// the whole accumulated reply, so this is well above any delta size.
	maxFrameSize = 8 << 20
)

var frameDelimiter = []byte("\n\n")

// Decoder pulls framed events off a byte stream one at a time. It buffers
// undecoded bytes across reads, so a frame split at any byte offset —
// including mid-delimiter — decodes identically to one delivered whole.
// Malformed frames are logged and skipped rather than aborting the stream.
type Decoder struct {
	scanner *bufio.Scanner
}

func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), maxFrameSize)
	scanner.Split(splitFrames)
	return &Decoder{scanner: scanner}
}

// Next returns the next well-formed event. io.EOF signals the end of the
// stream; any other error is a transport failure.
func (d *Decoder) Next(ctx context.Context) (dto.StreamEvent, error) {
	for d.scanner.Scan() {
		event, ok := parseFrame(ctx, d.scanner.Bytes())
		if !ok {
			continue
		}
		return event, nil
	}

	if err := d.scanner.Err(); err != nil {
		return dto.StreamEvent{}, fmt.Errorf("reading event stream: %w", err)
	}
	return dto.StreamEvent{}, io.EOF
}

// splitFrames splits the byte stream on the blank-line frame delimiter.
func splitFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.Index(data, frameDelimiter); i >= 0 {
		return i + len(frameDelimiter), data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// parseFrame extracts the JSON payload of one frame. Blank frames and frames
// without a data line are skipped silently; a data line that fails to parse
// is logged and skipped (one bad frame must not kill the stream).
func parseFrame(ctx context.Context, frame []byte) (dto.StreamEvent, bool) {
	for _, line := range strings.Split(string(frame), "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}

		var event dto.StreamEvent
		if err := json.Unmarshal([]byte(line[len(dataPrefix):]), &event); err != nil {
			slog.WarnContext(ctx, "skipping malformed event frame", "error", err)
			continue
		}
		return event, true
	}
	return dto.StreamEvent{}, false
}
