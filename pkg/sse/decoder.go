// Package sse decodes a server-sent-event byte stream into JSON frames.
//
// Each `data:` line is one frame. Frames are produced lazily by Next, so the
// consumer drives reading:
//
//	dec := sse.NewDecoder(resp.Body)
//	for {
//		f, err := dec.Next()
//		if err == io.EOF {
//			break
//		}
//		if err != nil {
//			return err // *api.APIError, kind stream_error
//		}
//		if f.Err != nil {
//			continue // malformed frame, stream continues
//		}
//		handle(f.Event, f.Data)
//	}
package sse

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/rhuss/modelbridge/pkg/api"
	"github.com/rhuss/modelbridge/pkg/classify"
	"github.com/rhuss/modelbridge/pkg/debug"
)

// DoneSentinel ends the stream immediately when it appears as a data payload.
const DoneSentinel = "[DONE]"

// Frame is one decoded `data:` line.
type Frame struct {
	// Event is the name from the preceding `event:` line, if any.
	Event string

	// Data is the JSON payload. It is nil when Err is set.
	Data json.RawMessage

	// Raw is the payload text as received, kept for diagnostics.
	Raw string

	// Err marks a frame whose payload was not valid JSON. Such frames are
	// not fatal.
	Err *api.APIError
}

// Decoder reads frames from an SSE stream. It is not safe for concurrent use.
type Decoder struct {
	r     *bufio.Reader
	event string
	done  bool
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next frame. It returns io.EOF after the end sentinel or
// when the stream closes, and a stream_error *api.APIError when the
// underlying reader fails.
func (d *Decoder) Next() (Frame, error) {
	for {
		if d.done {
			return Frame{}, io.EOF
		}

		line, err := d.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			d.done = true
			return Frame{}, classify.StreamFailure(err)
		}
		if err != nil {
			// EOF: a final line without newline is still processed.
			d.done = true
			if line == "" {
				return Frame{}, io.EOF
			}
		}

		if frame, ok := d.parseLine(line); ok {
			return frame, nil
		}
	}
}

func (d *Decoder) parseLine(line string) (Frame, bool) {
	line = strings.TrimRight(line, "\r\n")
	debug.Raw(debug.Streaming, line)

	switch {
	case line == "":
		d.event = ""
		return Frame{}, false
	case strings.HasPrefix(line, ":"):
		return Frame{}, false
	case strings.HasPrefix(line, "event:"):
		d.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		return Frame{}, false
	case !strings.HasPrefix(line, "data:"):
		// id:, retry: and unknown fields carry nothing we use.
		return Frame{}, false
	}

	payload := strings.TrimPrefix(line, "data:")
	payload = strings.TrimPrefix(payload, " ")

	switch strings.TrimSpace(payload) {
	case "":
		return Frame{}, false
	case DoneSentinel:
		d.done = true
		return Frame{}, false
	}

	frame := Frame{Event: d.event, Raw: payload}
	if !json.Valid([]byte(payload)) {
		debug.Log(debug.Streaming, "malformed frame", "event", d.event, "data", debug.Truncate(payload, 200))
		frame.Err = api.NewError(api.ErrorKindParseFailure, "stream frame is not valid JSON").WithBody(payload)
		return frame, true
	}
	frame.Data = json.RawMessage(payload)
	return frame, true
}
