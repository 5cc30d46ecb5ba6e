package sse

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/rhuss/modelbridge/pkg/api"
)

// collect reads frames until EOF or error.
func collect(t *testing.T, r io.Reader) ([]Frame, error) {
	t.Helper()
	dec := NewDecoder(r)
	var frames []Frame
	for {
		f, err := dec.Next()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}

func TestDecoderBasic(t *testing.T) {
	input := "data: {\"a\":1}\n\n" +
		": keepalive\n\n" +
		"data:{\"b\":2}\r\n\r\n" +
		"data: [DONE]\n\n"

	frames, err := collect(t, strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if string(frames[0].Data) != `{"a":1}` || string(frames[1].Data) != `{"b":2}` {
		t.Errorf("unexpected payloads: %s, %s", frames[0].Data, frames[1].Data)
	}
}

func TestDecoderSplitReads(t *testing.T) {
	input := "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"Hi\"}}\n\n"
	frames, err := collect(t, iotest.OneByteReader(strings.NewReader(input)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Event != "content_block_delta" {
		t.Errorf("Event = %q", frames[0].Event)
	}
}

func TestDecoderEventNameResetsOnBlankLine(t *testing.T) {
	input := "event: ping\ndata: {}\n\ndata: {}\n\n"
	frames, err := collect(t, strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 2 || frames[0].Event != "ping" || frames[1].Event != "" {
		t.Errorf("unexpected frames: %+v", frames)
	}
}

func TestDecoderMalformedFrameIsNotFatal(t *testing.T) {
	input := "data: {\"a\":1}\n\ndata: {broken\n\ndata: {\"c\":3}\n\n"
	frames, err := collect(t, strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	if frames[1].Err == nil || frames[1].Err.Kind != api.ErrorKindParseFailure {
		t.Errorf("frame 1 Err = %v, want parse_failure", frames[1].Err)
	}
	if frames[1].Raw != "{broken" {
		t.Errorf("Raw = %q", frames[1].Raw)
	}
	if frames[2].Err != nil || string(frames[2].Data) != `{"c":3}` {
		t.Errorf("frame after malformed one = %+v", frames[2])
	}
}

func TestDecoderStopsAtSentinel(t *testing.T) {
	input := "data: {\"a\":1}\n\ndata: [DONE]\n\ndata: {\"late\":true}\n\n"
	frames, err := collect(t, strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 {
		t.Errorf("got %d frames, want 1 (nothing after [DONE])", len(frames))
	}
}

func TestDecoderFinalLineWithoutNewline(t *testing.T) {
	frames, err := collect(t, strings.NewReader("data: {\"a\":1}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
}

func TestDecoderReadFailure(t *testing.T) {
	r := io.MultiReader(
		strings.NewReader("data: {\"a\":1}\n\n"),
		iotest.ErrReader(errors.New("connection reset by peer")),
	)
	frames, err := collect(t, r)
	if len(frames) != 1 {
		t.Errorf("got %d frames before the failure, want 1", len(frames))
	}
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != api.ErrorKindStreamError {
		t.Fatalf("err = %v, want stream_error", err)
	}

	// The decoder stays finished after a fatal error.
	dec := NewDecoder(iotest.ErrReader(errors.New("boom")))
	if _, err := dec.Next(); err == nil || err == io.EOF {
		t.Fatalf("first Next() = %v, want stream error", err)
	}
	if _, err := dec.Next(); err != io.EOF {
		t.Errorf("second Next() = %v, want io.EOF", err)
	}
}

func TestDecoderIgnoresOtherFields(t *testing.T) {
	input := "id: 7\nretry: 1000\ndata: {}\n\ndata:\n\n"
	frames, err := collect(t, strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 {
		t.Errorf("got %d frames, want 1", len(frames))
	}
}
