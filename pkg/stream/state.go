package stream

import (
	"strings"

	"github.com/rhuss/modelbridge/pkg/api"
	"github.com/rhuss/modelbridge/pkg/structured"
	"github.com/rhuss/modelbridge/pkg/toolcall"
)

// Phase is the lifecycle position of a stream.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStarted
	PhaseStreaming
	PhaseFinishing
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarted:
		return "started"
	case PhaseStreaming:
		return "streaming"
	case PhaseFinishing:
		return "finishing"
	case PhaseClosed:
		return "closed"
	}
	return "unknown"
}

// State is the mutable state of one streaming call. It is created by
// NewState for every call and touched only by the goroutine running Run.
type State struct {
	Phase Phase

	ResponseID string
	Model      string

	tools *toolcall.Assembler

	textID   string
	textOpen bool
	// text collects streamed text while a structured-output plan is active.
	text strings.Builder

	reason    api.FinishReason
	hasReason bool
	usage     *api.Usage

	plan *structured.Plan
	// held are completed tool calls kept back until finish while a plan is
	// active.
	held []api.ToolInvocation
}

// NewState returns a fresh state. plan may be nil.
func NewState(plan *structured.Plan) *State {
	return &State{
		Phase: PhaseIdle,
		tools: toolcall.New(),
		plan:  plan,
	}
}

// finishReady reports whether both the finish reason and usage are known.
func (s *State) finishReady() bool {
	return s.hasReason && s.usage != nil
}

func (s *State) mergeUsage(u *api.Usage) {
	if u == nil {
		return
	}
	if s.usage == nil {
		merged := api.Usage{}.Merge(*u)
		s.usage = &merged
		return
	}
	merged := s.usage.Merge(*u)
	s.usage = &merged
}
