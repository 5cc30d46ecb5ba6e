// Package toolcall reconstructs tool invocations whose id, name and
// argument text arrive as fragments spread over several stream frames.
//
// Partials are keyed by the upstream position index. Argument fragments are
// appended in arrival order and never reordered or deduplicated; the buffer
// is treated as complete only when the caller closes the index or flushes.
package toolcall

import (
	"sort"
	"strings"

	"github.com/rhuss/modelbridge/pkg/api"
	"github.com/rhuss/modelbridge/pkg/debug"
)

// Delta is one fragment of a tool invocation.
type Delta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Partial is an invocation under construction.
type Partial struct {
	Index int
	ID    string
	Name  string
	Args  strings.Builder
}

// Assembler holds the partials of one call. It is not safe for concurrent
// use; each call owns its own Assembler.
type Assembler struct {
	partials map[int]*Partial
}

// New returns an empty Assembler.
func New() *Assembler {
	return &Assembler{partials: make(map[int]*Partial)}
}

// Apply merges a fragment. The first non-empty id and name win.
func (a *Assembler) Apply(d Delta) {
	p, ok := a.partials[d.Index]
	if !ok {
		p = &Partial{Index: d.Index}
		a.partials[d.Index] = p
	}
	if p.ID == "" && d.ID != "" {
		p.ID = d.ID
	}
	if p.Name == "" && d.Name != "" {
		p.Name = d.Name
	}
	p.Args.WriteString(d.Arguments)
}

// Pending returns the number of partials not yet closed or flushed.
func (a *Assembler) Pending() int {
	return len(a.partials)
}

// Close completes the partial at index and removes it. It reports false when
// no partial exists or the partial never received a name; such partials are
// dropped.
func (a *Assembler) Close(index int) (api.ToolInvocation, bool) {
	p, ok := a.partials[index]
	if !ok {
		return api.ToolInvocation{}, false
	}
	delete(a.partials, index)
	return complete(p)
}

// Flush completes every remaining partial in ascending index order and
// empties the Assembler.
func (a *Assembler) Flush() []api.ToolInvocation {
	if len(a.partials) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(a.partials))
	for idx := range a.partials {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	var out []api.ToolInvocation
	for _, idx := range indexes {
		if inv, ok := complete(a.partials[idx]); ok {
			out = append(out, inv)
		}
		delete(a.partials, idx)
	}
	return out
}

func complete(p *Partial) (api.ToolInvocation, bool) {
	if p.Name == "" {
		debug.Log(debug.Providers, "dropping tool call without name",
			"index", p.Index, "id", p.ID, "args", debug.Truncate(p.Args.String(), 200))
		return api.ToolInvocation{}, false
	}
	id := p.ID
	if id == "" {
		id = api.NewToolCallID()
	}
	return api.ToolInvocation{ID: id, Name: p.Name, Arguments: p.Args.String()}, true
}
