package engine

import "github.com/dkozel/graphchat/session"

// Fragment is one unit of an engine's output stream. Implementations form a
// closed union: StateSnapshot, TextDelta, ToolEvent and Other.
type Fragment interface {
	isFragment()
}

// StateSnapshot carries a complete replacement value for the conversation
// history. The consumer adopts it wholesale, never merges.
type StateSnapshot struct {
	Messages []session.Message
}

// TextDelta carries a run of assistant text. Runs may split lines, words and
// even fence markers at arbitrary points.
type TextDelta struct {
	Text string
}

// ToolPhase distinguishes the two halves of a tool round trip.
type ToolPhase int

const (
	ToolPhaseCall ToolPhase = iota
	ToolPhaseResult
)

func (p ToolPhase) String() string {
	if p == ToolPhaseResult {
		return "result"
	}
	return "call"
}

// ToolEvent reports a tool invocation or its result.
type ToolEvent struct {
	Phase  ToolPhase
	Call   session.ToolCall
	Result string
}

// Other wraps fragments the consumer has no specific handling for. They are
// surfaced diagnostically and never fail a turn.
type Other struct {
	Value interface{}
}

func (StateSnapshot) isFragment() {}
func (TextDelta) isFragment()     {}
func (ToolEvent) isFragment()     {}
func (Other) isFragment()         {}
