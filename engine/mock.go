package engine

import (
	"context"
	"fmt"

	"github.com/dkozel/graphchat/session"
)

// MockEngine parrots the last user message back as a small stream. It backs
// the "mock" config value and keeps the front-end usable without
// credentials.
type MockEngine struct{}

func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

func (m *MockEngine) Name() string { return "mock" }

func (m *MockEngine) Invoke(ctx context.Context, history []session.Message) (*Stream, error) {
	last := ""
	if len(history) > 0 {
		last = history[len(history)-1].Content
	}
	reply := fmt.Sprintf("I am a mock engine. You said: '%s'.", last)

	updated := append(append([]session.Message(nil), history...), session.Message{
		Role:    session.RoleAssistant,
		Content: reply,
	})
	return ScriptedStream(
		TextDelta{Text: reply},
		StateSnapshot{Messages: updated},
	), nil
}

// ScriptedEngine replays a fixed set of fragments; tests use it to drive the
// renderer and the chat loop deterministically.
type ScriptedEngine struct {
	Fragments []Fragment
	Err       error
	InvokeErr error
	Invoked   [][]session.Message
}

func (s *ScriptedEngine) Name() string { return "scripted" }

func (s *ScriptedEngine) Invoke(ctx context.Context, history []session.Message) (*Stream, error) {
	s.Invoked = append(s.Invoked, append([]session.Message(nil), history...))
	if s.InvokeErr != nil {
		return nil, s.InvokeErr
	}
	if s.Err != nil {
		return BrokenStream(s.Err, s.Fragments...), nil
	}
	return ScriptedStream(s.Fragments...), nil
}
