package chat

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/dkozel/graphchat/engine"
	"github.com/dkozel/graphchat/session"
)

func renderFragments(t *testing.T, history []session.Message, frags ...engine.Fragment) ([]session.Message, string) {
	t.Helper()
	var out bytes.Buffer
	r := NewRenderer(&out, PlainStyles())
	msgs, err := r.Render(context.Background(), engine.ScriptedStream(frags...), history)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	return msgs, out.String()
}

func TestRenderSplitsLinesAcrossDeltas(t *testing.T) {
	_, out := renderFragments(t, nil,
		engine.TextDelta{Text: "hel"},
		engine.TextDelta{Text: "lo\nwor"},
		engine.TextDelta{Text: "ld"},
	)
	if got, want := out, "hello\nworld"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestRenderSingleNewlineEmitsOneLine(t *testing.T) {
	_, out := renderFragments(t, nil,
		engine.TextDelta{Text: "one li"},
		engine.TextDelta{Text: "ne\nrest"},
	)
	if got := strings.Count(out, "\n"); got != 1 {
		t.Errorf("newline count = %d, want 1 (output %q)", got, out)
	}
	if !strings.HasSuffix(out, "rest") {
		t.Errorf("remainder must flush at stream end, got %q", out)
	}
}

func TestRenderFlushesFinalPartialLine(t *testing.T) {
	_, out := renderFragments(t, nil, engine.TextDelta{Text: "no newline here"})
	if out != "no newline here" {
		t.Errorf("output = %q, want the partial line flushed without a trailing newline", out)
	}
}

func TestRenderFenceSplitAcrossDeltas(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out, PlainStyles())
	// The fence marker arrives in two fragments; no transition may happen
	// until the line completes.
	stream := engine.ScriptedStream(
		engine.TextDelta{Text: "``"},
		engine.TextDelta{Text: "`\ncode\n```\n"},
	)
	if _, err := r.Render(context.Background(), stream, nil); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got, want := out.String(), "```\ncode\n```\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestRenderSnapshotReplacesHistory(t *testing.T) {
	initial := []session.Message{{Role: session.RoleUser, Content: "hi"}}
	updated := []session.Message{
		{Role: session.RoleUser, Content: "hi"},
		{Role: session.RoleAssistant, Content: "hello"},
	}
	msgs, out := renderFragments(t, initial, engine.StateSnapshot{Messages: updated})
	if len(msgs) != 2 {
		t.Fatalf("history length = %d, want 2", len(msgs))
	}
	if out != "" {
		t.Errorf("snapshots must not produce output, got %q", out)
	}
}

func TestRenderNoSnapshotKeepsHistory(t *testing.T) {
	initial := []session.Message{{Role: session.RoleUser, Content: "hi"}}
	msgs, _ := renderFragments(t, initial, engine.TextDelta{Text: "text\n"})
	if len(msgs) != 1 || msgs[0].Content != "hi" {
		t.Errorf("history changed without a snapshot: %+v", msgs)
	}
}

func TestRenderToolEventBlock(t *testing.T) {
	call := session.ToolCall{
		ToolCallID: "call_1",
		Name:       "read_file",
		Args:       map[string]interface{}{"path": "a.txt"},
	}
	_, out := renderFragments(t, nil,
		engine.TextDelta{Text: "before\n"},
		engine.ToolEvent{Phase: engine.ToolPhaseCall, Call: call},
		engine.ToolEvent{Phase: engine.ToolPhaseResult, Call: call, Result: "contents"},
		engine.TextDelta{Text: "after\n"},
	)
	for _, want := range []string{"before", "Tool Call: read_file", "path: a.txt", "Tool Result: read_file", "contents", "after"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "\n\n") {
		t.Errorf("tool block must be visually separated from running text:\n%s", out)
	}
}

func TestRenderToolEventDoesNotDisturbBuffer(t *testing.T) {
	call := session.ToolCall{Name: "run_command"}
	_, out := renderFragments(t, nil,
		engine.TextDelta{Text: "partial"},
		engine.ToolEvent{Phase: engine.ToolPhaseCall, Call: call},
		engine.TextDelta{Text: " line\n"},
	)
	if !strings.Contains(out, "partial line\n") {
		t.Errorf("buffered text must survive a tool event, got %q", out)
	}
}

func TestRenderOtherFragment(t *testing.T) {
	_, out := renderFragments(t, nil, engine.Other{Value: 42})
	if !strings.Contains(out, "int") || !strings.Contains(out, "42") {
		t.Errorf("diagnostic output = %q, want type and value", out)
	}
}

// End-to-end scenario: a thinking block streamed across fragments with a
// trailing unterminated line and a final snapshot.
func TestRenderThinkingScenario(t *testing.T) {
	history := []session.Message{
		{Role: session.RoleUser, Content: "q"},
		{Role: session.RoleAssistant, Content: "a"},
	}
	final := append(append([]session.Message(nil), history...),
		session.Message{Role: session.RoleAssistant, Content: "done"})

	var out bytes.Buffer
	r := NewRenderer(&out, PlainStyles())
	stream := engine.ScriptedStream(
		engine.TextDelta{Text: "```thinking\n"},
		engine.TextDelta{Text: "note\n"},
		engine.TextDelta{Text: "```\n"},
		engine.TextDelta{Text: "done"},
		engine.StateSnapshot{Messages: final},
	)
	msgs, err := r.Render(context.Background(), stream, history)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Errorf("final history length = %d, want 3", len(msgs))
	}
	if got, want := out.String(), "```thinking\nnote\n```\ndone"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestRenderCancelledContextAbandonsBuffer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	r := NewRenderer(&out, PlainStyles())
	stream := engine.ScriptedStream(engine.TextDelta{Text: "never flushed"})
	_, err := r.Render(ctx, stream, nil)
	if err == nil {
		t.Fatal("Render must fail once the context is cancelled")
	}
	if out.String() != "" {
		t.Errorf("cancelled render must not flush, got %q", out.String())
	}
}
