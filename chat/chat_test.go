package chat

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dkozel/graphchat/engine"
	"github.com/dkozel/graphchat/session"
)

func newTestSession(t *testing.T, eng engine.Engine, input string) (*Session, *session.Session, *bytes.Buffer) {
	t.Helper()
	t.Chdir(t.TempDir())
	sess, err := session.New("test")
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	var out bytes.Buffer
	return New(sess, eng, strings.NewReader(input), &out, PlainStyles()), sess, &out
}

func TestRunExitKeyword(t *testing.T) {
	for _, keyword := range []string{"exit", "quit", "bye", "EXIT", "Bye"} {
		t.Run(keyword, func(t *testing.T) {
			eng := &engine.ScriptedEngine{}
			loop, _, out := newTestSession(t, eng, keyword+"\n")
			if err := loop.Run(context.Background()); err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if len(eng.Invoked) != 0 {
				t.Errorf("exit keyword must not submit a turn")
			}
			if !strings.Contains(out.String(), "Bot: Goodbye!") {
				t.Errorf("missing goodbye line:\n%s", out.String())
			}
		})
	}
}

func TestRunEndOfInputTerminates(t *testing.T) {
	eng := &engine.ScriptedEngine{}
	loop, _, _ := newTestSession(t, eng, "")
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run on EOF = %v, want nil", err)
	}
}

func TestRunEmptyInputNeverSubmits(t *testing.T) {
	eng := &engine.ScriptedEngine{}
	loop, _, _ := newTestSession(t, eng, "\n   \nexit\n")
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(eng.Invoked) != 0 {
		t.Errorf("blank input submitted %d turns, want 0", len(eng.Invoked))
	}
}

func TestRunTurnAdoptsSnapshot(t *testing.T) {
	final := []session.Message{
		{Role: session.RoleUser, Content: "hi"},
		{Role: session.RoleAssistant, Content: "hello there"},
	}
	eng := &engine.ScriptedEngine{
		Fragments: []engine.Fragment{
			engine.TextDelta{Text: "hello there\n"},
			engine.StateSnapshot{Messages: final},
		},
	}
	loop, sess, out := newTestSession(t, eng, "hi\nexit\n")
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(eng.Invoked) != 1 {
		t.Fatalf("engine invoked %d times, want 1", len(eng.Invoked))
	}
	submitted := eng.Invoked[0]
	if len(submitted) != 1 || submitted[0].Role != session.RoleUser || submitted[0].Content != "hi" {
		t.Errorf("submitted history = %+v, want the user message", submitted)
	}
	if len(sess.Messages) != 2 {
		t.Errorf("history length = %d, want 2 (snapshot adopted wholesale)", len(sess.Messages))
	}
	if !strings.Contains(out.String(), "hello there") {
		t.Errorf("assistant text missing from output:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "Invoking Agent...") {
		t.Errorf("info notice missing from output:\n%s", out.String())
	}
}

func TestRunHistoryCommand(t *testing.T) {
	eng := &engine.ScriptedEngine{}
	loop, sess, out := newTestSession(t, eng, "/history\nexit\n")
	sess.SetMessages([]session.Message{
		{Role: session.RoleUser, Content: "earlier question"},
		{Role: session.RoleAssistant, Content: "earlier answer"},
	})
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(eng.Invoked) != 0 {
		t.Errorf("/history must not submit a turn")
	}
	for _, want := range []string{"USER: earlier question", "ASSISTANT: earlier answer"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("history output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunInvokeErrorIsNonFatal(t *testing.T) {
	eng := &engine.ScriptedEngine{InvokeErr: errors.New("backend unreachable")}
	loop, sess, out := newTestSession(t, eng, "hi\nexit\n")
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run must survive an invocation error, got %v", err)
	}
	if !strings.Contains(out.String(), "we will continue") {
		t.Errorf("missing non-fatal notice:\n%s", out.String())
	}
	// The user message stays; there was no snapshot to roll forward to.
	if len(sess.Messages) != 1 {
		t.Errorf("history length = %d, want 1", len(sess.Messages))
	}
}

func TestRunStreamErrorKeepsLastSnapshot(t *testing.T) {
	snapshot := []session.Message{
		{Role: session.RoleUser, Content: "hi"},
		{Role: session.RoleAssistant, Content: "partial"},
	}
	eng := &engine.ScriptedEngine{
		Fragments: []engine.Fragment{engine.StateSnapshot{Messages: snapshot}},
		Err:       errors.New("connection reset"),
	}
	loop, sess, out := newTestSession(t, eng, "hi\nexit\n")
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run must survive a stream error, got %v", err)
	}
	if !strings.Contains(out.String(), "we will continue") {
		t.Errorf("missing non-fatal notice:\n%s", out.String())
	}
	if len(sess.Messages) != 2 {
		t.Errorf("history length = %d, want the last acknowledged snapshot", len(sess.Messages))
	}
}

func TestRunCancelledBeforeInput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eng := &engine.ScriptedEngine{}
	loop, _, _ := newTestSession(t, eng, "hi\n")
	if err := loop.Run(ctx); err == nil {
		t.Fatal("Run with a cancelled context must return its error")
	}
}

// An interrupt must release the loop while it sits at the prompt, not wait
// for the user to press Enter first.
func TestRunCancelledWhileWaitingForInput(t *testing.T) {
	t.Chdir(t.TempDir())
	sess, err := session.New("test")
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	in := &blockedReader{unblock: make(chan struct{})}
	defer close(in.unblock)
	var out bytes.Buffer
	loop := New(sess, &engine.ScriptedEngine{}, in, &out, PlainStyles())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- loop.Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation at the prompt")
	}
	if !strings.Contains(out.String(), "Bot: Goodbye!") {
		t.Errorf("goodbye must print on the interrupt path too:\n%s", out.String())
	}
}
