package engine

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/dkozel/graphchat/logging"
	"github.com/dkozel/graphchat/tools"
	"github.com/google/generative-ai-go/genai"
)

func drainFragments(t *testing.T, st *Stream) []Fragment {
	t.Helper()
	var frags []Fragment
	for {
		frag, err := st.Next(context.Background())
		if err == io.EOF {
			return frags
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		frags = append(frags, frag)
	}
}

// Tool output reaches the display through the result block only; the folded
// reply text is history-bound and must not be pushed again as a delta.
func TestGeminiCallFunctionEmitsOnlyToolEvents(t *testing.T) {
	e := &GeminiEngine{
		tools: []tools.Tool{fakeTool{name: "read_file"}},
		log:   logging.Named("gemini"),
	}

	st := newStream()
	result := e.callFunction(context.Background(), st, genai.FunctionCall{
		Name: "read_file",
		Args: map[string]any{"args": map[string]any{"path": "a.txt"}},
	})
	st.finish(nil)

	if result != "ok" {
		t.Errorf("result = %q, want the tool output", result)
	}

	frags := drainFragments(t, st)
	if len(frags) != 2 {
		t.Fatalf("fragments = %d, want call and result events only", len(frags))
	}
	call, ok := frags[0].(ToolEvent)
	if !ok || call.Phase != ToolPhaseCall || call.Call.Name != "read_file" {
		t.Errorf("first fragment = %+v, want the call event", frags[0])
	}
	if call.Call.ToolCallID == "" {
		t.Error("generated call must carry an ID")
	}
	res, ok := frags[1].(ToolEvent)
	if !ok || res.Phase != ToolPhaseResult || res.Result != "ok" {
		t.Errorf("second fragment = %+v, want the result event", frags[1])
	}
	for _, frag := range frags {
		if _, isDelta := frag.(TextDelta); isDelta {
			t.Error("tool output must not also appear as a text delta")
		}
	}
}

func TestGeminiCallFunctionReportsFailureAsText(t *testing.T) {
	e := &GeminiEngine{
		tools: nil,
		log:   logging.Named("gemini"),
	}

	st := newStream()
	result := e.callFunction(context.Background(), st, genai.FunctionCall{Name: "ghost"})
	st.finish(nil)

	if !strings.Contains(result, "Error executing tool 'ghost'") {
		t.Errorf("result = %q, failures must fold into the reply", result)
	}
	frags := drainFragments(t, st)
	if len(frags) != 2 {
		t.Fatalf("fragments = %d, want call and result events", len(frags))
	}
	res := frags[1].(ToolEvent)
	if !strings.Contains(res.Result, "Error executing tool") {
		t.Errorf("result event = %+v, want the error text", res)
	}
}
