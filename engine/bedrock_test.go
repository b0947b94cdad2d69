package engine

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/dkozel/graphchat/session"
	"github.com/dkozel/graphchat/tools"
)

type fakeTool struct {
	name string
}

func (f fakeTool) Name() string        { return f.name }
func (f fakeTool) Description() string { return "fake tool for tests" }
func (f fakeTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return "ok", nil
}

func decodeRequest(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var req map[string]interface{}
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("request body is not valid JSON: %v", err)
	}
	return req
}

func TestBuildBedrockRequestBasics(t *testing.T) {
	body, err := buildBedrockRequest([]session.Message{
		{Role: session.RoleSystem, Content: "be brief"},
		{Role: session.RoleUser, Content: "hello"},
	}, nil)
	if err != nil {
		t.Fatalf("buildBedrockRequest failed: %v", err)
	}
	req := decodeRequest(t, body)

	if req["anthropic_version"] != "bedrock-2023-05-31" {
		t.Errorf("anthropic_version = %v", req["anthropic_version"])
	}
	if req["system"] != "be brief" {
		t.Errorf("system prompt = %v, want it lifted out of the message list", req["system"])
	}
	msgs, ok := req["messages"].([]interface{})
	if !ok || len(msgs) != 1 {
		t.Fatalf("messages = %v, want a single user message", req["messages"])
	}
	if _, hasTools := req["tools"]; hasTools {
		t.Error("tools key present without any tools")
	}
}

func TestBuildBedrockRequestIncludesTools(t *testing.T) {
	body, err := buildBedrockRequest(
		[]session.Message{{Role: session.RoleUser, Content: "hi"}},
		[]tools.Tool{fakeTool{name: "read_file"}},
	)
	if err != nil {
		t.Fatalf("buildBedrockRequest failed: %v", err)
	}
	req := decodeRequest(t, body)
	toolSpecs, ok := req["tools"].([]interface{})
	if !ok || len(toolSpecs) != 1 {
		t.Fatalf("tools = %v, want one spec", req["tools"])
	}
	spec := toolSpecs[0].(map[string]interface{})
	if spec["name"] != "read_file" {
		t.Errorf("tool name = %v", spec["name"])
	}
}

func TestToBedrockMessagesToolRoundTrip(t *testing.T) {
	call := session.ToolCall{
		ToolCallID: "toolu_1",
		Name:       "run_command",
		Args:       map[string]interface{}{"command": "ls"},
	}
	out, system := toBedrockMessages([]session.Message{
		{Role: session.RoleUser, Content: "list files"},
		{Role: session.RoleAssistant, Content: "sure", ToolCalls: []session.ToolCall{call}},
		{Role: session.RoleTool, Content: "a.txt", ToolCalls: []session.ToolCall{call}},
	})
	if system != "" {
		t.Errorf("system = %q, want empty", system)
	}
	if len(out) != 3 {
		t.Fatalf("message count = %d, want 3", len(out))
	}

	assistant := out[1]
	blocks := assistant["content"].([]map[string]interface{})
	if len(blocks) != 2 {
		t.Fatalf("assistant blocks = %d, want text plus tool_use", len(blocks))
	}
	if blocks[1]["type"] != "tool_use" || blocks[1]["id"] != "toolu_1" {
		t.Errorf("tool_use block = %v", blocks[1])
	}

	// Tool results go back as user-role tool_result blocks.
	result := out[2]
	if result["role"] != "user" {
		t.Errorf("tool result role = %v, want user", result["role"])
	}
	rblocks := result["content"].([]map[string]interface{})
	if rblocks[0]["type"] != "tool_result" || rblocks[0]["tool_use_id"] != "toolu_1" {
		t.Errorf("tool_result block = %v", rblocks[0])
	}
}

func feedAll(t *testing.T, acc *bedrockAccumulator, events ...string) string {
	t.Helper()
	var text strings.Builder
	for _, event := range events {
		delta, err := acc.feed([]byte(event))
		if err != nil {
			t.Fatalf("feed(%s) failed: %v", event, err)
		}
		text.WriteString(delta)
	}
	return text.String()
}

func TestBedrockAccumulatorText(t *testing.T) {
	acc := newBedrockAccumulator()
	got := feedAll(t, acc,
		`{"type":"content_block_delta","delta":{"type":"text_delta","text":"Hel"}}`,
		`{"type":"content_block_delta","delta":{"type":"text_delta","text":"lo"}}`,
	)
	if got != "Hello" {
		t.Errorf("streamed text = %q, want %q", got, "Hello")
	}
	msg, err := acc.message()
	if err != nil {
		t.Fatalf("message failed: %v", err)
	}
	if msg.Content != "Hello" || len(msg.ToolCalls) != 0 {
		t.Errorf("message = %+v", msg)
	}
}

func TestBedrockAccumulatorToolUse(t *testing.T) {
	acc := newBedrockAccumulator()
	got := feedAll(t, acc,
		`{"type":"content_block_start","content_block":{"type":"tool_use","id":"toolu_9","name":"read_file"}}`,
		`{"type":"content_block_delta","delta":{"type":"input_json_delta","partial_json":"{\"path\":"}}`,
		`{"type":"content_block_delta","delta":{"type":"input_json_delta","partial_json":"\"a.txt\"}"}}`,
		`{"type":"content_block_stop"}`,
	)
	if got != "" {
		t.Errorf("tool events must not produce text, got %q", got)
	}
	msg, err := acc.message()
	if err != nil {
		t.Fatalf("message failed: %v", err)
	}
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(msg.ToolCalls))
	}
	call := msg.ToolCalls[0]
	if call.ToolCallID != "toolu_9" || call.Name != "read_file" {
		t.Errorf("call = %+v", call)
	}
	if call.Args["path"] != "a.txt" {
		t.Errorf("args = %v, partial JSON must reassemble", call.Args)
	}
}

func TestBedrockAccumulatorGeneratesMissingID(t *testing.T) {
	acc := newBedrockAccumulator()
	feedAll(t, acc,
		`{"type":"content_block_start","content_block":{"type":"tool_use","name":"run_command"}}`,
		`{"type":"content_block_stop"}`,
	)
	msg, err := acc.message()
	if err != nil {
		t.Fatalf("message failed: %v", err)
	}
	if len(msg.ToolCalls) != 1 || !strings.HasPrefix(msg.ToolCalls[0].ToolCallID, "call_") {
		t.Errorf("calls = %+v, want a generated call_ id", msg.ToolCalls)
	}
}

func TestBedrockAccumulatorRejectsMalformedEvent(t *testing.T) {
	acc := newBedrockAccumulator()
	if _, err := acc.feed([]byte("not json")); err == nil {
		t.Fatal("malformed event must fail")
	}
}
