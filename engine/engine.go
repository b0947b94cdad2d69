// Package engine defines the streaming contract between the terminal
// front-end and an agent execution backend, plus the backends themselves.
//
// An Engine turns a conversation history into a lazy stream of output
// fragments: text deltas, tool events, opaque extras, and finally a state
// snapshot carrying the updated history. Consumers pull fragments with
// Stream.Next; producers run in a goroutine owned by the engine.
package engine

import (
	"context"

	"github.com/dkozel/graphchat/config"
	"github.com/dkozel/graphchat/errors"
	"github.com/dkozel/graphchat/session"
	"github.com/dkozel/graphchat/tools"
)

// Engine is an agent execution backend.
type Engine interface {
	// Name identifies the backend, e.g. "anthropic".
	Name() string
	// Invoke starts one agent turn over the full history and returns the
	// fragment stream. The history slice is not mutated.
	Invoke(ctx context.Context, history []session.Message) (*Stream, error)
}

// New resolves the configured backend statically. There is no dynamic
// loading; unknown names fall back to the mock engine.
func New(ctx context.Context, cfg *config.Config, registry *tools.Registry, toolset string) (Engine, error) {
	ts, err := cfg.GetToolset(toolset)
	if err != nil {
		return nil, err
	}
	active, err := registry.Resolve(ts)
	if err != nil {
		return nil, err
	}

	switch cfg.Engine {
	case "anthropic":
		return NewAnthropicEngine(ctx, cfg.Model, active)
	case "openai":
		return NewOpenAIEngine(ctx, cfg.Model, active)
	case "gemini":
		return NewGeminiEngine(ctx, cfg.Model, active)
	case "bedrock":
		return NewBedrockEngine(ctx, cfg.Model, active)
	default:
		return NewMockEngine(), nil
	}
}

// runToolCalls executes each requested tool, emitting call and result
// fragments, and appends the corresponding tool messages to the history.
// Tool failures are reported to the model as result text, not as stream
// errors, so the conversation can continue.
func runToolCalls(ctx context.Context, st *Stream, available []tools.Tool, calls []session.ToolCall, history []session.Message) []session.Message {
	for _, call := range calls {
		if !st.push(ctx, ToolEvent{Phase: ToolPhaseCall, Call: call}) {
			return history
		}

		result, err := executeTool(ctx, available, call)
		if err != nil {
			result = "Error: " + err.Error()
		}

		if !st.push(ctx, ToolEvent{Phase: ToolPhaseResult, Call: call, Result: result}) {
			return history
		}
		history = append(history, session.Message{
			Role:      session.RoleTool,
			Content:   result,
			ToolCalls: []session.ToolCall{call},
		})
	}
	return history
}

func executeTool(ctx context.Context, available []tools.Tool, call session.ToolCall) (string, error) {
	for _, t := range available {
		if t.Name() == call.Name {
			return t.Execute(ctx, call.Args)
		}
	}
	return "", errors.New("model requested unavailable tool '%s'", call.Name)
}
