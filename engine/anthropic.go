package engine

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/dkozel/graphchat/errors"
	"github.com/dkozel/graphchat/logging"
	"github.com/dkozel/graphchat/session"
	"github.com/dkozel/graphchat/tools"
	"github.com/sirupsen/logrus"
)

// AnthropicEngine streams agent turns through the Anthropic Messages API,
// executing requested tools between rounds until the model stops asking.
type AnthropicEngine struct {
	client *anthropic.Client
	model  string
	tools  []tools.Tool
	log    *logrus.Entry
}

// NewAnthropicEngine requires the ANTHROPIC_API_KEY environment variable.
func NewAnthropicEngine(ctx context.Context, modelName string, available []tools.Tool) (*AnthropicEngine, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable not set")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicEngine{
		client: &client,
		model:  modelName,
		tools:  available,
		log:    logging.Named("anthropic"),
	}, nil
}

func (e *AnthropicEngine) Name() string { return "anthropic" }

func (e *AnthropicEngine) Invoke(ctx context.Context, history []session.Message) (*Stream, error) {
	st := newStream()
	msgs := append([]session.Message(nil), history...)
	go func() {
		st.finish(e.run(ctx, st, msgs))
	}()
	return st, nil
}

// run performs rounds of model streaming and tool execution until the model
// returns a round with no tool calls, then pushes the final snapshot.
func (e *AnthropicEngine) run(ctx context.Context, st *Stream, msgs []session.Message) error {
	for {
		assistant, err := e.streamRound(ctx, st, msgs)
		if err != nil {
			return err
		}
		msgs = append(msgs, *assistant)

		if len(assistant.ToolCalls) == 0 {
			st.push(ctx, StateSnapshot{Messages: msgs})
			return nil
		}
		msgs = runToolCalls(ctx, st, e.tools, assistant.ToolCalls, msgs)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// streamRound runs one streaming completion, forwarding text deltas as they
// arrive and accumulating the full message for tool call extraction.
func (e *AnthropicEngine) streamRound(ctx context.Context, st *Stream, msgs []session.Message) (*session.Message, error) {
	params := e.buildParams(msgs)
	stream := e.client.Messages.NewStreaming(ctx, params)

	var acc anthropic.Message
	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			return nil, errors.Wrapf(err, "failed to accumulate stream event")
		}
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
				if !st.push(ctx, TextDelta{Text: text.Text}) {
					return nil, ctx.Err()
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, errors.Wrapf(err, "Anthropic stream failed")
	}

	assistant, err := messageFromAnthropicContent(acc.Content)
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{"tool_calls": len(assistant.ToolCalls)}).Debug("round complete")
	return assistant, nil
}

func (e *AnthropicEngine) buildParams(msgs []session.Message) anthropic.MessageNewParams {
	anthropicMessages, systemPrompt := toAnthropicMessages(msgs)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: 4096,
		Messages:  anthropicMessages,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	for _, t := range e.tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name(),
				Description: anthropic.String(t.Description()),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{},
				},
			},
		})
	}
	return params
}

// toAnthropicMessages converts the internal history to Anthropic's message
// format, lifting any system message out as the system prompt.
func toAnthropicMessages(messages []session.Message) ([]anthropic.MessageParam, string) {
	var out []anthropic.MessageParam
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case session.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case session.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				var blocks []anthropic.ContentBlockParamUnion
				if msg.Content != "" {
					blocks = append(blocks, anthropic.ContentBlockParamUnion{
						OfText: &anthropic.TextBlockParam{Text: msg.Content},
					})
				}
				for _, tc := range msg.ToolCalls {
					args, err := json.Marshal(tc.Args)
					if err != nil {
						continue
					}
					blocks = append(blocks, anthropic.ContentBlockParamUnion{
						OfToolUse: &anthropic.ToolUseBlockParam{
							Type:  "tool_use",
							ID:    tc.ToolCallID,
							Name:  tc.Name,
							Input: args,
						},
					})
				}
				out = append(out, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: blocks,
				})
			} else if msg.Content != "" {
				out = append(out, anthropic.MessageParam{
					Role: anthropic.MessageParamRoleAssistant,
					Content: []anthropic.ContentBlockParamUnion{{
						OfText: &anthropic.TextBlockParam{Text: msg.Content},
					}},
				})
			}
		case session.RoleTool:
			if len(msg.ToolCalls) == 0 {
				continue
			}
			out = append(out, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: msg.ToolCalls[0].ToolCallID,
						Content: []anthropic.ToolResultBlockParamContentUnion{{
							OfText: &anthropic.TextBlockParam{Text: msg.Content},
						}},
					},
				}},
			})
		case session.RoleSystem:
			systemPrompt = msg.Content
		}
	}
	return out, systemPrompt
}

// messageFromAnthropicContent builds the assistant message from accumulated
// response content.
func messageFromAnthropicContent(content []anthropic.ContentBlockUnion) (*session.Message, error) {
	var text strings.Builder
	var calls []session.ToolCall

	for _, block := range content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			var args map[string]interface{}
			if len(b.Input) > 0 {
				if err := json.Unmarshal(b.Input, &args); err != nil {
					return nil, errors.Wrapf(err, "failed to unmarshal tool call input")
				}
			}
			calls = append(calls, session.ToolCall{
				ToolCallID: b.ID,
				Name:       b.Name,
				Args:       args,
			})
		}
	}
	return &session.Message{
		Role:      session.RoleAssistant,
		Content:   text.String(),
		ToolCalls: calls,
	}, nil
}
