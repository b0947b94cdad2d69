package engine

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/dkozel/graphchat/errors"
	"github.com/dkozel/graphchat/logging"
	"github.com/dkozel/graphchat/session"
	"github.com/dkozel/graphchat/tools"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BedrockEngine streams Anthropic models hosted on AWS Bedrock.
type BedrockEngine struct {
	client  *bedrockruntime.Client
	modelID string
	tools   []tools.Tool
	log     *logrus.Entry
}

// NewBedrockEngine requires AWS credentials to be configured in the
// environment.
func NewBedrockEngine(ctx context.Context, modelID string, available []tools.Tool) (*BedrockEngine, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}

	return &BedrockEngine{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
		tools:   available,
		log:     logging.Named("bedrock"),
	}, nil
}

func (e *BedrockEngine) Name() string { return "bedrock" }

func (e *BedrockEngine) Invoke(ctx context.Context, history []session.Message) (*Stream, error) {
	st := newStream()
	msgs := append([]session.Message(nil), history...)
	go func() {
		st.finish(e.run(ctx, st, msgs))
	}()
	return st, nil
}

func (e *BedrockEngine) run(ctx context.Context, st *Stream, msgs []session.Message) error {
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

func (e *BedrockEngine) streamRound(ctx context.Context, st *Stream, msgs []session.Message) (*session.Message, error) {
	body, err := buildBedrockRequest(msgs, e.tools)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build Bedrock request")
	}

	out, err := e.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(e.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to invoke Bedrock model")
	}

	events := out.GetStream()
	defer events.Close()

	acc := newBedrockAccumulator()
	for event := range events.Events() {
		chunk, ok := event.(*brtypes.ResponseStreamMemberChunk)
		if !ok {
			if !st.push(ctx, Other{Value: event}) {
				return nil, ctx.Err()
			}
			continue
		}
		text, err := acc.feed(chunk.Value.Bytes)
		if err != nil {
			return nil, err
		}
		if text != "" {
			if !st.push(ctx, TextDelta{Text: text}) {
				return nil, ctx.Err()
			}
		}
	}
	if err := events.Err(); err != nil {
		return nil, errors.Wrapf(err, "Bedrock stream failed")
	}

	assistant, err := acc.message()
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{"tool_calls": len(assistant.ToolCalls)}).Debug("round complete")
	return assistant, nil
}

// bedrockEvent is the envelope of one Anthropic streaming event as carried
// inside a Bedrock response chunk.
type bedrockEvent struct {
	Type         string `json:"type"`
	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
}

// bedrockAccumulator folds streamed events into the final assistant text and
// tool calls. Tool inputs arrive as partial JSON deltas keyed to the block
// opened by the preceding content_block_start.
type bedrockAccumulator struct {
	text    string
	calls   []session.ToolCall
	pending *pendingToolUse
}

type pendingToolUse struct {
	id    string
	name  string
	input string
}

func newBedrockAccumulator() *bedrockAccumulator {
	return &bedrockAccumulator{}
}

// feed consumes one event payload and returns any text delta it carried.
func (a *bedrockAccumulator) feed(payload []byte) (string, error) {
	var event bedrockEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", errors.Wrapf(err, "failed to parse Bedrock stream event")
	}

	switch event.Type {
	case "content_block_start":
		if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
			a.pending = &pendingToolUse{
				id:   event.ContentBlock.ID,
				name: event.ContentBlock.Name,
			}
		}
	case "content_block_delta":
		if event.Delta == nil {
			break
		}
		switch event.Delta.Type {
		case "text_delta":
			a.text += event.Delta.Text
			return event.Delta.Text, nil
		case "input_json_delta":
			if a.pending != nil {
				a.pending.input += event.Delta.PartialJSON
			}
		}
	case "content_block_stop":
		if a.pending != nil {
			call, err := a.pending.toCall()
			if err != nil {
				return "", err
			}
			a.calls = append(a.calls, call)
			a.pending = nil
		}
	}
	return "", nil
}

func (p *pendingToolUse) toCall() (session.ToolCall, error) {
	var args map[string]interface{}
	if p.input != "" {
		if err := json.Unmarshal([]byte(p.input), &args); err != nil {
			return session.ToolCall{}, errors.Wrapf(err, "failed to parse tool input for '%s'", p.name)
		}
	}
	id := p.id
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	return session.ToolCall{ToolCallID: id, Name: p.name, Args: args}, nil
}

func (a *bedrockAccumulator) message() (*session.Message, error) {
	return &session.Message{
		Role:      session.RoleAssistant,
		Content:   a.text,
		ToolCalls: a.calls,
	}, nil
}

// buildBedrockRequest creates the Anthropic-on-Bedrock request body.
func buildBedrockRequest(messages []session.Message, available []tools.Tool) ([]byte, error) {
	bedrockMessages, systemPrompt := toBedrockMessages(messages)

	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        4096,
		"messages":          bedrockMessages,
	}
	if systemPrompt != "" {
		request["system"] = systemPrompt
	}
	if len(available) > 0 {
		var toolSpecs []map[string]interface{}
		for _, t := range available {
			toolSpecs = append(toolSpecs, map[string]interface{}{
				"name":        t.Name(),
				"description": t.Description(),
				"input_schema": map[string]interface{}{
					"type":       "object",
					"properties": map[string]interface{}{},
				},
			})
		}
		request["tools"] = toolSpecs
	}
	return json.Marshal(request)
}

func toBedrockMessages(messages []session.Message) ([]map[string]interface{}, string) {
	var out []map[string]interface{}
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case session.RoleUser:
			out = append(out, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": msg.Content},
				},
			})
		case session.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				var blocks []map[string]interface{}
				if msg.Content != "" {
					blocks = append(blocks, map[string]interface{}{"type": "text", "text": msg.Content})
				}
				for _, tc := range msg.ToolCalls {
					input := tc.Args
					if input == nil {
						input = map[string]interface{}{}
					}
					blocks = append(blocks, map[string]interface{}{
						"type":  "tool_use",
						"id":    tc.ToolCallID,
						"name":  tc.Name,
						"input": input,
					})
				}
				out = append(out, map[string]interface{}{
					"role":    "assistant",
					"content": blocks,
				})
			} else if msg.Content != "" {
				out = append(out, map[string]interface{}{
					"role": "assistant",
					"content": []map[string]interface{}{
						{"type": "text", "text": msg.Content},
					},
				})
			}
		case session.RoleTool:
			if len(msg.ToolCalls) == 0 {
				continue
			}
			out = append(out, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{
					{
						"type":        "tool_result",
						"tool_use_id": msg.ToolCalls[0].ToolCallID,
						"content":     msg.Content,
					},
				},
			})
		case session.RoleSystem:
			systemPrompt = msg.Content
		}
	}
	return out, systemPrompt
}
