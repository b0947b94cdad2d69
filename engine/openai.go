package engine

import (
	"context"
	"encoding/json"
	"os"

	"github.com/dkozel/graphchat/errors"
	"github.com/dkozel/graphchat/logging"
	"github.com/dkozel/graphchat/session"
	"github.com/dkozel/graphchat/tools"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/sirupsen/logrus"
)

// OpenAIEngine streams agent turns through the OpenAI Chat Completions API.
type OpenAIEngine struct {
	client *openai.Client
	model  string
	tools  []tools.Tool
	log    *logrus.Entry
}

// NewOpenAIEngine requires the OPENAI_API_KEY environment variable and
// honors OPENAI_BASE_URL for compatible endpoints.
func NewOpenAIEngine(ctx context.Context, modelName string, available []tools.Tool) (*OpenAIEngine, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)
	return &OpenAIEngine{
		client: &client,
		model:  modelName,
		tools:  available,
		log:    logging.Named("openai"),
	}, nil
}

func (e *OpenAIEngine) Name() string { return "openai" }

func (e *OpenAIEngine) Invoke(ctx context.Context, history []session.Message) (*Stream, error) {
	st := newStream()
	msgs := append([]session.Message(nil), history...)
	go func() {
		st.finish(e.run(ctx, st, msgs))
	}()
	return st, nil
}

func (e *OpenAIEngine) run(ctx context.Context, st *Stream, msgs []session.Message) error {
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

func (e *OpenAIEngine) streamRound(ctx context.Context, st *Stream, msgs []session.Message) (*session.Message, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(e.model),
		Messages: toOpenAIMessages(msgs),
		Tools:    toOpenAITools(e.tools),
	}

	stream := e.client.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				if !st.push(ctx, TextDelta{Text: choice.Delta.Content}) {
					return nil, ctx.Err()
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, errors.Wrapf(err, "OpenAI stream failed")
	}
	if len(acc.Choices) == 0 {
		return &session.Message{Role: session.RoleAssistant}, nil
	}

	choice := acc.Choices[0].Message
	assistant := &session.Message{Role: session.RoleAssistant, Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		var args map[string]interface{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, errors.Wrapf(err, "failed to unmarshal function call arguments")
			}
		}
		assistant.ToolCalls = append(assistant.ToolCalls, session.ToolCall{
			ToolCallID: tc.ID,
			Name:       tc.Function.Name,
			Args:       args,
		})
	}
	e.log.WithFields(logrus.Fields{"tool_calls": len(assistant.ToolCalls)}).Debug("round complete")
	return assistant, nil
}

// toOpenAIMessages converts the internal history to OpenAI chat messages.
func toOpenAIMessages(messages []session.Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleAssistant:
			assistant := openai.ChatCompletionMessage{
				Role:    "assistant",
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				args, err := json.Marshal(tc.Args)
				if err != nil {
					continue
				}
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnion{
					ID:   tc.ToolCallID,
					Type: "function",
					Function: openai.ChatCompletionMessageFunctionToolCallFunction{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, assistant.ToParam())
		case session.RoleTool:
			// Tool results need the originating call ID; drop malformed ones.
			if len(msg.ToolCalls) != 1 {
				continue
			}
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCalls[0].ToolCallID))
		case session.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

// toOpenAITools converts the tool set to OpenAI function definitions with a
// generic object schema; the model infers argument shapes from the
// descriptions.
func toOpenAITools(ts []tools.Tool) []openai.ChatCompletionToolUnionParam {
	if len(ts) == 0 {
		return nil
	}
	var out []openai.ChatCompletionToolUnionParam
	for _, t := range ts {
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name(),
			Description: openai.String(t.Description()),
			Parameters: openai.FunctionParameters{
				"type":       "object",
				"properties": map[string]any{},
			},
		}))
	}
	return out
}
