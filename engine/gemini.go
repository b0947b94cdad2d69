package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dkozel/graphchat/errors"
	"github.com/dkozel/graphchat/logging"
	"github.com/dkozel/graphchat/session"
	"github.com/dkozel/graphchat/tools"
	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiEngine streams agent turns through the Google Gemini API. Function
// calls are executed inline as response parts arrive; the tool output is
// folded into the assistant's reply.
type GeminiEngine struct {
	model *genai.GenerativeModel
	tools []tools.Tool
	log   *logrus.Entry
}

// NewGeminiEngine requires the GEMINI_API_KEY environment variable.
func NewGeminiEngine(ctx context.Context, modelName string, available []tools.Tool) (*GeminiEngine, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}

	model := client.GenerativeModel(modelName)
	model.Tools = toGeminiTools(available)

	return &GeminiEngine{
		model: model,
		tools: available,
		log:   logging.Named("gemini"),
	}, nil
}

func (e *GeminiEngine) Name() string { return "gemini" }

func (e *GeminiEngine) Invoke(ctx context.Context, history []session.Message) (*Stream, error) {
	if len(history) == 0 {
		return nil, errors.New("cannot invoke Gemini with an empty history")
	}
	st := newStream()
	msgs := append([]session.Message(nil), history...)
	go func() {
		st.finish(e.run(ctx, st, msgs))
	}()
	return st, nil
}

func (e *GeminiEngine) run(ctx context.Context, st *Stream, msgs []session.Message) error {
	contents := toGeminiContents(msgs)
	last := contents[len(contents)-1]

	chatSession := e.model.StartChat()
	chatSession.History = contents[:len(contents)-1]

	iter := chatSession.SendMessageStream(ctx, last.Parts...)
	var text strings.Builder

	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "Gemini stream failed")
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			switch v := part.(type) {
			case genai.Text:
				text.WriteString(string(v))
				if !st.push(ctx, TextDelta{Text: string(v)}) {
					return ctx.Err()
				}
			case genai.FunctionCall:
				// The result block already shows the output; it is folded
				// into the assistant message for history only, not re-pushed
				// as display text.
				result := e.callFunction(ctx, st, v)
				text.WriteString(result)
				if ctx.Err() != nil {
					return ctx.Err()
				}
			default:
				if !st.push(ctx, Other{Value: part}) {
					return ctx.Err()
				}
			}
		}
	}

	msgs = append(msgs, session.Message{Role: session.RoleAssistant, Content: text.String()})
	st.push(ctx, StateSnapshot{Messages: msgs})
	e.log.WithFields(logrus.Fields{"messages": len(msgs)}).Debug("turn complete")
	return nil
}

// callFunction executes a model-requested function inline and returns the
// text to fold into the reply. Failures are reported as text so the model
// and the user both see them.
func (e *GeminiEngine) callFunction(ctx context.Context, st *Stream, fc genai.FunctionCall) string {
	args, _ := fc.Args["args"].(map[string]interface{})
	call := session.ToolCall{
		ToolCallID: uuid.NewString(),
		Name:       fc.Name,
		Args:       args,
	}
	st.push(ctx, ToolEvent{Phase: ToolPhaseCall, Call: call})

	result, err := executeTool(ctx, e.tools, call)
	if err != nil {
		result = fmt.Sprintf("Error executing tool '%s': %v", fc.Name, err)
	}
	st.push(ctx, ToolEvent{Phase: ToolPhaseResult, Call: call, Result: result})
	return result
}

func toGeminiContents(messages []session.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range messages {
		role := "user"
		if msg.Role == session.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return contents
}

// toGeminiTools declares every tool with its arguments nested under a single
// "args" object; Gemini models handle the indirection better than a flat
// open-ended schema.
func toGeminiTools(ts []tools.Tool) []*genai.Tool {
	if len(ts) == 0 {
		return nil
	}
	var decls []*genai.FunctionDeclaration
	for _, t := range ts {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"args": {
						Type:        genai.TypeObject,
						Description: "Arguments for the function call, as a map.",
					},
				},
				Required: []string{"args"},
			},
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
