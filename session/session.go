// Package session holds the conversation history shared between the chat
// loop and the engine backends, and persists it as JSON on disk.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Message roles. The "tool" role carries a tool result addressed to the
// assistant's originating tool call.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// ToolCall records a tool invocation requested by the assistant.
type ToolCall struct {
	ToolCallID string                 `json:"tool_call_id"`
	Name       string                 `json:"name"`
	Args       map[string]interface{} `json:"args,omitempty"`
}

// Message is one entry of the conversation history.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Session is a named conversation persisted under .graphchat/sessions.
type Session struct {
	Name     string    `json:"name"`
	Engine   string    `json:"engine,omitempty"`
	Model    string    `json:"model,omitempty"`
	Messages []Message `json:"messages"`
	path     string
}

// New creates a new session.
func New(name string) (*Session, error) {
	path, err := sessionPath(name)
	if err != nil {
		return nil, err
	}
	return &Session{
		Name:     name,
		Messages: []Message{},
		path:     path,
	}, nil
}

// Load loads an existing session from disk.
func Load(name string) (*Session, error) {
	path, err := sessionPath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read session file %s: %w", path, err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("could not parse session file %s: %w", path, err)
	}
	s.path = path
	return &s, nil
}

// Save writes the current session state to disk.
func (s *Session) Save() error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	return os.WriteFile(s.path, data, 0o644)
}

// AddMessage appends a message to the history.
func (s *Session) AddMessage(msg Message) {
	s.Messages = append(s.Messages, msg)
}

// SetMessages replaces the history wholesale with an engine-acknowledged
// snapshot. The slice is copied so callers cannot alias the stored history.
func (s *Session) SetMessages(msgs []Message) {
	s.Messages = append([]Message(nil), msgs...)
}

// Summary renders one message as "ROLE: content" for history listings.
func (m Message) Summary() string {
	role := strings.ToUpper(m.Role)
	if len(m.ToolCalls) > 0 && m.Role == RoleAssistant {
		names := make([]string, 0, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			names = append(names, tc.Name)
		}
		return fmt.Sprintf("%s: [tool calls: %s] %s", role, strings.Join(names, ", "), m.Content)
	}
	return fmt.Sprintf("%s: %s", role, m.Content)
}

func sessionPath(name string) (string, error) {
	dir := filepath.Join(".graphchat", "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("could not create session directory: %w", err)
	}
	return filepath.Join(dir, fmt.Sprintf("%s.json", name)), nil
}
