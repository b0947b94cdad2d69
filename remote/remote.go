// Package remote exposes the agent over newline-delimited JSON-RPC 2.0 on
// stdio, for editors and other programmatic clients. It implements a minimal
// protocol surface: initialize, session/new, session/load and
// session/prompt, the last of which streams session/update notifications as
// engine fragments arrive.
package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dkozel/graphchat/engine"
	"github.com/dkozel/graphchat/logging"
	"github.com/dkozel/graphchat/session"
	"github.com/sirupsen/logrus"
)

const protocolVersion = 1

// Server serves the JSON-RPC protocol over one reader/writer pair. Only
// JSON-RPC messages are ever written to out.
type Server struct {
	eng      engine.Engine
	in       *bufio.Reader
	out      *bufio.Writer
	writeMu  sync.Mutex
	sessions map[string]*session.Session
	seq      int
	log      *logrus.Entry
}

func NewServer(eng engine.Engine, in io.Reader, out io.Writer) *Server {
	return &Server{
		eng:      eng,
		in:       bufio.NewReader(in),
		out:      bufio.NewWriter(out),
		sessions: make(map[string]*session.Session),
		log:      logging.Named("remote"),
	}
}

// Run reads requests until EOF or cancellation.
func (s *Server) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := s.in.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("remote: read error: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var req request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.writeError(nil, -32700, "Parse error")
			continue
		}
		s.dispatch(ctx, &req)
	}
}

func (s *Server) dispatch(ctx context.Context, req *request) {
	s.log.WithField("method", req.Method).Debug("dispatch")
	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "session/new":
		s.handleSessionNew(req)
	case "session/load":
		s.handleSessionLoad(req)
	case "session/prompt":
		s.handleSessionPrompt(ctx, req)
	default:
		s.writeError(req.ID, -32601, "Method not found")
	}
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      any        `json:"id,omitempty"`
	Result  any        `json:"result,omitempty"`
	Error   *respError `json:"error,omitempty"`
}

type respError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

func (s *Server) handleInitialize(req *request) {
	s.writeResult(req.ID, map[string]any{
		"protocolVersion": protocolVersion,
		"agentInfo": map[string]any{
			"name":   "graphchat",
			"engine": s.eng.Name(),
		},
	})
}

func (s *Server) handleSessionNew(req *request) {
	s.seq++
	id := fmt.Sprintf("sess-%d", s.seq)
	sess, err := session.New(id)
	if err != nil {
		s.writeError(req.ID, -32000, err.Error())
		return
	}
	s.sessions[id] = sess
	s.writeResult(req.ID, map[string]any{"sessionId": id})
}

func (s *Server) handleSessionLoad(req *request) {
	var params struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.SessionID == "" {
		s.writeError(req.ID, -32602, "Invalid params")
		return
	}
	sess, err := session.Load(params.SessionID)
	if err != nil {
		s.writeError(req.ID, -32000, err.Error())
		return
	}
	s.sessions[params.SessionID] = sess
	s.writeResult(req.ID, map[string]any{
		"sessionId": params.SessionID,
		"messages":  len(sess.Messages),
	})
}

func (s *Server) handleSessionPrompt(ctx context.Context, req *request) {
	var params struct {
		SessionID string `json:"sessionId"`
		Prompt    string `json:"prompt"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Prompt == "" {
		s.writeError(req.ID, -32602, "Invalid params")
		return
	}
	sess, ok := s.sessions[params.SessionID]
	if !ok {
		s.writeError(req.ID, -32000, fmt.Sprintf("unknown session '%s'", params.SessionID))
		return
	}

	sess.AddMessage(session.Message{Role: session.RoleUser, Content: params.Prompt})
	stream, err := s.eng.Invoke(ctx, sess.Messages)
	if err != nil {
		s.writeError(req.ID, -32000, err.Error())
		return
	}

	for {
		frag, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			s.writeError(req.ID, -32000, err.Error())
			return
		}
		switch f := frag.(type) {
		case engine.StateSnapshot:
			sess.SetMessages(f.Messages)
		case engine.TextDelta:
			s.writeUpdate(params.SessionID, map[string]any{
				"sessionUpdate": "agent_message_chunk",
				"content":       map[string]any{"type": "text", "text": f.Text},
			})
		case engine.ToolEvent:
			update := map[string]any{
				"sessionUpdate": "tool_call",
				"toolCallId":    f.Call.ToolCallID,
				"title":         f.Call.Name,
				"status":        "pending",
			}
			if f.Phase == engine.ToolPhaseResult {
				update["sessionUpdate"] = "tool_call_update"
				update["status"] = "completed"
				update["content"] = f.Result
			}
			s.writeUpdate(params.SessionID, update)
		}
	}

	if err := sess.Save(); err != nil {
		s.log.WithError(err).Warn("failed to save session")
	}
	s.writeResult(req.ID, map[string]any{"stopReason": "end_turn"})
}

func (s *Server) writeUpdate(sessionID string, update map[string]any) {
	s.writeMessage(notification{
		JSONRPC: "2.0",
		Method:  "session/update",
		Params: map[string]any{
			"sessionId": sessionID,
			"update":    update,
		},
	})
}

func (s *Server) writeResult(id any, result any) {
	s.writeMessage(response{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeError(id any, code int, message string) {
	s.writeMessage(response{JSONRPC: "2.0", ID: id, Error: &respError{Code: code, Message: message}})
}

func (s *Server) writeMessage(msg any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.WithError(err).Error("failed to marshal message")
		return
	}
	s.out.Write(payload)
	s.out.WriteByte('\n')
	s.out.Flush()
}
