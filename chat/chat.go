package chat

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dkozel/graphchat/engine"
	"github.com/dkozel/graphchat/errors"
	"github.com/dkozel/graphchat/logging"
	"github.com/dkozel/graphchat/session"
	"github.com/sirupsen/logrus"
)

var exitKeywords = []string{"exit", "quit", "bye"}

const historyCommand = "/history"

// Session drives the conversation loop: capture input, submit the full
// history to the engine, render the stream, adopt the returned snapshot,
// repeat. Exactly one engine invocation is outstanding at a time and the
// history is only written between turns.
type Session struct {
	sess     *session.Session
	eng      engine.Engine
	reader   *Reader
	renderer *Renderer
	out      io.Writer
	styles   Styles
	log      *logrus.Entry
}

func New(sess *session.Session, eng engine.Engine, in io.Reader, out io.Writer, styles Styles) *Session {
	return &Session{
		sess:     sess,
		eng:      eng,
		reader:   NewReader(in, out, styles),
		renderer: NewRenderer(out, styles),
		out:      out,
		styles:   styles,
		log:      logging.Named("chat"),
	}
}

// Run loops until an exit keyword, end of input, or cancellation. Engine and
// stream failures are reported as non-fatal notices; the loop continues with
// the history at its last acknowledged snapshot. The goodbye line prints on
// every shutdown path, interrupts included.
func (s *Session) Run(ctx context.Context) error {
	s.printWelcome()
	defer fmt.Fprintln(s.out, s.styles.Bot.Render("Bot: Goodbye!"))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		input, err := s.reader.Capture(ctx)
		if err == io.EOF {
			// End of input terminates the session like an exit keyword.
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if input == "" {
			continue
		}

		lowered := strings.ToLower(input)
		if isExitKeyword(lowered) {
			return nil
		}
		if lowered == historyCommand {
			s.printHistory()
			continue
		}

		s.sess.AddMessage(session.Message{Role: session.RoleUser, Content: input})
		fmt.Fprintln(s.out)
		fmt.Fprintln(s.out, s.styles.Info.Render("Invoking Agent..."))
		fmt.Fprintln(s.out)

		if err := s.runTurn(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.WithFields(logrus.Fields{"kind": errors.KindOf(err).String()}).WithError(err).Warn("turn failed")
			fmt.Fprintln(s.out, s.styles.Bot.Render(fmt.Sprintf("Bot: An error occurred, but we will continue: %v", err)))
		}
		fmt.Fprintln(s.out)
		fmt.Fprintln(s.out)
	}
}

// runTurn performs one engine invocation and adopts the resulting snapshot.
func (s *Session) runTurn(ctx context.Context) error {
	stream, err := s.eng.Invoke(ctx, s.sess.Messages)
	if err != nil {
		return errors.WithKind(errors.KindInvoke, err)
	}

	msgs, err := s.renderer.Render(ctx, stream, s.sess.Messages)
	// The renderer hands back the latest snapshot even on failure; adopting
	// it keeps the history at the last state the engine acknowledged.
	s.sess.SetMessages(msgs)
	if err != nil {
		return err
	}

	if err := s.sess.Save(); err != nil {
		s.log.WithError(err).Warn("failed to save session")
		fmt.Fprintln(s.out, s.styles.Info.Render(fmt.Sprintf("Warning: failed to save session: %v", err)))
	}
	return nil
}

// printHistory pretty-prints the current history. Only runs between turns,
// never concurrently with a stream.
func (s *Session) printHistory() {
	for _, msg := range s.sess.Messages {
		style := s.styles.System
		switch msg.Role {
		case session.RoleUser:
			style = s.styles.Human
		case session.RoleAssistant:
			style = s.styles.Bot
		}
		fmt.Fprintln(s.out, style.Render(msg.Summary()))
	}
}

func (s *Session) printWelcome() {
	fmt.Fprintln(s.out, s.styles.Info.Render(fmt.Sprintf("Using engine: %s", s.eng.Name())))
	fmt.Fprintln(s.out, s.styles.Info.Render("Welcome! Start with ` to enter multi-line mode."))
	fmt.Fprintln(s.out, s.styles.Info.Render("In multi-line mode, type a line with just ` to end input."))
	fmt.Fprintln(s.out, s.styles.Info.Render(`Type "exit", "quit", or "bye" to end the chat.`))
	fmt.Fprintln(s.out)
}

func isExitKeyword(lowered string) bool {
	for _, kw := range exitKeywords {
		if lowered == kw {
			return true
		}
	}
	return false
}
