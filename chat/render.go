package chat

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dkozel/graphchat/engine"
	"github.com/dkozel/graphchat/logging"
	"github.com/dkozel/graphchat/session"
	"github.com/sirupsen/logrus"
)

// Renderer consumes an engine output stream and re-assembles text deltas
// into styled display lines. Tool events and unrecognized fragments are
// rendered as their own blocks; state snapshots replace the working history
// without producing output.
type Renderer struct {
	out    io.Writer
	styles Styles
	log    *logrus.Entry
}

func NewRenderer(out io.Writer, styles Styles) *Renderer {
	return &Renderer{
		out:    out,
		styles: styles,
		log:    logging.Named("render"),
	}
}

// Render drains the stream to completion and returns the last acknowledged
// history snapshot, or history unchanged if none arrived. Fragments are
// processed strictly in arrival order. Buffered partial text is flushed as a
// final line at stream end; on cancellation or stream failure it is
// abandoned instead.
func (r *Renderer) Render(ctx context.Context, stream *engine.Stream, history []session.Message) ([]session.Message, error) {
	buf := ""
	mode := ModeBot

	for {
		frag, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return history, err
		}

		switch f := frag.(type) {
		case engine.StateSnapshot:
			history = f.Messages
		case engine.TextDelta:
			buf += f.Text
			for strings.Contains(buf, "\n") {
				var line string
				line, buf, _ = strings.Cut(buf, "\n")
				// The line is styled in the mode it transitions into, so a
				// fence marker line already wears its new mode.
				mode = Classify(line, mode)
				fmt.Fprintln(r.out, r.styles.forMode(mode).Render(line))
			}
		case engine.ToolEvent:
			r.renderToolEvent(f)
		case engine.Other:
			fmt.Fprintln(r.out, r.styles.Info.Render(fmt.Sprintf("%T %v", f.Value, f.Value)))
		}
	}

	if buf != "" {
		fmt.Fprint(r.out, r.styles.forMode(mode).Render(buf))
	}
	r.log.WithFields(logrus.Fields{"messages": len(history), "mode": mode.String()}).Debug("stream drained")
	return history, nil
}

// renderToolEvent prints a visually separated block for a tool call or
// result. It never touches the line buffer or the render mode.
func (r *Renderer) renderToolEvent(ev engine.ToolEvent) {
	fmt.Fprintln(r.out)
	switch ev.Phase {
	case engine.ToolPhaseCall:
		fmt.Fprintln(r.out, r.styles.System.Render(fmt.Sprintf("=== Tool Call: %s ===", ev.Call.Name)))
		for _, k := range sortedArgKeys(ev.Call.Args) {
			fmt.Fprintln(r.out, r.styles.System.Render(fmt.Sprintf("  %s: %v", k, ev.Call.Args[k])))
		}
	case engine.ToolPhaseResult:
		fmt.Fprintln(r.out, r.styles.System.Render(fmt.Sprintf("=== Tool Result: %s ===", ev.Call.Name)))
		for _, line := range strings.Split(strings.TrimRight(ev.Result, "\n"), "\n") {
			fmt.Fprintln(r.out, r.styles.System.Render("  "+line))
		}
	}
	fmt.Fprintln(r.out)
}

func sortedArgKeys(args map[string]interface{}) []string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
