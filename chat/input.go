package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// multilineSentinel opens multi-line entry when it leads the first line and
// closes it when a line consists of nothing else.
const multilineSentinel = "`"

// Reader captures logical user inputs from a line-oriented terminal. It
// returns raw text with case preserved; recognizing exit keywords and
// commands is the caller's concern.
//
// The blocking read runs in a dedicated goroutine feeding a channel, so a
// Capture suspended at the prompt can be abandoned the moment its context is
// cancelled. The goroutine itself stays parked on the underlying Read until
// the process exits; only the suspension point is released.
type Reader struct {
	out    io.Writer
	styles Styles
	lines  chan lineResult
}

type lineResult struct {
	text string
	err  error
}

func NewReader(in io.Reader, out io.Writer, styles Styles) *Reader {
	r := &Reader{
		out:    out,
		styles: styles,
		lines:  make(chan lineResult),
	}
	go r.readLoop(bufio.NewReader(in))
	return r
}

// readLoop delivers lines without their terminators. A final line with no
// trailing newline is still delivered before io.EOF; any error ends the loop.
func (r *Reader) readLoop(in *bufio.Reader) {
	for {
		line, err := in.ReadString('\n')
		if err != nil {
			if err == io.EOF && line != "" {
				r.lines <- lineResult{text: trimLineEnding(line)}
			}
			r.lines <- lineResult{err: err}
			return
		}
		r.lines <- lineResult{text: trimLineEnding(line)}
	}
}

// Capture reads one logical input. A trimmed line starting with the backtick
// sentinel switches to multi-line mode: the rest of that line becomes the
// first collected line and subsequent lines are collected verbatim until a
// line holding just the sentinel. Returns "" for blank input, io.EOF when
// the terminal closes, and ctx.Err() if cancelled while waiting.
func (r *Reader) Capture(ctx context.Context) (string, error) {
	fmt.Fprint(r.out, r.styles.Human.Render("You: "))
	first, err := r.readLine(ctx)
	if err != nil {
		return "", err
	}

	first = strings.TrimSpace(first)
	if !strings.HasPrefix(first, multilineSentinel) {
		return first, nil
	}

	lines := []string{strings.TrimPrefix(first, multilineSentinel)}
	for {
		fmt.Fprint(r.out, r.styles.Multi.Render(".... "))
		line, err := r.readLine(ctx)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(line) == multilineSentinel {
			break
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

func (r *Reader) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-r.lines:
		return res.text, res.err
	}
}

func trimLineEnding(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
