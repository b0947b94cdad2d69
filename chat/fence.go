package chat

import "strings"

// Mode is the styling context applied to streamed output lines. It changes
// only when a completed line opens or closes a markdown-style fence.
type Mode int

const (
	// ModeBot is plain assistant text, the mode every turn starts in.
	ModeBot Mode = iota
	// ModeThinking is reasoning text inside a ```thinking fence.
	ModeThinking
	// ModeCode is text inside a plain ``` fence.
	ModeCode
)

func (m Mode) String() string {
	switch m {
	case ModeThinking:
		return "thinking"
	case ModeCode:
		return "code"
	default:
		return "bot"
	}
}

const (
	fenceMarker   = "```"
	thinkingFence = "```thinking"
)

// Classify returns the mode in effect after observing line. Only the start
// of a completed line is consulted; a ```thinking opener always wins over
// the plain fence toggle.
//
// A plain fence leaves ModeThinking for ModeBot, not ModeCode. That makes
// the thinking fence's closing ``` behave as a close rather than a code
// opener, and it is how the fence logic has always worked.
func Classify(line string, cur Mode) Mode {
	switch {
	case strings.HasPrefix(line, thinkingFence):
		return ModeThinking
	case strings.HasPrefix(line, fenceMarker):
		if cur == ModeBot {
			return ModeCode
		}
		return ModeBot
	default:
		return cur
	}
}
