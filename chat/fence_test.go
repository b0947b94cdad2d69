package chat

import "testing"

func TestClassifyTransitions(t *testing.T) {
	testCases := []struct {
		name string
		line string
		cur  Mode
		want Mode
	}{
		{"BotStaysOnPlainText", "hello world", ModeBot, ModeBot},
		{"CodeStaysOnPlainText", "x := 1", ModeCode, ModeCode},
		{"ThinkingStaysOnPlainText", "let me think", ModeThinking, ModeThinking},
		{"FenceTogglesBotToCode", "```", ModeBot, ModeCode},
		{"FenceTogglesCodeToBot", "```", ModeCode, ModeBot},
		{"LanguageFenceStillToggles", "```go", ModeBot, ModeCode},
		{"ThinkingFenceFromBot", "```thinking", ModeBot, ModeThinking},
		{"ThinkingFenceFromCode", "```thinking", ModeCode, ModeThinking},
		{"ThinkingFenceWithTrailer", "```thinking aloud", ModeBot, ModeThinking},
		{"BackticksMidLineIgnored", "use ``` to fence", ModeBot, ModeBot},
		{"EmptyLineKeepsMode", "", ModeCode, ModeCode},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.line, tc.cur); got != tc.want {
				t.Errorf("Classify(%q, %v) = %v, want %v", tc.line, tc.cur, got, tc.want)
			}
		})
	}
}

// A plain fence exits thinking mode to bot, not to code: the generic toggle
// only produces code when starting from bot. This transition is deliberate
// and load-bearing for how thinking blocks close.
func TestClassifyFenceExitsThinkingToBot(t *testing.T) {
	if got := Classify("```", ModeThinking); got != ModeBot {
		t.Fatalf("Classify(fence, thinking) = %v, want %v", got, ModeBot)
	}
}

func TestClassifyToggleIsItsOwnInverse(t *testing.T) {
	mode := ModeBot
	mode = Classify("```", mode)
	mode = Classify("```", mode)
	if mode != ModeBot {
		t.Fatalf("double toggle from bot = %v, want %v", mode, ModeBot)
	}
}
