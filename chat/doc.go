// Package chat implements the interactive terminal front-end: input capture,
// incremental stream rendering, and the conversation loop that ties them to
// an engine.
//
// # Components
//
//   - Reader: captures logical user inputs, including explicit multi-line
//     entry delimited by a backtick sentinel.
//   - Classify / Mode: a pure fence-tracking state machine deciding whether
//     a completed line opens or closes a code or thinking fence.
//   - Renderer: drains an engine.Stream, re-assembling text deltas into
//     styled lines and rendering tool events as separated blocks.
//   - Session: the turn loop. It owns the conversation history and replaces
//     it wholesale with each engine-acknowledged snapshot.
//
// # Concurrency
//
// A Session is strictly single-turn: input capture and stream rendering
// never run concurrently, and history is only written between turns.
// Cancellation of the supplied context abandons the current suspension point
// without flushing partial output.
//
// # Styling
//
// All terminal presentation flows through a Styles value supplied at
// construction; see DefaultStyles and StylesFromConfig.
package chat
