// Package trigger exposes the daemon's local control surface: an owner-only
// Unix domain socket accepting one text token per connection, mapped to a
// pipeline trigger event. The client half of the protocol lives here too so
// the CLI and the daemon can never drift apart.
package trigger

// Event is one inbound control request.
type Event int

const (
	// EventUnknown is any token the protocol does not recognize. It is
	// rejected with no side effect.
	EventUnknown Event = iota
	// EventCopy records one utterance and copies the text.
	EventCopy
	// EventPaste additionally simulates Ctrl+V after copying.
	EventPaste
	// EventPasteTerminal simulates Ctrl+Shift+V for terminal targets.
	EventPasteTerminal
	// EventStartContinuous begins a continuous dictation session.
	EventStartContinuous
	// EventStopContinuous ends the continuous session and surfaces it.
	EventStopContinuous
)

// Wire tokens, one per event. A request is the token followed by a newline.
const (
	TokenCopy            = "TRIGGER_COPY"
	TokenPaste           = "TRIGGER_PASTE"
	TokenPasteTerminal   = "TRIGGER_PASTE_TERMINAL"
	TokenStartContinuous = "TRIGGER_START_CONTINUOUS"
	TokenStopContinuous  = "TRIGGER_STOP_CONTINUOUS"
)

// Reply prefixes sent back on the same connection.
const (
	ReplyOK       = "OK"
	ReplyNoSpeech = "NO_SPEECH"
	ReplyBusy     = "BUSY"
	ReplyError    = "ERROR"
)

// ParseToken maps a wire token to its Event. Unrecognized tokens map to
// EventUnknown.
func ParseToken(token string) Event {
	switch token {
	case TokenCopy:
		return EventCopy
	case TokenPaste:
		return EventPaste
	case TokenPasteTerminal:
		return EventPasteTerminal
	case TokenStartContinuous:
		return EventStartContinuous
	case TokenStopContinuous:
		return EventStopContinuous
	default:
		return EventUnknown
	}
}

func (e Event) String() string {
	switch e {
	case EventCopy:
		return "copy"
	case EventPaste:
		return "paste"
	case EventPasteTerminal:
		return "paste_terminal"
	case EventStartContinuous:
		return "start_continuous"
	case EventStopContinuous:
		return "stop_continuous"
	default:
		return "unknown"
	}
}
