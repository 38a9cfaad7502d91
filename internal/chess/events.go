package chess

// EventKind names a domain event emitted by an Engine.
type EventKind string

const (
	EventGameCreated      EventKind = "game_created"
	EventMoveApplied      EventKind = "move_applied"
	EventStatusChanged    EventKind = "status_changed"
	EventPositionRestored EventKind = "position_restored"
)

type Event struct {
	Kind   EventKind
	Move   Move
	SAN    string
	FEN    string
	Status GameStatus
}

// Listener receives engine events synchronously, on the caller's goroutine.
type Listener func(Event)

// RepetitionRule decides repetition draws. history holds the FEN after every
// ply, the current position last.
type RepetitionRule interface {
	IsRepetition(history []string) bool
}
