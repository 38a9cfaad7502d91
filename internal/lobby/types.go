package lobby

import "github.com/park285/cheese-chess-server/internal/chess"

// State represents the lifecycle of a lobby.
type State string

const (
	StateEmpty              State = "EMPTY"
	StateWaitingForOpponent State = "WAITING_FOR_OPPONENT"
	StateActive             State = "ACTIVE"
	StateFinished           State = "FINISHED"
)

// OfferKind is a negotiable proposal that needs the opponent's answer.
type OfferKind string

const (
	OfferDraw      OfferKind = "draw"
	OfferUndo      OfferKind = "undo"
	OfferPlayAgain OfferKind = "play_again"
)

// Player is one seat's identity. Token is private to the player and survives
// reconnects; ID is safe to share with the opponent.
type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Token    string `json:"-"`
	IsOnline bool   `json:"isOnline"`
}

// Offer is the single outstanding proposal of a lobby.
type Offer struct {
	Kind OfferKind
	From chess.Color
}

// Seat pairs a player with its color.
type Seat struct {
	Player Player
	Color  chess.Color
}

// AcceptResult describes what an accepted offer changed.
type AcceptResult struct {
	Kind OfferKind
	// Offerer is the color that made the offer (the undo color for undos).
	Offerer chess.Color
	Status  chess.GameStatus
	// FEN is the position after an accepted undo.
	FEN string
}

// Errors
var (
	ErrLobbyNotFound  = errf("lobby not found")
	ErrLobbyFull      = errf("lobby already has two players")
	ErrAlreadyStarted = errf("game already started")
	ErrNotReady       = errf("both players must be online to start")
	ErrUnauthorized   = errf("action not allowed")

	// the following all match ErrUnauthorized under errors.Is
	ErrInvalidToken     = authf("token does not match a seat")
	ErrAlreadyOnline    = authf("player is already online")
	ErrNotYourTurn      = authf("not your turn")
	ErrGameNotInPlay    = authf("game is not in play")
	ErrGameNotFinished  = authf("game is not finished")
	ErrOfferOutstanding = authf("an offer is already outstanding")
	ErrNoOffer          = authf("no matching offer")
	ErrTooLateToAbort   = authf("too many moves played to abort")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

type authErr string

func (e authErr) Error() string        { return string(e) }
func (e authErr) Is(target error) bool { return target == ErrUnauthorized }
func authf(s string) error             { return authErr(s) }
