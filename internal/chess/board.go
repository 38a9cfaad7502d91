package chess

import "strings"

// GameStatus is the engine-level state of a game.
type GameStatus string

const (
	StatusNotReady     GameStatus = "NotReady"
	StatusReadyToStart GameStatus = "ReadyToStart"
	StatusInPlay       GameStatus = "InPlay"
	StatusWhiteInCheck GameStatus = "WhiteInCheck"
	StatusBlackInCheck GameStatus = "BlackInCheck"
	StatusWhiteVictory GameStatus = "WhiteVictory"
	StatusBlackVictory GameStatus = "BlackVictory"
	StatusDraw         GameStatus = "Draw"
)

// Playable reports whether moves may still be applied.
func (s GameStatus) Playable() bool {
	switch s {
	case StatusReadyToStart, StatusInPlay, StatusWhiteInCheck, StatusBlackInCheck:
		return true
	}
	return false
}

func (s GameStatus) Finished() bool {
	return s == StatusWhiteVictory || s == StatusBlackVictory || s == StatusDraw
}

func victoryFor(c Color) GameStatus {
	if c == White {
		return StatusWhiteVictory
	}
	return StatusBlackVictory
}

func checkFor(c Color) GameStatus {
	if c == White {
		return StatusWhiteInCheck
	}
	return StatusBlackInCheck
}

type CastlingRights struct {
	WhiteShort bool `json:"WhiteShort"`
	WhiteLong  bool `json:"WhiteLong"`
	BlackShort bool `json:"BlackShort"`
	BlackLong  bool `json:"BlackLong"`
}

// Score is one side's material balance. Pieces lists the piece types this
// side is ahead by.
type Score struct {
	Score  int         `json:"score"`
	Pieces []PieceType `json:"pieces"`
}

type Scores struct {
	White Score `json:"White"`
	Black Score `json:"Black"`
}

func (s Scores) For(c Color) Score {
	if c == White {
		return s.White
	}
	return s.Black
}

// MoveKind tags special moves in the history.
type MoveKind string

const (
	MoveNormal    MoveKind = ""
	MoveCastling  MoveKind = "Castling"
	MoveEnPassant MoveKind = "EnPassant"
	MovePromotion MoveKind = "Promotion"
)

// Move is one ply. Promotion is set only for pawn moves onto the last rank.
type Move struct {
	From      Square    `json:"from"`
	To        Square    `json:"to"`
	Kind      MoveKind  `json:"type,omitempty"`
	Promotion PieceType `json:"promotion,omitempty"`
}

// LAN renders the move as long algebraic text, e.g. "e2e4" or "e7e8q".
func (m Move) LAN() string {
	s := m.From.String() + m.To.String()
	if m.Promotion != "" {
		s += strings.ToLower(m.Promotion.Letter())
	}
	return s
}

// Duration is one side's clock in milliseconds.
type Duration struct {
	Remaining int64 `json:"remaining"`
	Increment int64 `json:"increment"`
}

type Durations struct {
	White Duration `json:"White"`
	Black Duration `json:"Black"`
}

func (d *Durations) of(c Color) *Duration {
	if c == White {
		return &d.White
	}
	return &d.Black
}

// Result is the PGN result token for a status.
func Result(s GameStatus) string {
	switch s {
	case StatusWhiteVictory:
		return "1-0"
	case StatusBlackVictory:
		return "0-1"
	case StatusDraw:
		return "1/2-1/2"
	}
	return "*"
}
