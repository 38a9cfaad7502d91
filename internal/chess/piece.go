package chess

import "strings"

// Color identifies a side.
type Color string

const (
	White Color = "White"
	Black Color = "Black"
)

func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) Valid() bool { return c == White || c == Black }

// PieceType is the kind of a piece regardless of color.
type PieceType string

const (
	Pawn   PieceType = "Pawn"
	Knight PieceType = "Knight"
	Bishop PieceType = "Bishop"
	Rook   PieceType = "Rook"
	Queen  PieceType = "Queen"
	King   PieceType = "King"
)

var pieceValues = map[PieceType]int{
	Pawn:   1,
	Knight: 3,
	Bishop: 3,
	Rook:   5,
	Queen:  9,
	King:   0,
}

func (t PieceType) Valid() bool {
	_, ok := pieceValues[t]
	return ok
}

// Value is the relative material value of the type.
func (t PieceType) Value() int { return pieceValues[t] }

// Letter is the upper-case SAN/FEN letter ("" for pawns in SAN).
func (t PieceType) Letter() string {
	switch t {
	case Knight:
		return "N"
	case Bishop:
		return "B"
	case Rook:
		return "R"
	case Queen:
		return "Q"
	case King:
		return "K"
	}
	return ""
}

// PromotionType maps a promotion letter (q, r, b, n in any case) to a type.
func PromotionType(letter string) (PieceType, bool) {
	switch strings.ToLower(strings.TrimSpace(letter)) {
	case "q", "queen":
		return Queen, true
	case "r", "rook":
		return Rook, true
	case "b", "bishop":
		return Bishop, true
	case "n", "knight":
		return Knight, true
	}
	return "", false
}

func canPromoteTo(t PieceType) bool {
	return t == Queen || t == Rook || t == Bishop || t == Knight
}

// Piece is immutable; the zero value is an empty square.
type Piece struct {
	Color Color     `json:"color"`
	Type  PieceType `json:"type"`
}

func (p Piece) Empty() bool { return p.Type == "" }

func (p Piece) Value() int { return p.Type.Value() }
