package chess

import "strings"

// StartPosition names a built-in starting layout.
type StartPosition string

const (
	PositionStandard             StartPosition = "Standard"
	PositionCastling             StartPosition = "Castling"
	PositionEnPassant            StartPosition = "EnPassant"
	PositionPromotion            StartPosition = "Promotion"
	PositionCheckmate            StartPosition = "Checkmate"
	PositionStalemate            StartPosition = "Stalemate"
	PositionInsufficientMaterial StartPosition = "InsufficientMaterial"
)

var startPositions = map[StartPosition]string{
	PositionStandard:             StandardFEN,
	PositionCastling:             "r3k2r/pppppppp/8/8/8/8/PPPPPPPP/R3K2R w KQkq - 0 1",
	PositionEnPassant:            "4k3/3p4/8/4P3/8/8/8/4K3 b - - 0 1",
	PositionPromotion:            "7k/4P3/8/8/8/8/8/4K3 w - - 0 1",
	PositionCheckmate:            "6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1",
	PositionStalemate:            "k7/8/2Q5/8/8/8/8/7K w - - 0 1",
	PositionInsufficientMaterial: "8/8/4k3/8/3p4/3K4/8/2N5 w - - 0 1",
}

// LookupPosition resolves a layout name (case-insensitive) to its FEN.
func LookupPosition(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for k, fen := range startPositions {
		if strings.EqualFold(string(k), name) {
			return fen, true
		}
	}
	return "", false
}
