package chess

import nchess "github.com/corentings/chess/v2"

var scoreOrder = []PieceType{Queen, Rook, Bishop, Knight, Pawn}

// calculateScores derives the zero-sum material balance from the placement.
// For every piece type the side with more of it lists the surplus.
func calculateScores(board *nchess.Board) Scores {
	counts := map[Color]map[PieceType]int{White: {}, Black: {}}
	for _, np := range board.SquareMap() {
		if p := fromNPiece(np); !p.Empty() && p.Type != King {
			counts[p.Color][p.Type]++
		}
	}

	var s Scores
	s.White.Pieces = []PieceType{}
	s.Black.Pieces = []PieceType{}
	for _, t := range scoreOrder {
		diff := counts[White][t] - counts[Black][t]
		s.White.Score += diff * t.Value()
		for ; diff > 0; diff-- {
			s.White.Pieces = append(s.White.Pieces, t)
		}
		for ; diff < 0; diff++ {
			s.Black.Pieces = append(s.Black.Pieces, t)
		}
	}
	s.Black.Score = -s.White.Score
	return s
}

// hasMatingMaterial reports whether c could still deliver mate with its own
// pieces: any pawn, rook or queen, or at least two minor pieces.
func hasMatingMaterial(board *nchess.Board, c Color) bool {
	minors := 0
	for _, np := range board.SquareMap() {
		p := fromNPiece(np)
		if p.Color != c {
			continue
		}
		switch p.Type {
		case Pawn, Rook, Queen:
			return true
		case Knight, Bishop:
			minors++
		}
	}
	return minors >= 2
}
