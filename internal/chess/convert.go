package chess

import (
	"fmt"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
)

var nchessTypes = map[PieceType]nchess.PieceType{
	Pawn:   nchess.Pawn,
	Knight: nchess.Knight,
	Bishop: nchess.Bishop,
	Rook:   nchess.Rook,
	Queen:  nchess.Queen,
	King:   nchess.King,
}

func toNSquare(sq Square) nchess.Square {
	if !sq.Valid() {
		return nchess.NoSquare
	}
	return nchess.NewSquare(nchess.File(sq.File()-1), nchess.Rank(sq.Rank()-1))
}

func fromNSquare(sq nchess.Square) Square {
	if sq < nchess.A1 || sq > nchess.H8 {
		return NoSquare
	}
	return squareAt(int(sq.File())+1, int(sq.Rank())+1)
}

func toNColor(c Color) nchess.Color {
	if c == White {
		return nchess.White
	}
	return nchess.Black
}

func fromNColor(c nchess.Color) Color {
	if c == nchess.White {
		return White
	}
	return Black
}

func fromNType(t nchess.PieceType) PieceType {
	for ours, theirs := range nchessTypes {
		if theirs == t {
			return ours
		}
	}
	return ""
}

func fromNPiece(p nchess.Piece) Piece {
	if p == nchess.NoPiece {
		return Piece{}
	}
	return Piece{Color: fromNColor(p.Color()), Type: fromNType(p.Type())}
}

func toNPiece(p Piece) nchess.Piece {
	return nchess.NewPiece(nchessTypes[p.Type], toNColor(p.Color))
}

// moveFrom converts a move generated or decoded by nchess. Tags must be set,
// which holds for ValidMoves and notation decoders given a position.
func moveFrom(nm *nchess.Move) Move {
	m := Move{From: fromNSquare(nm.S1()), To: fromNSquare(nm.S2())}
	switch {
	case nm.HasTag(nchess.KingSideCastle), nm.HasTag(nchess.QueenSideCastle):
		m.Kind = MoveCastling
	case nm.HasTag(nchess.EnPassant):
		m.Kind = MoveEnPassant
	case nm.Promo() != nchess.NoPieceType:
		m.Kind = MovePromotion
		m.Promotion = fromNType(nm.Promo())
	}
	return m
}

// nchess decodes FEN through a package-level rank buffer, so decoding is
// serialized across engines.
var fenMu sync.Mutex

func newGame(fen string) (*nchess.Game, error) {
	fenMu.Lock()
	opt, err := nchess.FEN(fen)
	fenMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	return nchess.NewGame(opt), nil
}

// replay seeds a game with root and plays moves on it in UCI notation.
func replay(root string, moves []Move) (*nchess.Game, error) {
	g, err := newGame(root)
	if err != nil {
		return nil, err
	}
	for _, m := range moves {
		if err := g.PushNotationMove(m.LAN(), nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("%w: replay %s: %v", ErrInvalidPosition, m.LAN(), err)
		}
	}
	return g, nil
}

// kingAttacked reports whether c's king is attacked on board. The attacking
// side's king is lifted so that nchess lists every capture of c's king,
// pinned attackers included; contact between the kings is checked directly.
func kingAttacked(board map[nchess.Square]nchess.Piece, c Color) bool {
	target, enemy := nchess.NoSquare, nchess.NoSquare
	rest := make(map[nchess.Square]nchess.Piece, len(board))
	for sq, p := range board {
		if p.Type() == nchess.King {
			if fromNColor(p.Color()) == c {
				target = sq
			} else {
				enemy = sq
				continue
			}
		}
		rest[sq] = p
	}
	if target == nchess.NoSquare {
		return false
	}
	if enemy != nchess.NoSquare && kingsTouch(target, enemy) {
		return true
	}

	turn := "w"
	if c == White {
		turn = "b"
	}
	g, err := newGame(nchess.NewBoard(rest).String() + " " + turn + " - - 0 1")
	if err != nil {
		return false
	}
	for _, m := range g.ValidMoves() {
		if m.S2() == target {
			return true
		}
	}
	return false
}

func kingsTouch(a, b nchess.Square) bool {
	df := int(a.File()) - int(b.File())
	dr := int(a.Rank()) - int(b.Rank())
	return df >= -1 && df <= 1 && dr >= -1 && dr <= 1
}

// sideInCheck reports whether the side to move in g is in check.
func sideInCheck(g *nchess.Game) bool {
	if moves := g.Moves(); len(moves) > 0 {
		return moves[len(moves)-1].HasTag(nchess.Check)
	}
	pos := g.Position()
	return kingAttacked(pos.Board().SquareMap(), fromNColor(pos.Turn()))
}

// withHalfMove replaces the half-move field of a six-field FEN.
func withHalfMove(fen string, n int) string {
	fields := strings.Fields(fen)
	if len(fields) != 6 {
		return fen
	}
	fields[4] = fmt.Sprint(n)
	return strings.Join(fields, " ")
}

// placementKey is the FEN without its two counters.
func placementKey(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, " ")
}
