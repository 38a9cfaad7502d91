package chess

import (
	"fmt"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

const (
	StandardFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

	// MaxPositionLength bounds any position text accepted from outside.
	MaxPositionLength  = 100
	minPlacementLength = len("8/8/8/8/8/8/8/8")
)

var fenDefaults = []string{"", "w", "-", "-", "0", "1"}

// Position is a validated position that can seed a game.
type Position struct {
	game     *nchess.Game
	halfMove int
}

func (p *Position) FEN() string { return p.game.FEN() }

func (p *Position) Turn() Color { return fromNColor(p.game.Position().Turn()) }

func (p *Position) PieceAt(sq Square) Piece {
	return fromNPiece(p.game.Position().Board().Piece(toNSquare(sq)))
}

// ParseFEN reads board-exchange text. Missing trailing fields take defaults:
// White to move, no castling, no en passant, half-move 0, full-move 1.
// Castling rights without the king and rook on their home squares are
// dropped. A position whose side not to move is in check is rejected.
func ParseFEN(fen string) (*Position, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPosition)
	}
	if len(fen) > MaxPositionLength {
		return nil, fmt.Errorf("%w: longer than %d characters", ErrInvalidPosition, MaxPositionLength)
	}
	fields := strings.Fields(fen)
	if len(fields[0]) < minPlacementLength {
		return nil, fmt.Errorf("%w: placement too short", ErrInvalidPosition)
	}
	if len(fields) > len(fenDefaults) {
		return nil, fmt.Errorf("%w: too many fields", ErrInvalidPosition)
	}
	return loadFields(append(fields, fenDefaults[len(fields):]...))
}

func loadFields(fields []string) (*Position, error) {
	castling, err := parseCastling(fields[2])
	if err != nil {
		return nil, err
	}
	fields[2] = castling.String()
	half, err := strconv.Atoi(fields[4])
	if err != nil || half < 0 {
		return nil, fmt.Errorf("%w: half-move clock %q", ErrInvalidPosition, fields[4])
	}

	g, err := newGame(strings.Join(fields, " "))
	if err != nil {
		return nil, err
	}
	board := g.Position().Board().SquareMap()
	if err := checkKings(board); err != nil {
		return nil, err
	}
	if kept := castling.within(board); kept != castling {
		fields[2] = kept.String()
		if g, err = newGame(strings.Join(fields, " ")); err != nil {
			return nil, err
		}
	}

	idle := fromNColor(g.Position().Turn()).Opponent()
	if kingAttacked(board, idle) {
		return nil, fmt.Errorf("%w: %s is in check but not to move", ErrInvalidPosition, idle)
	}
	return &Position{game: g, halfMove: half}, nil
}

func checkKings(board map[nchess.Square]nchess.Piece) error {
	var white, black int
	for _, p := range board {
		switch p {
		case nchess.WhiteKing:
			white++
		case nchess.BlackKing:
			black++
		}
	}
	if white != 1 || black != 1 {
		return fmt.Errorf("%w: each side needs exactly one king", ErrInvalidPosition)
	}
	return nil
}

func parseCastling(s string) (CastlingRights, error) {
	var c CastlingRights
	if s == "-" {
		return c, nil
	}
	for _, r := range s {
		switch r {
		case 'K':
			c.WhiteShort = true
		case 'Q':
			c.WhiteLong = true
		case 'k':
			c.BlackShort = true
		case 'q':
			c.BlackLong = true
		default:
			return c, fmt.Errorf("%w: castling %q", ErrInvalidPosition, s)
		}
	}
	return c, nil
}

func castlingFrom(cr nchess.CastleRights) CastlingRights {
	return CastlingRights{
		WhiteShort: cr.CanCastle(nchess.White, nchess.KingSide),
		WhiteLong:  cr.CanCastle(nchess.White, nchess.QueenSide),
		BlackShort: cr.CanCastle(nchess.Black, nchess.KingSide),
		BlackLong:  cr.CanCastle(nchess.Black, nchess.QueenSide),
	}
}

// within keeps only the rights whose king and rook still stand at home.
func (c CastlingRights) within(board map[nchess.Square]nchess.Piece) CastlingRights {
	if board[nchess.E1] != nchess.WhiteKing {
		c.WhiteShort, c.WhiteLong = false, false
	}
	if board[nchess.H1] != nchess.WhiteRook {
		c.WhiteShort = false
	}
	if board[nchess.A1] != nchess.WhiteRook {
		c.WhiteLong = false
	}
	if board[nchess.E8] != nchess.BlackKing {
		c.BlackShort, c.BlackLong = false, false
	}
	if board[nchess.H8] != nchess.BlackRook {
		c.BlackShort = false
	}
	if board[nchess.A8] != nchess.BlackRook {
		c.BlackLong = false
	}
	return c
}

// String renders rights in KQkq order, "-" when none remain.
func (c CastlingRights) String() string {
	s := ""
	if c.WhiteShort {
		s += "K"
	}
	if c.WhiteLong {
		s += "Q"
	}
	if c.BlackShort {
		s += "k"
	}
	if c.BlackLong {
		s += "q"
	}
	if s == "" {
		return "-"
	}
	return s
}

// ParseLAN reads long algebraic move text such as "e2e4" or "e7e8q".
func ParseLAN(text string) (from, to Square, promo PieceType, err error) {
	t := strings.ToLower(strings.TrimSpace(text))
	if len(t) != 4 && len(t) != 5 {
		return NoSquare, NoSquare, "", fmt.Errorf("invalid move text %q", text)
	}
	if from, err = ParseSquare(t[0:2]); err != nil {
		return NoSquare, NoSquare, "", err
	}
	if to, err = ParseSquare(t[2:4]); err != nil {
		return NoSquare, NoSquare, "", err
	}
	if len(t) == 5 {
		p, ok := PromotionType(t[4:])
		if !ok {
			return NoSquare, NoSquare, "", fmt.Errorf("invalid promotion in %q", text)
		}
		promo = p
	}
	return from, to, promo, nil
}
