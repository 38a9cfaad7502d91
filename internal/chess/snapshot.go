package chess

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// PlacedPiece is one occupied square in a snapshot.
type PlacedPiece struct {
	Color  Color     `json:"color"`
	Type   PieceType `json:"type"`
	Square Square    `json:"square"`
}

// Snapshot is the loss-less JSON form of a game used for state transfer.
// Unlike FEN it carries history, scores, clocks and status.
type Snapshot struct {
	StartPosition     string         `json:"startPosition,omitempty"`
	Board             []PlacedPiece  `json:"board"`
	Turn              Color          `json:"turn"`
	Castling          CastlingRights `json:"castling"`
	EnPassant         *Square        `json:"enPassant"`
	HalfMoveCount     int            `json:"halfMoveCount"`
	MoveCount         int            `json:"moveCount"`
	Scores            Scores         `json:"scores"`
	MoveHistory       []Move         `json:"moveHistory"`
	AlgebraicNotation []string       `json:"algebraicNotation"`
	BoardHistory      []string       `json:"boardHistory"`
	Durations         *Durations     `json:"durations,omitempty"`
	GameStatus        GameStatus     `json:"gameStatus"`
}

// Record is a position together with the game record that led to it.
type Record struct {
	Position *Position
	// Start is the FEN before the first recorded ply, "" when unknown.
	Start     string
	Moves     []Move
	Notation  []string
	History   []string
	Durations *Durations
	Status    GameStatus
}

// ParseSnapshot reads the JSON snapshot form produced by Engine.Snapshot.
// The board goes through the same checks as FEN input.
func ParseSnapshot(text string) (*Record, error) {
	var s Snapshot
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}

	placed := make(map[nchess.Square]nchess.Piece, len(s.Board))
	for _, pp := range s.Board {
		if !pp.Square.Valid() || !pp.Color.Valid() || !pp.Type.Valid() {
			return nil, fmt.Errorf("%w: bad piece %+v", ErrInvalidPosition, pp)
		}
		sq := toNSquare(pp.Square)
		if _, taken := placed[sq]; taken {
			return nil, fmt.Errorf("%w: square %s occupied twice", ErrInvalidPosition, pp.Square)
		}
		placed[sq] = toNPiece(Piece{Color: pp.Color, Type: pp.Type})
	}
	if !s.Turn.Valid() {
		return nil, fmt.Errorf("%w: turn %q", ErrInvalidPosition, s.Turn)
	}
	ep := "-"
	if s.EnPassant != nil {
		if !s.EnPassant.Valid() {
			return nil, fmt.Errorf("%w: en passant %d", ErrInvalidPosition, *s.EnPassant)
		}
		ep = s.EnPassant.String()
	}
	if s.HalfMoveCount < 0 || s.MoveCount < 1 {
		return nil, fmt.Errorf("%w: counters %d/%d", ErrInvalidPosition, s.HalfMoveCount, s.MoveCount)
	}

	turn := "w"
	if s.Turn == Black {
		turn = "b"
	}
	pos, err := loadFields([]string{
		nchess.NewBoard(placed).String(), turn, s.Castling.String(), ep,
		strconv.Itoa(s.HalfMoveCount), strconv.Itoa(s.MoveCount),
	})
	if err != nil {
		return nil, err
	}

	if len(s.AlgebraicNotation) != len(s.MoveHistory) || len(s.BoardHistory) != len(s.MoveHistory) {
		return nil, fmt.Errorf("%w: history lengths differ", ErrInvalidPosition)
	}
	rec := &Record{
		Position: pos,
		Start:    strings.TrimSpace(s.StartPosition),
		Moves:    s.MoveHistory,
		Notation: s.AlgebraicNotation,
		History:  s.BoardHistory,
		Status:   s.GameStatus,
	}
	if rec.Start != "" {
		start, err := ParseFEN(rec.Start)
		if err != nil {
			return nil, err
		}
		rec.Start = start.FEN()
	}
	if rec.Start == "" && len(rec.Moves) == 0 {
		rec.Start = pos.FEN()
	}
	if s.Durations != nil {
		d := *s.Durations
		rec.Durations = &d
	}
	return rec, nil
}

func (e *Engine) snapshot() Snapshot {
	pos := e.game.Position()
	s := Snapshot{
		StartPosition:     e.start,
		Board:             make([]PlacedPiece, 0, 32),
		Turn:              e.Turn(),
		Castling:          castlingFrom(pos.CastleRights()),
		HalfMoveCount:     e.halfMove,
		MoveCount:         e.FullMoveNumber(),
		Scores:            e.Scores(),
		MoveHistory:       append([]Move{}, e.moves...),
		AlgebraicNotation: append([]string{}, e.notation...),
		BoardHistory:      append([]string{}, e.history...),
		GameStatus:        e.status,
	}
	for sq := Square(1); sq <= 64; sq++ {
		if p := e.PieceAt(sq); !p.Empty() {
			s.Board = append(s.Board, PlacedPiece{Color: p.Color, Type: p.Type, Square: sq})
		}
	}
	if ep := e.EnPassant(); ep != NoSquare {
		s.EnPassant = &ep
	}
	if e.durations != nil {
		d := *e.durations
		s.Durations = &d
	}
	return s
}
