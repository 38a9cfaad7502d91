package chess

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
)

type Option func(*Engine)

// WithClock replaces time.Now as the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRepetitionRule installs a repetition draw rule. None is installed by default.
func WithRepetitionRule(r RepetitionRule) Option {
	return func(e *Engine) { e.repetition = r }
}

// Engine runs one game on top of an nchess game, which owns legality,
// checkmate and stalemate detection, the automatic draws and notation. The
// engine adds clocks, the half-move counter, scores, the review cursor and
// take-backs. It is not safe for concurrent use; the owner serializes access.
type Engine struct {
	game *nchess.Game
	// root is the FEN game was seeded from; rootPly recorded plies precede it.
	root    string
	rootPly int
	// start is the FEN before the first recorded ply, "" when unknown.
	start string

	moves    []Move
	notation []string
	// history holds the FEN after each ply.
	history []string
	// halfMove also resets on castling, which nchess does not do.
	halfMove  int
	durations *Durations
	status    GameStatus

	now        func() time.Time
	repetition RepetitionRule
	listeners  []Listener

	// cursor is the number of plies shown by the review cursor.
	cursor int

	clockRunning bool
	turnStarted  time.Time
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{game: nchess.NewGame(), status: StatusNotReady, now: time.Now}
	e.root = e.game.FEN()
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Subscribe(l Listener) {
	if l != nil {
		e.listeners = append(e.listeners, l)
	}
}

func (e *Engine) emit(ev Event) {
	for _, l := range e.listeners {
		l(ev)
	}
}

// CreateGame resets the engine to position, which may be FEN text, a JSON
// snapshot or a StartPosition name. durations, when non-nil, makes the game
// timed and overrides clocks carried by a snapshot. A snapshot that names its
// start position is replayed from it and must arrive at its board.
func (e *Engine) CreateGame(position string, durations *Durations) error {
	rec, err := resolvePosition(position)
	if err != nil {
		return err
	}
	game, root, base := rec.Position.game, rec.Position.FEN(), len(rec.Moves)
	if rec.Start != "" && base > 0 {
		g, err := replay(rec.Start, rec.Moves)
		if err != nil {
			return err
		}
		if placementKey(g.FEN()) != placementKey(root) {
			return fmt.Errorf("%w: move history does not lead to the board", ErrInvalidPosition)
		}
		game, root, base = g, rec.Start, 0
	}

	e.game, e.root, e.rootPly = game, root, base
	e.start = rec.Start
	e.moves = append([]Move(nil), rec.Moves...)
	e.notation = append([]string(nil), rec.Notation...)
	e.history = append([]string(nil), rec.History...)
	e.halfMove = rec.Position.halfMove
	e.durations = rec.Durations
	if durations != nil {
		d := *durations
		e.durations = &d
	}
	e.cursor = len(e.moves)
	e.clockRunning = false

	e.status = rec.Status
	if !e.status.Finished() {
		e.status = e.deriveStatus()
	}
	if e.status.Playable() && e.durations != nil && len(e.moves) > 0 {
		e.clockRunning = true
		e.turnStarted = e.now()
	}
	e.emit(Event{Kind: EventGameCreated, FEN: e.FEN(), Status: e.status})
	return nil
}

func resolvePosition(position string) (*Record, error) {
	position = strings.TrimSpace(position)
	switch {
	case position == "":
		return nil, fmt.Errorf("%w: empty", ErrInvalidPosition)
	case strings.HasPrefix(position, "{"):
		return ParseSnapshot(position)
	}
	if fen, ok := LookupPosition(position); ok {
		position = fen
	}
	p, err := ParseFEN(position)
	if err != nil {
		return nil, err
	}
	return &Record{Position: p, Start: p.FEN()}, nil
}

// ApplyMove plays from->to for the side to move. promo is required for, and
// only allowed on, pawn moves to the last rank.
func (e *Engine) ApplyMove(from, to Square, promo PieceType) (Move, error) {
	if !e.status.Playable() {
		return Move{}, ErrGameNotInPlay
	}
	if e.CheckFlag() {
		return Move{}, ErrGameNotInPlay
	}
	if promo != "" && !canPromoteTo(promo) {
		return Move{}, fmt.Errorf("%w: cannot promote to %s", ErrIllegalMove, promo)
	}
	if !from.Valid() || !to.Valid() {
		return Move{}, fmt.Errorf("%w: %s%s", ErrIllegalMove, from, to)
	}

	lan := Move{From: from, To: to, Promotion: promo}.LAN()
	pos := e.game.Position()
	nm, err := nchess.UCINotation{}.Decode(pos, lan)
	if err != nil {
		return Move{}, fmt.Errorf("%w: %s: %v", ErrIllegalMove, lan, err)
	}
	if !isLegal(pos, nm) {
		return Move{}, fmt.Errorf("%w: %s", ErrIllegalMove, lan)
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, nm)
	pawn := pos.Board().Piece(nm.S1()).Type() == nchess.Pawn
	mover := e.Turn()

	now := e.now()
	e.chargeClock(now)
	if err := e.game.Move(nm, nil); err != nil {
		return Move{}, fmt.Errorf("%w: %s: %v", ErrIllegalMove, lan, err)
	}
	m := moveFrom(nm)

	// castling resets the counter once although it relocates two pieces
	if pawn || m.Kind == MoveCastling || nm.HasTag(nchess.Capture) || nm.HasTag(nchess.EnPassant) {
		e.halfMove = 0
	} else {
		e.halfMove++
	}
	if e.durations != nil {
		e.durations.of(mover).Remaining += e.durations.of(mover).Increment
		e.clockRunning = true
		e.turnStarted = now
	}
	fen := e.FEN()
	e.moves = append(e.moves, m)
	e.notation = append(e.notation, san)
	e.history = append(e.history, fen)
	e.cursor = len(e.moves)

	status := e.deriveStatus()
	e.emit(Event{Kind: EventMoveApplied, Move: m, SAN: san, FEN: fen, Status: status})
	e.setStatus(status)
	return m, nil
}

func isLegal(pos *nchess.Position, nm *nchess.Move) bool {
	for _, v := range pos.ValidMoves() {
		if v.S1() == nm.S1() && v.S2() == nm.S2() && v.Promo() == nm.Promo() {
			return true
		}
	}
	return false
}

func (e *Engine) deriveStatus() GameStatus {
	switch e.game.Outcome() {
	case nchess.WhiteWon:
		return StatusWhiteVictory
	case nchess.BlackWon:
		return StatusBlackVictory
	case nchess.Draw:
		return StatusDraw
	}
	if e.halfMove >= 100 {
		// nchess never resets on castling, so its own clock is at least as high
		_ = e.game.Draw(nchess.FiftyMoveRule)
		return StatusDraw
	}
	if e.repetition != nil && e.repetition.IsRepetition(e.history) {
		return StatusDraw
	}
	if sideInCheck(e.game) {
		return checkFor(e.Turn())
	}
	if len(e.moves) == 0 {
		return StatusReadyToStart
	}
	return StatusInPlay
}

func (e *Engine) setStatus(s GameStatus) {
	if s.Finished() {
		e.chargeClock(e.now())
		e.clockRunning = false
	}
	if e.status == s {
		return
	}
	e.status = s
	e.emit(Event{Kind: EventStatusChanged, Status: s, FEN: e.FEN()})
}

// chargeClock bills the time since the last turn switch to the side to move.
func (e *Engine) chargeClock(now time.Time) {
	if e.durations == nil || !e.clockRunning {
		return
	}
	d := e.durations.of(e.Turn())
	d.Remaining -= now.Sub(e.turnStarted).Milliseconds()
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	e.turnStarted = now
}

// RemainingTime is c's clock at this instant. Only the side to move loses
// time, and only once the first ply has been played.
func (e *Engine) RemainingTime(c Color) (time.Duration, error) {
	if e.durations == nil {
		return 0, ErrTimerNotAvailable
	}
	rem := e.durations.of(c).Remaining
	if e.clockRunning && c == e.Turn() {
		rem -= e.now().Sub(e.turnStarted).Milliseconds()
	}
	if rem < 0 {
		rem = 0
	}
	return time.Duration(rem) * time.Millisecond, nil
}

// CheckFlag ends the game when the side to move has run out of time. The
// opponent wins unless it lacks mating material, which is a draw. It reports
// whether this call finished the game.
func (e *Engine) CheckFlag() bool {
	if e.durations == nil || !e.clockRunning || !e.status.Playable() {
		return false
	}
	rem, _ := e.RemainingTime(e.Turn())
	if rem > 0 {
		return false
	}
	loser := e.Turn()
	status := victoryFor(loser.Opponent())
	if !hasMatingMaterial(e.game.Position().Board(), loser.Opponent()) {
		status = StatusDraw
	}
	e.setStatus(status)
	e.durations.of(loser).Remaining = 0
	return true
}

// Resign gives the game to c's opponent.
func (e *Engine) Resign(c Color) error {
	if !e.status.Playable() {
		return ErrGameNotInPlay
	}
	e.game.Resign(toNColor(c))
	e.setStatus(victoryFor(c.Opponent()))
	return nil
}

// AgreeDraw ends the game as a draw.
func (e *Engine) AgreeDraw() error {
	if !e.status.Playable() {
		return ErrGameNotInPlay
	}
	_ = e.game.Draw(nchess.DrawOffer)
	e.setStatus(StatusDraw)
	return nil
}

// TakeBack removes the last authoritative ply and returns its mover. Clocks
// keep their billed time; status is re-derived for the restored position.
func (e *Engine) TakeBack() (Color, error) {
	if !e.status.Playable() {
		return "", ErrGameNotInPlay
	}
	n := len(e.moves)
	if n == 0 {
		return "", ErrNothingToUndo
	}
	prev := e.positionAt(n - 1)
	if prev == "" {
		return "", ErrNothingToUndo
	}
	now := e.now()
	e.chargeClock(now)
	if err := e.rebuild(n - 1); err != nil {
		return "", err
	}

	e.halfMove = halfMoveOf(prev)
	e.moves = e.moves[:n-1]
	e.notation = e.notation[:n-1]
	e.history = e.history[:n-1]
	e.cursor = len(e.moves)
	e.turnStarted = now
	if len(e.moves) == 0 {
		e.clockRunning = false
	}

	e.emit(Event{Kind: EventPositionRestored, FEN: prev, Status: e.status})
	e.setStatus(e.deriveStatus())
	return e.Turn(), nil
}

// rebuild reseeds the nchess game so that it holds the first plies recorded
// moves. Plies behind the current root are reached from their stored FEN.
func (e *Engine) rebuild(plies int) error {
	root, base := e.root, e.rootPly
	if plies < base {
		root, base = e.positionAt(plies), plies
	}
	g, err := replay(root, e.moves[base:plies])
	if err != nil {
		return err
	}
	e.game, e.root, e.rootPly = g, root, base
	return nil
}

// positionAt is the FEN after the first i plies, "" when it is not known.
func (e *Engine) positionAt(i int) string {
	switch {
	case i == len(e.moves):
		return e.FEN()
	case i == 0:
		return e.start
	}
	return e.history[i-1]
}

func halfMoveOf(fen string) int {
	fields := strings.Fields(fen)
	if len(fields) < 5 {
		return 0
	}
	n, _ := strconv.Atoi(fields[4])
	return n
}

// UndoLastPly moves the review cursor back one ply and returns the position
// it now shows. The authoritative game is untouched.
func (e *Engine) UndoLastPly() (string, bool) {
	if e.cursor == 0 || e.positionAt(e.cursor-1) == "" {
		return e.CursorFEN(), false
	}
	e.cursor--
	return e.CursorFEN(), true
}

// RedoPly moves the review cursor forward one ply.
func (e *Engine) RedoPly() (string, bool) {
	if e.cursor >= len(e.moves) {
		return e.CursorFEN(), false
	}
	e.cursor++
	return e.CursorFEN(), true
}

// CursorFEN is the position shown by the review cursor.
func (e *Engine) CursorFEN() string { return e.positionAt(e.cursor) }

func (e *Engine) Cursor() int { return e.cursor }

func (e *Engine) Status() GameStatus { return e.status }

func (e *Engine) Turn() Color { return fromNColor(e.game.Position().Turn()) }

// FEN is the current position with the engine's half-move counter.
func (e *Engine) FEN() string { return withHalfMove(e.game.FEN(), e.halfMove) }

func (e *Engine) PlyCount() int { return len(e.moves) }

func (e *Engine) Timed() bool { return e.durations != nil }

func (e *Engine) Result() string { return Result(e.status) }

func (e *Engine) PieceAt(sq Square) Piece {
	if !sq.Valid() {
		return Piece{}
	}
	return fromNPiece(e.game.Position().Board().Piece(toNSquare(sq)))
}

func (e *Engine) Notation() []string { return append([]string(nil), e.notation...) }

func (e *Engine) MoveHistory() []Move { return append([]Move(nil), e.moves...) }

func (e *Engine) Scores() Scores { return calculateScores(e.game.Position().Board()) }

func (e *Engine) CastlingRights() CastlingRights {
	return castlingFrom(e.game.Position().CastleRights())
}

func (e *Engine) EnPassant() Square { return fromNSquare(e.game.Position().EnPassantSquare()) }

func (e *Engine) HalfMoveClock() int { return e.halfMove }

func (e *Engine) FullMoveNumber() int { return (e.game.Position().Ply() + 1) / 2 }

// InCheck reports whether c's king is attacked. Only the side to move can be.
func (e *Engine) InCheck(c Color) bool {
	return c == e.Turn() && sideInCheck(e.game)
}

// LegalMoves lists the moves of the piece on from, or of every piece when
// from is NoSquare.
func (e *Engine) LegalMoves(from Square) []Move {
	if !e.status.Playable() {
		return nil
	}
	var out []Move
	for _, nm := range e.game.ValidMoves() {
		if m := moveFrom(&nm); from == NoSquare || m.From == from {
			out = append(out, m)
		}
	}
	return out
}

// Snapshot returns the JSON snapshot with clocks read at this instant.
func (e *Engine) Snapshot() Snapshot {
	s := e.snapshot()
	if s.Durations != nil {
		for _, c := range []Color{White, Black} {
			rem, _ := e.RemainingTime(c)
			s.Durations.of(c).Remaining = rem.Milliseconds()
		}
	}
	return s
}
