package chess

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func mustMove(t *testing.T, e *Engine, lan string) Move {
	t.Helper()
	from, to, promo, err := ParseLAN(lan)
	if err != nil {
		t.Fatalf("ParseLAN(%q): %v", lan, err)
	}
	m, err := e.ApplyMove(from, to, promo)
	if err != nil {
		t.Fatalf("ApplyMove(%s): %v", lan, err)
	}
	return m
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func newTestGame(t *testing.T, position string, opts ...Option) *Engine {
	t.Helper()
	e := NewEngine(opts...)
	if err := e.CreateGame(position, nil); err != nil {
		t.Fatalf("CreateGame(%q): %v", position, err)
	}
	return e
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestOpeningMoves(t *testing.T) {
	e := newTestGame(t, string(PositionStandard))
	if e.Status() != StatusReadyToStart {
		t.Fatalf("fresh game status = %s", e.Status())
	}
	mustMove(t, e, "e2e4")
	mustMove(t, e, "e7e5")

	want := "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq e6 0 2"
	if got := e.FEN(); got != want {
		t.Fatalf("fen:\n%s", cmp.Diff(want, got))
	}
	if e.Turn() != White || e.FullMoveNumber() != 2 || e.HalfMoveClock() != 0 {
		t.Fatalf("turn=%s full=%d half=%d", e.Turn(), e.FullMoveNumber(), e.HalfMoveClock())
	}
	if e.Status() != StatusInPlay {
		t.Fatalf("status = %s", e.Status())
	}
	if diff := cmp.Diff([]string{"e4", "e5"}, e.Notation()); diff != "" {
		t.Fatalf("notation: %s", diff)
	}
}

func TestPromotionGivesCheck(t *testing.T) {
	e := newTestGame(t, string(PositionPromotion))
	m := mustMove(t, e, "e7e8q")
	if m.Kind != MovePromotion || m.Promotion != Queen {
		t.Fatalf("move = %+v", m)
	}
	e8, _ := ParseSquare("e8")
	if p := e.PieceAt(e8); p != (Piece{Color: White, Type: Queen}) {
		t.Fatalf("e8 holds %+v", p)
	}
	if e.Status() != StatusBlackInCheck {
		t.Fatalf("status = %s, want BlackInCheck", e.Status())
	}
	if got := e.Notation()[0]; got != "e8=Q+" {
		t.Fatalf("san = %q", got)
	}
	s := e.Scores()
	if s.White.Score != 9 || s.Black.Score != -9 {
		t.Fatalf("scores = %+v", s)
	}
}

func TestPromotionTypeRules(t *testing.T) {
	e := newTestGame(t, string(PositionPromotion))
	e7, _ := ParseSquare("e7")
	e8, _ := ParseSquare("e8")
	if _, err := e.ApplyMove(e7, e8, ""); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("missing promotion type: err=%v", err)
	}
	if _, err := e.ApplyMove(e7, e8, King); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("king promotion: err=%v", err)
	}
	e1, _ := ParseSquare("e1")
	e2, _ := ParseSquare("e2")
	if _, err := e.ApplyMove(e1, e2, Queen); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("promotion type on a king move: err=%v", err)
	}
}

func TestIllegalMoveLeavesStateUntouched(t *testing.T) {
	e := newTestGame(t, StandardFEN)
	before := e.FEN()
	for _, lan := range []string{"e2e5", "e7e5", "g1g3", "a1a2"} {
		from, to, _, _ := ParseLAN(lan)
		if _, err := e.ApplyMove(from, to, ""); !errors.Is(err, ErrIllegalMove) {
			t.Fatalf("%s: err=%v", lan, err)
		}
	}
	if e.FEN() != before || e.PlyCount() != 0 {
		t.Fatalf("state changed after illegal moves")
	}
}

func TestCheckmateAndNotation(t *testing.T) {
	e := newTestGame(t, string(PositionCheckmate))
	mustMove(t, e, "a1a8")
	if e.Status() != StatusWhiteVictory {
		t.Fatalf("status = %s", e.Status())
	}
	if got := e.Notation()[0]; got != "Ra8#" {
		t.Fatalf("san = %q", got)
	}
	if e.Result() != "1-0" {
		t.Fatalf("result = %q", e.Result())
	}
	from, to, _, _ := ParseLAN("g8h8")
	if _, err := e.ApplyMove(from, to, ""); !errors.Is(err, ErrGameNotInPlay) {
		t.Fatalf("move after mate: err=%v", err)
	}
}

func TestStalemateIsDraw(t *testing.T) {
	e := newTestGame(t, string(PositionStalemate))
	mustMove(t, e, "c6b6")
	if e.Status() != StatusDraw {
		t.Fatalf("status = %s", e.Status())
	}
}

func TestInsufficientMaterialDraw(t *testing.T) {
	e := newTestGame(t, string(PositionInsufficientMaterial))
	mustMove(t, e, "d3d4")
	if e.Status() != StatusDraw {
		t.Fatalf("status = %s", e.Status())
	}
	if got := e.Notation()[0]; got != "Kxd4" {
		t.Fatalf("san = %q", got)
	}
}

func TestFiftyMoveRule(t *testing.T) {
	e := newTestGame(t, "4k3/8/8/8/8/8/8/R3K3 w - - 99 80")
	mustMove(t, e, "a1a2")
	if e.HalfMoveClock() != 100 || e.Status() != StatusDraw {
		t.Fatalf("half=%d status=%s", e.HalfMoveClock(), e.Status())
	}
}

func TestHalfMoveClock(t *testing.T) {
	e := newTestGame(t, "r3k2r/pppppppp/8/8/8/8/1PPPPPPP/R3K1NR w KQkq - 5 10")
	mustMove(t, e, "g1f3")
	if e.HalfMoveClock() != 6 {
		t.Fatalf("knight move: half=%d", e.HalfMoveClock())
	}
	mustMove(t, e, "e8g8")
	if e.HalfMoveClock() != 0 {
		t.Fatalf("castling should reset once: half=%d", e.HalfMoveClock())
	}
	mustMove(t, e, "a1a7")
	if e.HalfMoveClock() != 0 {
		t.Fatalf("capture: half=%d", e.HalfMoveClock())
	}
	mustMove(t, e, "a8a7")
	mustMove(t, e, "e1d1")
	if e.HalfMoveClock() != 1 {
		t.Fatalf("quiet king move: half=%d", e.HalfMoveClock())
	}
	if got := e.Notation()[1]; got != "O-O" {
		t.Fatalf("castle san = %q", got)
	}
	if got := e.CastlingRights().String(); got != "-" {
		t.Fatalf("castling rights = %q", got)
	}
}

func TestScoresStayZeroSum(t *testing.T) {
	e := newTestGame(t, StandardFEN)
	for _, lan := range []string{"e2e4", "d7d5", "e4d5", "d8d5", "b1c3", "d5a2", "a1a2"} {
		mustMove(t, e, lan)
		s := e.Scores()
		if s.White.Score != -s.Black.Score {
			t.Fatalf("after %s: %+v", lan, s)
		}
	}
	s := e.Scores()
	if s.White.Score != 8 {
		t.Fatalf("white should be a queen minus a pawn up, got %+v", s)
	}
	if diff := cmp.Diff([]PieceType{Queen}, s.White.Pieces); diff != "" {
		t.Fatalf("white pieces: %s", diff)
	}
	if diff := cmp.Diff([]PieceType{Pawn}, s.Black.Pieces); diff != "" {
		t.Fatalf("black pieces: %s", diff)
	}
}

func TestDisambiguation(t *testing.T) {
	e := newTestGame(t, "4k3/8/8/8/8/8/4K3/R6R w - - 0 1")
	mustMove(t, e, "a1d1")
	if got := e.Notation()[0]; got != "Rad1" {
		t.Fatalf("san = %q", got)
	}
	e = newTestGame(t, "4k3/R7/8/8/8/8/8/R3K3 w - - 0 1")
	mustMove(t, e, "a1a4")
	if got := e.Notation()[0]; got != "R1a4" {
		t.Fatalf("san = %q", got)
	}
}

func TestReviewCursor(t *testing.T) {
	e := newTestGame(t, StandardFEN)
	mustMove(t, e, "e2e4")
	mustMove(t, e, "e7e5")
	after := e.FEN()

	fen, ok := e.UndoLastPly()
	if !ok || fen != e.history[0] {
		t.Fatalf("undo cursor: ok=%v fen=%s", ok, fen)
	}
	fen, ok = e.UndoLastPly()
	if !ok || fen != StandardFEN {
		t.Fatalf("cursor at start: ok=%v fen=%s", ok, fen)
	}
	if _, ok := e.UndoLastPly(); ok {
		t.Fatalf("cursor should stop at the start")
	}
	if e.FEN() != after || e.PlyCount() != 2 {
		t.Fatalf("review cursor must not change the game")
	}
	e.RedoPly()
	if fen, ok := e.RedoPly(); !ok || fen != after {
		t.Fatalf("redo: ok=%v fen=%s", ok, fen)
	}
	if _, ok := e.RedoPly(); ok {
		t.Fatalf("cursor should stop at the end")
	}
}

func TestTakeBack(t *testing.T) {
	e := newTestGame(t, StandardFEN)
	if _, err := e.TakeBack(); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("empty take back: err=%v", err)
	}
	mustMove(t, e, "e2e4")
	mustMove(t, e, "d7d5")
	mustMove(t, e, "e4d5")

	mover, err := e.TakeBack()
	if err != nil || mover != White {
		t.Fatalf("TakeBack = %s, %v", mover, err)
	}
	want := "rnbqkbnr/ppp1pppp/8/3p4/4P3/8/PPPP1PPP/RNBQKBNR w KQkq d6 0 2"
	if e.FEN() != want {
		t.Fatalf("fen:\n%s", cmp.Diff(want, e.FEN()))
	}
	if e.PlyCount() != 2 || len(e.Notation()) != 2 {
		t.Fatalf("history not trimmed: %d %v", e.PlyCount(), e.Notation())
	}
	if s := e.Scores(); s.White.Score != 0 {
		t.Fatalf("scores after take back: %+v", s)
	}
	if e.Status() != StatusInPlay {
		t.Fatalf("status = %s", e.Status())
	}
}

func TestClockRunsForSideToMove(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	e := NewEngine(WithClock(clk.now))
	d := Durations{White: Duration{Remaining: 300000}, Black: Duration{Remaining: 300000}}
	if err := e.CreateGame(StandardFEN, &d); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}

	clk.advance(10 * time.Second)
	if rem, _ := e.RemainingTime(White); rem != 300*time.Second {
		t.Fatalf("clock must not run before the first ply: %s", rem)
	}
	mustMove(t, e, "e2e4")

	whiteAfter, _ := e.RemainingTime(White)
	blackPrev, _ := e.RemainingTime(Black)
	for i := 0; i < 5; i++ {
		clk.advance(2 * time.Second)
		w, _ := e.RemainingTime(White)
		b, _ := e.RemainingTime(Black)
		if w > whiteAfter {
			t.Fatalf("mover's clock increased: %s > %s", w, whiteAfter)
		}
		if b >= blackPrev {
			t.Fatalf("black clock should be running: %s >= %s", b, blackPrev)
		}
		blackPrev = b
	}
	mustMove(t, e, "e7e5")
	if rem, _ := e.RemainingTime(Black); rem != 290*time.Second {
		t.Fatalf("black billed %s", 300*time.Second-rem)
	}
}

func TestClockIncrement(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	e := NewEngine(WithClock(clk.now))
	d := Durations{White: Duration{Remaining: 60000, Increment: 2000}, Black: Duration{Remaining: 60000, Increment: 2000}}
	if err := e.CreateGame(StandardFEN, &d); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	mustMove(t, e, "e2e4")
	clk.advance(5 * time.Second)
	mustMove(t, e, "e7e5")
	if rem, _ := e.RemainingTime(Black); rem != 57*time.Second {
		t.Fatalf("black = %s, want 57s", rem)
	}
}

func TestTimerNotAvailable(t *testing.T) {
	e := newTestGame(t, StandardFEN)
	if _, err := e.RemainingTime(White); !errors.Is(err, ErrTimerNotAvailable) {
		t.Fatalf("err = %v", err)
	}
	if e.CheckFlag() {
		t.Fatalf("untimed game cannot flag")
	}
}

func TestFlagFall(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	e := NewEngine(WithClock(clk.now))
	d := Durations{White: Duration{Remaining: 5000}, Black: Duration{Remaining: 5000}}
	if err := e.CreateGame(StandardFEN, &d); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	mustMove(t, e, "e2e4")
	clk.advance(4 * time.Second)
	if e.CheckFlag() {
		t.Fatalf("flag fell early")
	}
	clk.advance(2 * time.Second)
	if !e.CheckFlag() || e.Status() != StatusWhiteVictory {
		t.Fatalf("status = %s", e.Status())
	}
	if rem, _ := e.RemainingTime(Black); rem != 0 {
		t.Fatalf("black remaining = %s", rem)
	}
	if e.CheckFlag() {
		t.Fatalf("flag can only fall once")
	}
}

func TestFlagFallWithoutMatingMaterialIsDraw(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	e := NewEngine(WithClock(clk.now))
	d := Durations{White: Duration{Remaining: 1000}, Black: Duration{Remaining: 1000}}
	if err := e.CreateGame("4k3/4p3/8/8/8/8/8/1N2K3 w - - 0 1", &d); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	mustMove(t, e, "b1c3")
	clk.advance(2 * time.Second)
	if !e.CheckFlag() || e.Status() != StatusDraw {
		t.Fatalf("status = %s", e.Status())
	}
}

func TestResignAndDraw(t *testing.T) {
	e := newTestGame(t, StandardFEN)
	if err := e.Resign(White); err != nil || e.Status() != StatusBlackVictory {
		t.Fatalf("resign: %v %s", err, e.Status())
	}
	if err := e.AgreeDraw(); !errors.Is(err, ErrGameNotInPlay) {
		t.Fatalf("draw after resign: %v", err)
	}
	e = newTestGame(t, StandardFEN)
	if err := e.AgreeDraw(); err != nil || e.Status() != StatusDraw {
		t.Fatalf("draw: %v %s", err, e.Status())
	}
}

func TestCreateGameRejects(t *testing.T) {
	e := NewEngine()
	for _, pos := range []string{"", "   ", "nonsense", "8/8/8/8/8/8/8/8 w - - 0 1"} {
		if err := e.CreateGame(pos, nil); !errors.Is(err, ErrInvalidPosition) {
			t.Fatalf("CreateGame(%q) err=%v", pos, err)
		}
	}
	if e.Status() != StatusNotReady {
		t.Fatalf("failed create changed status to %s", e.Status())
	}
}

type everyPosition struct{}

func (everyPosition) IsRepetition(history []string) bool { return len(history) >= 2 }

func TestRepetitionRuleHook(t *testing.T) {
	e := newTestGame(t, StandardFEN, WithRepetitionRule(everyPosition{}))
	mustMove(t, e, "g1f3")
	if e.Status() != StatusInPlay {
		t.Fatalf("status = %s", e.Status())
	}
	mustMove(t, e, "g8f6")
	if e.Status() != StatusDraw {
		t.Fatalf("rule should have declared a draw, status = %s", e.Status())
	}
}

func TestEvents(t *testing.T) {
	e := NewEngine()
	var kinds []EventKind
	e.Subscribe(func(ev Event) { kinds = append(kinds, ev.Kind) })
	if err := e.CreateGame(string(PositionCheckmate), nil); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	mustMove(t, e, "a1a8")
	want := []EventKind{EventGameCreated, EventMoveApplied, EventStatusChanged}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Fatalf("events: %s", diff)
	}
}

func TestLegalMovesFromSquare(t *testing.T) {
	e := newTestGame(t, StandardFEN)
	if got := len(e.LegalMoves(NoSquare)); got != 20 {
		t.Fatalf("opening moves = %d, want 20", got)
	}
	e2, _ := ParseSquare("e2")
	var got []string
	for _, m := range e.LegalMoves(e2) {
		got = append(got, m.LAN())
	}
	if diff := cmp.Diff([]string{"e2e3", "e2e4"}, got, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Fatalf("e2 moves: %s", diff)
	}
}

func TestCastlingPreconditions(t *testing.T) {
	e := newTestGame(t, "4kr2/8/8/8/8/8/8/R3K2R w KQ - 0 1")
	from, to, _, _ := ParseLAN("e1g1")
	if _, err := e.ApplyMove(from, to, ""); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("castling through f1: err=%v", err)
	}
	m := mustMove(t, e, "e1c1")
	if m.Kind != MoveCastling || e.Notation()[0] != "O-O-O" {
		t.Fatalf("move = %+v san=%q", m, e.Notation()[0])
	}
	d1, _ := ParseSquare("d1")
	if p := e.PieceAt(d1); p != (Piece{Color: White, Type: Rook}) {
		t.Fatalf("d1 holds %+v", p)
	}

	e = newTestGame(t, "4k3/p7/8/8/8/8/8/4K3 w KQ - 0 1")
	if got := e.FEN(); got != "4k3/p7/8/8/8/8/8/4K3 w - - 0 1" {
		t.Fatalf("rights without rooks kept: %s", got)
	}
	if _, err := e.ApplyMove(from, to, ""); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("castling without a rook: err=%v", err)
	}
}

func TestEnPassantCapture(t *testing.T) {
	e := newTestGame(t, string(PositionEnPassant))
	mustMove(t, e, "d7d5")
	d6, _ := ParseSquare("d6")
	if e.EnPassant() != d6 {
		t.Fatalf("en passant square = %s", e.EnPassant())
	}
	m := mustMove(t, e, "e5d6")
	if m.Kind != MoveEnPassant || e.Notation()[1] != "exd6" {
		t.Fatalf("move = %+v san=%q", m, e.Notation()[1])
	}
	d5, _ := ParseSquare("d5")
	if !e.PieceAt(d5).Empty() {
		t.Fatalf("captured pawn still on d5")
	}
	if s := e.Scores(); s.White.Score != 1 {
		t.Fatalf("scores = %+v", s)
	}
}

func TestPinnedPieceCannotMove(t *testing.T) {
	e := newTestGame(t, "4k3/4r3/8/8/8/8/4N3/4K3 w - - 0 1")
	e2, _ := ParseSquare("e2")
	if moves := e.LegalMoves(e2); len(moves) != 0 {
		t.Fatalf("pinned knight has moves %v", moves)
	}
	from, to, _, _ := ParseLAN("e2c3")
	if _, err := e.ApplyMove(from, to, ""); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("pinned knight moved: err=%v", err)
	}
}

func TestSnapshotHistoryMustReachBoard(t *testing.T) {
	e := newTestGame(t, StandardFEN)
	mustMove(t, e, "e2e4")
	s := e.Snapshot()
	s.MoveHistory[0] = Move{From: 52, To: 36}

	if err := NewEngine().CreateGame(mustJSON(t, s), nil); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("d2d4 history on an e4 board: err=%v", err)
	}
}
