package lobby

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-chess-server/internal/chess"
	"github.com/park285/cheese-chess-server/internal/obslog"
	"go.uber.org/zap"
)

// MinPliesToResign is the ply count from which a game can no longer be
// aborted and has to be resigned instead.
const MinPliesToResign = 2

const defaultMonitorInterval = time.Second

type Option func(*Lobby)

// WithClock sets the time source used by the lobby's engines.
func WithClock(now func() time.Time) Option {
	return func(l *Lobby) {
		if now != nil {
			l.now = now
		}
	}
}

// WithMonitorInterval sets how often the flag-fall monitor checks clocks.
func WithMonitorInterval(d time.Duration) Option {
	return func(l *Lobby) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithExpiryHandler is called, inside Exclusive, when the monitor ends a
// game on time.
func WithExpiryHandler(fn func(*Lobby, chess.GameStatus)) Option {
	return func(l *Lobby) { l.onExpire = fn }
}

// WithOfferListener is called whenever an offer is made, after the lobby
// lock is released so the listener may call back into the lobby.
func WithOfferListener(fn func(*Lobby, Offer)) Option {
	return func(l *Lobby) { l.onOffer = fn }
}

// Lobby owns one game between two seats. All methods are safe for concurrent
// use; Exclusive additionally orders whole request handling steps.
type Lobby struct {
	id string

	serial sync.Mutex
	mu     sync.Mutex

	white     *Player
	black     *Player
	engine    *chess.Engine
	position  string
	durations *chess.Durations
	started   bool
	offer     *Offer
	monitor   *monitor

	now      func() time.Time
	interval time.Duration
	onExpire func(*Lobby, chess.GameStatus)
	onOffer  func(*Lobby, Offer)
}

// New validates the starting position and returns an empty lobby.
func New(id, position string, durations *chess.Durations, opts ...Option) (*Lobby, error) {
	l := &Lobby{
		id:       id,
		position: strings.TrimSpace(position),
		now:      time.Now,
		interval: defaultMonitorInterval,
	}
	if l.position == "" {
		l.position = chess.StandardFEN
	}
	if durations != nil {
		d := *durations
		l.durations = &d
	}
	for _, opt := range opts {
		opt(l)
	}
	// the pre-start engine only validates the position and serves reads
	l.engine = l.newEngine()
	if err := l.engine.CreateGame(l.position, l.durations); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Lobby) newEngine() *chess.Engine {
	return chess.NewEngine(chess.WithClock(l.now))
}

func (l *Lobby) ID() string { return l.id }

// Exclusive runs fn while holding the lobby's ordering lock. Handlers use it
// so that a request's state change and its outbound messages are not
// interleaved with another request for the same lobby.
func (l *Lobby) Exclusive(fn func()) {
	l.serial.Lock()
	defer l.serial.Unlock()
	fn()
}

// Join seats a new player: White first, then Black.
func (l *Lobby) Join(name string) (Seat, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return Seat{}, ErrAlreadyStarted
	}
	p := &Player{
		ID:       newPlayerID(),
		Name:     strings.TrimSpace(name),
		Token:    uuid.NewString(),
		IsOnline: true,
	}
	var color chess.Color
	switch {
	case l.white == nil:
		l.white, color = p, chess.White
	case l.black == nil:
		l.black, color = p, chess.Black
	default:
		return Seat{}, ErrLobbyFull
	}
	obslog.L().Info("lobby_join",
		zap.String("lobby_id", l.id),
		zap.String("player_id", p.ID),
		zap.String("color", string(color)),
	)
	return Seat{Player: *p, Color: color}, nil
}

// Reconnect marks the seat owning token online again.
func (l *Lobby) Reconnect(token string) (Seat, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, color := l.seatLocked(token)
	if p == nil {
		return Seat{}, ErrInvalidToken
	}
	if p.IsOnline {
		return Seat{}, ErrAlreadyOnline
	}
	p.IsOnline = true
	obslog.L().Info("lobby_reconnect", zap.String("lobby_id", l.id), zap.String("color", string(color)))
	return Seat{Player: *p, Color: color}, nil
}

// Leave marks the seat owning token offline.
func (l *Lobby) Leave(token string) (Seat, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, color := l.seatLocked(token)
	if p == nil {
		return Seat{}, false
	}
	p.IsOnline = false
	return Seat{Player: *p, Color: color}, true
}

// Seat resolves a token to its seat without changing anything.
func (l *Lobby) Seat(token string) (Seat, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, color := l.seatLocked(token)
	if p == nil {
		return Seat{}, false
	}
	return Seat{Player: *p, Color: color}, true
}

func (l *Lobby) seatLocked(token string) (*Player, chess.Color) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ""
	}
	if l.white != nil && l.white.Token == token {
		return l.white, chess.White
	}
	if l.black != nil && l.black.Token == token {
		return l.black, chess.Black
	}
	return nil, ""
}

func (l *Lobby) playerLocked(c chess.Color) *Player {
	if c == chess.White {
		return l.white
	}
	return l.black
}

// Players returns copies of both seats; a nil entry is an empty seat.
func (l *Lobby) Players() (white, black *Player) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.white != nil {
		w := *l.white
		white = &w
	}
	if l.black != nil {
		b := *l.black
		black = &b
	}
	return white, black
}

// Player returns a copy of the player seated at c.
func (l *Lobby) Player(c chess.Color) (Player, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.playerLocked(c)
	if p == nil {
		return Player{}, false
	}
	return *p, true
}

func (l *Lobby) bothOnlineLocked() bool {
	return l.white != nil && l.black != nil && l.white.IsOnline && l.black.IsOnline
}

// ReadyToStart reports whether both seats are filled and online and the game
// has not been started yet.
func (l *Lobby) ReadyToStart() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.started && l.bothOnlineLocked()
}

// IsStarted reports whether the game has been started at least once.
func (l *Lobby) IsStarted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started
}

// Start creates the game and starts the flag-fall monitor.
func (l *Lobby) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return ErrAlreadyStarted
	}
	if !l.bothOnlineLocked() {
		return ErrNotReady
	}
	if err := l.createGameLocked(); err != nil {
		return err
	}
	l.started = true
	obslog.L().Info("game_start",
		zap.String("lobby_id", l.id),
		zap.String("white_id", l.white.ID),
		zap.String("black_id", l.black.ID),
		zap.Bool("timed", l.durations != nil),
	)
	return nil
}

func (l *Lobby) createGameLocked() error {
	e := l.newEngine()
	var d *chess.Durations
	if l.durations != nil {
		cp := *l.durations
		d = &cp
	}
	if err := e.CreateGame(l.position, d); err != nil {
		return err
	}
	l.engine = e
	l.offer = nil
	l.startMonitorLocked()
	return nil
}

// State derives the lobby lifecycle state.
func (l *Lobby) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.white == nil && l.black == nil:
		return StateEmpty
	case !l.started:
		return StateWaitingForOpponent
	case l.engine.Status().Finished():
		return StateFinished
	}
	return StateActive
}

func (l *Lobby) Status() chess.GameStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.Status()
}

func (l *Lobby) Snapshot() chess.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.Snapshot()
}

func (l *Lobby) FEN() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.FEN()
}

func (l *Lobby) RemainingTime(c chess.Color) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.RemainingTime(c)
}

// CurrentOffer returns the outstanding offer, if any.
func (l *Lobby) CurrentOffer() (Offer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.offer == nil {
		return Offer{}, false
	}
	return *l.offer, true
}

// OfferCooldownActive is true while an offer waits for an answer.
func (l *Lobby) OfferCooldownActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.offer != nil
}

// authorizeLocked resolves token to an online seat.
func (l *Lobby) authorizeLocked(token string) (*Player, chess.Color, error) {
	p, color := l.seatLocked(token)
	if p == nil {
		return nil, "", ErrInvalidToken
	}
	if !p.IsOnline {
		return nil, "", ErrUnauthorized
	}
	return p, color, nil
}

func (l *Lobby) inPlayLocked() bool {
	return l.started && l.engine.Status().Playable()
}

// Move applies a move for the seat owning token.
func (l *Lobby) Move(token string, from, to chess.Square, promo chess.PieceType) (chess.Move, chess.GameStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, color, err := l.authorizeLocked(token)
	if err != nil {
		return chess.Move{}, "", err
	}
	if !l.inPlayLocked() {
		return chess.Move{}, "", ErrGameNotInPlay
	}
	if l.engine.Turn() != color {
		return chess.Move{}, "", ErrNotYourTurn
	}
	m, err := l.engine.ApplyMove(from, to, promo)
	if err != nil {
		if l.engine.Status().Finished() {
			l.finishLocked("time")
		}
		return chess.Move{}, l.engine.Status(), err
	}
	status := l.engine.Status()
	obslog.L().Debug("move_applied",
		zap.String("lobby_id", l.id),
		zap.String("color", string(color)),
		zap.String("move", m.LAN()),
		zap.String("status", string(status)),
	)
	if status.Finished() {
		l.finishLocked("board")
	}
	return m, status, nil
}

// Offer records a draw, undo or play-again proposal from token's seat. Only
// one offer may be outstanding; a second one is rejected, not queued.
func (l *Lobby) Offer(token string, kind OfferKind) (Offer, error) {
	l.mu.Lock()
	o, err := l.offerLocked(token, kind)
	l.mu.Unlock()
	if err != nil {
		return Offer{}, err
	}
	if l.onOffer != nil {
		l.onOffer(l, o)
	}
	return o, nil
}

func (l *Lobby) offerLocked(token string, kind OfferKind) (Offer, error) {
	_, color, err := l.authorizeLocked(token)
	if err != nil {
		return Offer{}, err
	}
	if l.offer != nil {
		return Offer{}, ErrOfferOutstanding
	}
	switch kind {
	case OfferDraw:
		if !l.inPlayLocked() {
			return Offer{}, ErrGameNotInPlay
		}
	case OfferUndo:
		if !l.inPlayLocked() {
			return Offer{}, ErrGameNotInPlay
		}
		if l.engine.PlyCount() == 0 {
			return Offer{}, fmt.Errorf("%w: nothing to undo", ErrUnauthorized)
		}
	case OfferPlayAgain:
		if !l.started || !l.engine.Status().Finished() {
			return Offer{}, ErrGameNotFinished
		}
		if opp := l.playerLocked(color.Opponent()); opp == nil || !opp.IsOnline {
			return Offer{}, fmt.Errorf("%w: opponent is offline", ErrUnauthorized)
		}
	default:
		return Offer{}, fmt.Errorf("%w: unknown offer %q", ErrUnauthorized, kind)
	}
	o := Offer{Kind: kind, From: color}
	l.offer = &o
	obslog.L().Info("offer_sent", zap.String("lobby_id", l.id), zap.String("kind", string(kind)), zap.String("from", string(color)))
	return o, nil
}

// CancelOffer withdraws the caller's own outstanding offer.
func (l *Lobby) CancelOffer(token string) (Offer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, color, err := l.authorizeLocked(token)
	if err != nil {
		return Offer{}, err
	}
	if l.offer == nil || l.offer.From != color {
		return Offer{}, ErrNoOffer
	}
	o := *l.offer
	l.offer = nil
	return o, nil
}

// DeclineOffer rejects the opponent's outstanding offer.
func (l *Lobby) DeclineOffer(token string) (Offer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, color, err := l.authorizeLocked(token)
	if err != nil {
		return Offer{}, err
	}
	if l.offer == nil || l.offer.From == color {
		return Offer{}, ErrNoOffer
	}
	o := *l.offer
	l.offer = nil
	return o, nil
}

// AcceptOffer answers the opponent's outstanding offer of kind.
func (l *Lobby) AcceptOffer(token string, kind OfferKind) (AcceptResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, color, err := l.authorizeLocked(token)
	if err != nil {
		return AcceptResult{}, err
	}
	if l.offer == nil || l.offer.From == color || l.offer.Kind != kind {
		return AcceptResult{}, ErrNoOffer
	}
	offerer := l.offer.From
	res := AcceptResult{Kind: kind, Offerer: offerer}

	switch kind {
	case OfferDraw:
		if err := l.engine.AgreeDraw(); err != nil {
			return AcceptResult{}, ErrGameNotInPlay
		}
		l.finishLocked("draw_agreed")
	case OfferUndo:
		if _, err := l.engine.TakeBack(); err != nil {
			return AcceptResult{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		res.FEN = l.engine.FEN()
	case OfferPlayAgain:
		if !l.bothOnlineLocked() {
			return AcceptResult{}, fmt.Errorf("%w: opponent is offline", ErrUnauthorized)
		}
		l.white, l.black = l.black, l.white
		if err := l.createGameLocked(); err != nil {
			return AcceptResult{}, err
		}
		obslog.L().Info("game_restart", zap.String("lobby_id", l.id), zap.String("white_id", l.white.ID))
	}
	l.offer = nil
	res.Status = l.engine.Status()
	return res, nil
}

// Resign gives the game to the opponent of token's seat.
func (l *Lobby) Resign(token string) (chess.GameStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, color, err := l.authorizeLocked(token)
	if err != nil {
		return "", err
	}
	if !l.inPlayLocked() {
		return "", ErrGameNotInPlay
	}
	if err := l.engine.Resign(color); err != nil {
		return "", ErrGameNotInPlay
	}
	l.finishLocked("resign")
	return l.engine.Status(), nil
}

// Abort ends a game that has barely begun as a no-fault draw.
func (l *Lobby) Abort(token string) (chess.GameStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, _, err := l.authorizeLocked(token); err != nil {
		return "", err
	}
	if !l.inPlayLocked() {
		return "", ErrGameNotInPlay
	}
	if l.engine.PlyCount() >= MinPliesToResign {
		return "", ErrTooLateToAbort
	}
	if err := l.engine.AgreeDraw(); err != nil {
		return "", ErrGameNotInPlay
	}
	l.finishLocked("abort")
	return l.engine.Status(), nil
}

// CheckTimeout ends the game if the side to move has run out of time.
func (l *Lobby) CheckTimeout() (chess.GameStatus, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started || !l.engine.CheckFlag() {
		return l.engine.Status(), false
	}
	l.finishLocked("flag_fall")
	return l.engine.Status(), true
}

// finishLocked releases per-game resources once the engine reports a result.
func (l *Lobby) finishLocked(reason string) {
	l.stopMonitorLocked()
	if l.offer != nil && l.offer.Kind != OfferPlayAgain {
		l.offer = nil
	}
	obslog.L().Info("game_finish",
		zap.String("lobby_id", l.id),
		zap.String("reason", reason),
		zap.String("status", string(l.engine.Status())),
		zap.Strings("notation", l.engine.Notation()),
	)
}

// IsDead reports whether no seat is online and the game either never started
// or is finished.
func (l *Lobby) IsDead() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if (l.white != nil && l.white.IsOnline) || (l.black != nil && l.black.IsOnline) {
		return false
	}
	return !l.started || l.engine.Status().Finished()
}

// Close stops background work owned by the lobby.
func (l *Lobby) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopMonitorLocked()
}

func newPlayerID() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
