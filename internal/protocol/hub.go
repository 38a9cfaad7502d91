// Package protocol drives lobbies from decoded wire messages and publishes
// the resulting messages to the seats' live connections.
package protocol

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/park285/cheese-chess-server/internal/chess"
	"github.com/park285/cheese-chess-server/internal/lobby"
	"github.com/park285/cheese-chess-server/internal/msgcat"
	"github.com/park285/cheese-chess-server/internal/obslog"
	"github.com/park285/cheese-chess-server/internal/sockets"
	"github.com/park285/cheese-chess-server/pkg/chessdto"
	"go.uber.org/zap"
)

// Mode selects how a connection enters a lobby.
type Mode string

const (
	ModeCreate    Mode = "create"
	ModeJoin      Mode = "join"
	ModeReconnect Mode = "reconnect"
)

// Entry is a validated session request.
type Entry struct {
	Mode      Mode
	Name      string
	LobbyID   string
	Token     string
	Board     string
	Durations *chess.Durations
}

// Session is one connection bound to one seat.
type Session struct {
	LobbyID string
	Token   string
	Color   chess.Color
	conn    sockets.Conn
}

type Hub struct {
	lobbies *lobby.Manager
	sockets *sockets.Registry
	texts   *msgcat.Catalog
}

// NewHub builds the lobby manager itself so that lobbies report flag-falls
// back to the hub.
func NewHub(reg *sockets.Registry, texts *msgcat.Catalog, opts ...lobby.Option) *Hub {
	h := &Hub{sockets: reg, texts: texts}
	opts = append(opts, lobby.WithExpiryHandler(h.handleExpiry))
	h.lobbies = lobby.NewManager(lobby.WithLobbyOptions(opts...))
	return h
}

func (h *Hub) Lobbies() *lobby.Manager { return h.lobbies }

// Exists answers the plain status query.
func (h *Hub) Exists(lobbyID string) bool { return h.lobbies.Exists(lobbyID) }

// Admit checks an entry against current lobby state before the connection is
// upgraded. Rejections are chessdto.DomainError values.
func (h *Hub) Admit(e Entry) error {
	switch e.Mode {
	case ModeCreate:
		board := strings.TrimSpace(e.Board)
		if board == "" {
			board = chess.StandardFEN
		}
		if err := chess.NewEngine().CreateGame(board, nil); err != nil {
			return chessdto.BadRequest("invalid_board", h.texts.Text("handshake.invalid_board", nil, err.Error()))
		}
		return nil
	case ModeJoin:
		l, err := h.lobbies.Get(e.LobbyID)
		if err != nil {
			return h.notFound()
		}
		if l.IsStarted() {
			return chessdto.BadRequest("lobby_started", h.texts.Text("handshake.lobby_started", nil, "lobby already started"))
		}
		if white, black := l.Players(); white != nil && black != nil {
			return chessdto.BadRequest("lobby_full", h.texts.Text("handshake.lobby_full", nil, "lobby full"))
		}
		return nil
	case ModeReconnect:
		l, err := h.lobbies.Get(e.LobbyID)
		if err != nil {
			return h.notFound()
		}
		seat, ok := l.Seat(e.Token)
		if !ok {
			return chessdto.Unauthorized("invalid_token", h.texts.Text("handshake.invalid_token", nil, "invalid token"))
		}
		if seat.Player.IsOnline {
			return chessdto.BadRequest("already_online", h.texts.Text("handshake.already_online", nil, "already online"))
		}
		return nil
	}
	return chessdto.BadRequest("invalid_request", h.texts.Text("status.invalid_request", nil, "invalid request"))
}

func (h *Hub) notFound() error {
	return chessdto.NotFound("lobby_not_found", h.texts.Text("status.lobby_not_found", nil, "lobby not found"))
}

// Open seats conn according to e and sends the opening messages. The lobby
// may start as a result.
func (h *Hub) Open(conn sockets.Conn, e Entry) (*Session, error) {
	var (
		l   *lobby.Lobby
		err error
	)
	if e.Mode == ModeCreate {
		l, err = h.lobbies.Create(e.Board, e.Durations)
	} else {
		l, err = h.lobbies.Get(e.LobbyID)
	}
	if err != nil {
		h.fail(conn, err)
		return nil, err
	}

	var s *Session
	l.Exclusive(func() {
		// an abandoned lobby may have been deleted since the lookup
		if !h.lobbies.Holds(l) {
			err = lobby.ErrLobbyNotFound
			return
		}
		var seat lobby.Seat
		switch e.Mode {
		case ModeCreate, ModeJoin:
			seat, err = l.Join(e.Name)
		case ModeReconnect:
			seat, err = l.Reconnect(e.Token)
		default:
			err = lobby.ErrUnauthorized
		}
		if err != nil {
			return
		}
		s = h.attach(l, seat, conn)

		tag := chessdto.TagConnected
		if e.Mode == ModeCreate {
			tag = chessdto.TagCreated
		}
		h.send(conn, tag, chessdto.JoinedPayload{LobbyID: l.ID(), Player: ownPlayer(seat.Player)})

		switch {
		case l.ReadyToStart():
			h.start(l)
		case e.Mode == ModeReconnect && l.IsStarted():
			h.resync(l, seat)
		}
	})
	if err != nil {
		h.fail(conn, err)
		if e.Mode == ModeCreate {
			h.lobbies.DeleteIfDead(l.ID())
		}
		return nil, err
	}
	obslog.L().Info("ws_open",
		zap.String("lobby_id", s.LobbyID),
		zap.String("mode", string(e.Mode)),
		zap.String("color", string(s.Color)),
	)
	return s, nil
}

func (h *Hub) attach(l *lobby.Lobby, seat lobby.Seat, conn sockets.Conn) *Session {
	if prev := h.sockets.Add(l.ID(), seat.Player.Token, conn); prev != nil {
		prev.Close(sockets.ReasonSuperseded)
	}
	return &Session{LobbyID: l.ID(), Token: seat.Player.Token, Color: seat.Color, conn: conn}
}

func (h *Hub) start(l *lobby.Lobby) {
	if err := l.Start(); err != nil {
		obslog.L().Warn("game_start_failed", zap.String("lobby_id", l.ID()), zap.Error(err))
		return
	}
	h.broadcast(l, chessdto.TagStarted, h.started(l))
}

// resync brings a reconnecting seat up to date and tells the opponent.
func (h *Hub) resync(l *lobby.Lobby, seat lobby.Seat) {
	conn, ok := h.sockets.Get(l.ID(), seat.Player.Token)
	if !ok {
		return
	}
	h.send(conn, chessdto.TagStarted, h.started(l))
	if status := l.Status(); status.Finished() {
		h.send(conn, chessdto.TagFinished, chessdto.StatusPayload{GameStatus: string(status)})
	}
	h.sendTo(l, seat.Color.Opponent(), chessdto.TagReconnected, chessdto.PresencePayload{LobbyID: l.ID(), Color: string(seat.Color)})
}

func (h *Hub) started(l *lobby.Lobby) chessdto.StartedPayload {
	white, black := l.Players()
	game, err := json.Marshal(l.Snapshot())
	if err != nil {
		obslog.L().Error("snapshot_encode_failed", zap.String("lobby_id", l.ID()), zap.Error(err))
	}
	return chessdto.StartedPayload{
		WhitePlayer: publicPlayer(white),
		BlackPlayer: publicPlayer(black),
		Game:        game,
	}
}

// Handle processes one inbound frame from s. Errors are reported to s only.
func (h *Hub) Handle(s *Session, frame []byte) {
	if !h.sockets.IsCurrent(s.LobbyID, s.Token, s.conn) {
		obslog.L().Debug("ws_stale_message", zap.String("lobby_id", s.LobbyID))
		return
	}
	msg, err := chessdto.Decode(frame)
	if err != nil {
		h.fail(s.conn, err)
		return
	}
	l, err := h.lobbies.Get(s.LobbyID)
	if err != nil {
		h.fail(s.conn, err)
		return
	}
	l.Exclusive(func() {
		if !h.sockets.IsCurrent(s.LobbyID, s.Token, s.conn) {
			return
		}
		if err := h.participate(l, s, msg.Tag); err != nil {
			h.fail(s.conn, err)
			return
		}
		if err := h.dispatch(l, s, msg); err != nil {
			obslog.L().Debug("ws_action_rejected",
				zap.String("lobby_id", s.LobbyID),
				zap.String("tag", string(msg.Tag)),
				zap.Error(err),
			)
			h.fail(s.conn, err)
		}
	})
}

// Close releases the seat served by s, unless s was already superseded.
func (h *Hub) Close(s *Session) {
	l, err := h.lobbies.Get(s.LobbyID)
	if err != nil {
		h.sockets.Remove(s.LobbyID, s.Token, s.conn)
		return
	}
	l.Exclusive(func() {
		if !h.sockets.Remove(s.LobbyID, s.Token, s.conn) {
			return
		}
		seat, ok := l.Leave(s.Token)
		if !ok {
			return
		}
		h.sendTo(l, seat.Color.Opponent(), chessdto.TagDisconnected, chessdto.PresencePayload{LobbyID: l.ID(), Color: string(seat.Color)})
		obslog.L().Info("ws_close", zap.String("lobby_id", l.ID()), zap.String("color", string(seat.Color)))
	})
	h.lobbies.DeleteIfDead(s.LobbyID)
}

// handleExpiry runs inside the lobby's Exclusive section.
func (h *Hub) handleExpiry(l *lobby.Lobby, status chess.GameStatus) {
	h.broadcast(l, chessdto.TagFinished, chessdto.StatusPayload{GameStatus: string(status)})
}

func (h *Hub) send(conn sockets.Conn, tag chessdto.Tag, payload any) {
	frame, err := chessdto.Encode(tag, payload)
	if err != nil {
		obslog.L().Error("ws_encode_failed", zap.String("tag", string(tag)), zap.Error(err))
		return
	}
	if err := conn.Send(frame); err != nil {
		obslog.L().Warn("ws_send_failed", zap.String("tag", string(tag)), zap.Error(err))
	}
}

// sendTo delivers to the live connection of the seat at color, if any.
func (h *Hub) sendTo(l *lobby.Lobby, color chess.Color, tag chessdto.Tag, payload any) {
	p, ok := l.Player(color)
	if !ok {
		return
	}
	if conn, ok := h.sockets.Get(l.ID(), p.Token); ok {
		h.send(conn, tag, payload)
	}
}

func (h *Hub) broadcast(l *lobby.Lobby, tag chessdto.Tag, payload any) {
	h.sendTo(l, chess.White, tag, payload)
	h.sendTo(l, chess.Black, tag, payload)
}

func (h *Hub) fail(conn sockets.Conn, err error) {
	h.send(conn, chessdto.TagError, chessdto.ErrorPayload{Message: h.describe(err)})
}

var errorTexts = []struct {
	err error
	key string
}{
	{chessdto.ErrDecode, "protocol.malformed"},
	{errUnsupported, "protocol.unsupported"},
	{chess.ErrIllegalMove, "game.illegal_move"},
	{chess.ErrGameNotInPlay, "game.not_in_play"},
	{lobby.ErrLobbyNotFound, "status.lobby_not_found"},
	{lobby.ErrLobbyFull, "handshake.lobby_full"},
	{lobby.ErrAlreadyStarted, "handshake.lobby_started"},
	{lobby.ErrNotReady, "game.not_ready"},
	{lobby.ErrInvalidToken, "handshake.invalid_token"},
	{lobby.ErrAlreadyOnline, "handshake.already_online"},
	{lobby.ErrNotYourTurn, "game.not_your_turn"},
	{lobby.ErrGameNotInPlay, "game.not_in_play"},
	{lobby.ErrGameNotFinished, "game.not_finished"},
	{lobby.ErrOfferOutstanding, "game.offer_outstanding"},
	{lobby.ErrNoOffer, "game.no_offer"},
	{lobby.ErrTooLateToAbort, "game.too_late_to_abort"},
	{lobby.ErrUnauthorized, "game.unauthorized"},
}

func (h *Hub) describe(err error) string {
	var tagged taggedErr
	data := map[string]string{"Tag": ""}
	if errors.As(err, &tagged) {
		data["Tag"] = string(tagged.tag)
	}
	for _, e := range errorTexts {
		if errors.Is(err, e.err) {
			return h.texts.Text(e.key, data, err.Error())
		}
	}
	if data["Tag"] != "" {
		return h.texts.Text("protocol.failed", data, err.Error())
	}
	return h.texts.Text("status.internal", nil, err.Error())
}

func ownPlayer(p lobby.Player) chessdto.Player {
	return chessdto.Player{ID: p.ID, Name: p.Name, IsOnline: p.IsOnline, Token: p.Token}
}

func publicPlayer(p *lobby.Player) chessdto.Player {
	if p == nil {
		return chessdto.Player{}
	}
	return chessdto.Player{ID: p.ID, Name: p.Name, IsOnline: p.IsOnline}
}
