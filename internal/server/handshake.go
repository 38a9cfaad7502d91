package server

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/park285/cheese-chess-server/internal/chess"
	"github.com/park285/cheese-chess-server/internal/obslog"
	"github.com/park285/cheese-chess-server/internal/protocol"
	"github.com/park285/cheese-chess-server/pkg/chessdto"
	"go.uber.org/zap"
)

// lobby ids are 6 upper alnum characters
const lobbyIDLength = 6

var validate = validator.New()

// handshake is the raw set of connection parameters.
type handshake struct {
	Name      string
	LobbyID   string
	Token     string
	Board     string
	Remaining string
	Increment string
}

func handshakeFrom(q url.Values) handshake {
	get := func(k string) string { return strings.TrimSpace(q.Get(k)) }
	return handshake{
		Name:      get("name"),
		LobbyID:   strings.ToUpper(get("lobbyId")),
		Token:     get("token"),
		Board:     get("board"),
		Remaining: get("remaining"),
		Increment: get("increment"),
	}
}

type rule struct {
	field string
	value any
	tag   string
	key   string
	data  map[string]any
}

// entry validates field ranges first, then the combination of fields, and
// maps the result onto one of the three entry modes.
func (s *Server) entry(q url.Values) (protocol.Entry, error) {
	h := handshakeFrom(q)
	lim := s.cfg

	remaining, err := s.number("remaining", h.Remaining)
	if err != nil {
		return protocol.Entry{}, err
	}
	increment, err := s.number("increment", h.Increment)
	if err != nil {
		return protocol.Entry{}, err
	}

	rules := []rule{
		{"name", h.Name, fmt.Sprintf("omitempty,min=%d,max=%d", lim.NameMinLength, lim.NameMaxLength),
			"handshake.name", map[string]any{"Min": lim.NameMinLength, "Max": lim.NameMaxLength}},
		{"lobbyId", h.LobbyID, fmt.Sprintf("omitempty,len=%d,alphanum", lobbyIDLength),
			"handshake.lobby_id", map[string]any{"Len": lobbyIDLength}},
		{"token", h.Token, "omitempty,uuid4", "handshake.token", nil},
		{"board", h.Board, fmt.Sprintf("omitempty,max=%d", lim.BoardMaxLength),
			"handshake.board", map[string]any{"Max": lim.BoardMaxLength}},
		{"remaining", remaining, fmt.Sprintf("omitempty,min=%d,max=%d", lim.TotalTimeMinMs, lim.TotalTimeMaxMs),
			"handshake.remaining", map[string]any{"Min": lim.TotalTimeMinMs, "Max": lim.TotalTimeMaxMs}},
		{"increment", increment, fmt.Sprintf("min=0,max=%d", lim.IncrementMaxMs),
			"handshake.increment", map[string]any{"Max": lim.IncrementMaxMs}},
	}
	for _, r := range rules {
		if err := validate.Var(r.value, r.tag); err != nil {
			logRule(r.field, err)
			return protocol.Entry{}, s.badRequest(r.key, r.data)
		}
	}

	createParams := h.Board != "" || h.Remaining != "" || h.Increment != ""
	switch {
	case h.Name != "" && h.Token != "":
		return protocol.Entry{}, s.badRequest("handshake.name_and_token", nil)
	case h.Name == "" && h.Token == "":
		return protocol.Entry{}, s.badRequest("handshake.name_or_token", nil)
	case h.Token != "" && h.LobbyID == "":
		return protocol.Entry{}, s.badRequest("handshake.token_needs_lobby", nil)
	case createParams && (h.Name == "" || h.LobbyID != "" || h.Token != ""):
		return protocol.Entry{}, s.badRequest("handshake.create_only", nil)
	case h.Name != "" && h.LobbyID == "" && (h.Board == "" || h.Remaining == "" || h.Increment == ""):
		return protocol.Entry{}, s.badRequest("handshake.create_requires", nil)
	}

	switch {
	case h.Name != "" && h.LobbyID == "":
		e := protocol.Entry{Mode: protocol.ModeCreate, Name: h.Name, Board: h.Board}
		if remaining > 0 {
			d := chess.Duration{Remaining: remaining, Increment: increment}
			e.Durations = &chess.Durations{White: d, Black: d}
		}
		return e, nil
	case h.Name != "":
		return protocol.Entry{Mode: protocol.ModeJoin, Name: h.Name, LobbyID: h.LobbyID}, nil
	default:
		return protocol.Entry{Mode: protocol.ModeReconnect, Token: h.Token, LobbyID: h.LobbyID}, nil
	}
}

func (s *Server) number(field, raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, s.badRequest("handshake.number", map[string]any{"Field": field})
	}
	return n, nil
}

func (s *Server) badRequest(key string, data map[string]any) error {
	code := key[strings.LastIndex(key, ".")+1:]
	return chessdto.BadRequest(code, s.texts.Text(key, data, "Invalid request."))
}

func logRule(field string, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		obslog.L().Warn("handshake_invalid", zap.String("field", field), zap.Error(err))
		return
	}
	for _, fe := range verrs {
		obslog.L().Debug("handshake_invalid",
			zap.String("field", field),
			zap.String("rule", fe.Tag()),
			zap.String("param", fe.Param()),
		)
	}
}
