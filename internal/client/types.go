package client

import (
	"net/url"
	"strconv"

	"github.com/park285/cheese-chess-server/pkg/chessdto"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
	StateClosed       State = "closed"
)

type MessageCallback func(msg chessdto.Message)

type StateCallback func(state State)

// Params selects how a Session enters a lobby. Name without LobbyID creates
// a lobby; Name with LobbyID joins; Token with LobbyID reconnects.
type Params struct {
	Name    string
	LobbyID string
	Token   string

	// create only; Remaining 0 means untimed
	Board     string
	Remaining int64
	Increment int64
}

func (p Params) query() url.Values {
	q := url.Values{}
	if p.LobbyID != "" {
		q.Set("lobbyId", p.LobbyID)
	}
	if p.Token != "" {
		q.Set("token", p.Token)
		return q
	}
	q.Set("name", p.Name)
	if p.LobbyID == "" {
		board := p.Board
		if board == "" {
			board = "Standard"
		}
		q.Set("board", board)
		q.Set("remaining", strconv.FormatInt(p.Remaining, 10))
		q.Set("increment", strconv.FormatInt(p.Increment, 10))
	}
	return q
}
