package chessdto

import "encoding/json"

// Player is a seat as seen on the wire. Token is only ever sent to its owner.
type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsOnline bool   `json:"isOnline"`
	Token    string `json:"token,omitempty"`
}

// JoinedPayload is carried by CREATED and CONNECTED.
type JoinedPayload struct {
	LobbyID string `json:"lobbyId"`
	Player  Player `json:"player"`
}

// StartedPayload carries both seats and the game, as a JSON snapshot.
type StartedPayload struct {
	WhitePlayer Player          `json:"whitePlayer"`
	BlackPlayer Player          `json:"blackPlayer"`
	Game        json.RawMessage `json:"game"`
}

// StatusPayload is carried by FINISHED and RESIGNED.
type StatusPayload struct {
	GameStatus string `json:"gameStatus"`
}

// MovedPayload uses square ids 1..64 (a8=1, h1=64).
type MovedPayload struct {
	From      int    `json:"from"`
	To        int    `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type UndoPayload struct {
	Board     string `json:"board"`
	UndoColor string `json:"undoColor"`
}

// PresencePayload is carried by DISCONNECTED and RECONNECTED.
type PresencePayload struct {
	LobbyID string `json:"lobbyId"`
	Color   string `json:"color"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
