// Command lobbycheck probes a running chess server: it queries the status
// endpoint, optionally asks about one lobby and watches a fresh lobby over
// WebSocket for a short window.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/park285/cheese-chess-server/internal/client"
	"github.com/park285/cheese-chess-server/pkg/chessdto"
)

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "server base URL")
	lobbyID := flag.String("lobby", "", "lobby id to look up")
	watch := flag.Duration("watch", 5*time.Second, "how long to observe a test lobby; 0 skips the WebSocket check")
	flag.Parse()

	c := client.NewClient(*baseURL, client.WithTimeout(8*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	banner, err := c.Health(ctx)
	if err != nil {
		log.Fatalf("status error: %v", err)
	}
	log.Printf("status ok: %s", banner)

	if *lobbyID != "" {
		ok, err := c.LobbyExists(ctx, *lobbyID)
		if err != nil {
			log.Printf("lobby %s error: %v", *lobbyID, err)
		} else {
			log.Printf("lobby %s exists=%v", *lobbyID, ok)
		}
	}

	if *watch <= 0 {
		return
	}

	wsURL := "ws" + strings.TrimPrefix(strings.TrimRight(*baseURL, "/"), "http")
	s := client.NewSession(wsURL, client.WithReconnect(0))
	s.OnStateChange(func(state client.State) {
		log.Printf("WS state: %s", state)
	})
	s.OnMessage(func(msg chessdto.Message) {
		fmt.Printf("WS msg tag=%s payload=%s\n", msg.Tag, msg.Payload)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := s.Connect(cctx, client.Params{Name: "lobbycheck"}); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}

	t := time.NewTimer(*watch)
	<-t.C

	if id := s.LobbyID(); id != "" {
		ok, err := c.LobbyExists(context.Background(), id)
		log.Printf("created lobby %s exists=%v err=%v", id, ok, err)
	}
	_ = s.Close(context.Background())
}
