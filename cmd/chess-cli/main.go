// Command chess-cli plays one seat against a chess server from the terminal.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/park285/cheese-chess-server/internal/chess"
	"github.com/park285/cheese-chess-server/internal/client"
	"github.com/park285/cheese-chess-server/pkg/chessdto"
)

const helpText = `commands:
  create <name> [board] [remaining-ms] [increment-ms]
  join <lobbyId> <name>
  reconnect <lobbyId> <token>
  move <from><to>[promotion]   e.g. move e2e4, move e7e8q
  resign | abort | draw | undo | again
  accept | decline | cancel
  quit`

func main() {
	wsURL := flag.String("url", "ws://localhost:3000", "server WebSocket URL")
	flag.Parse()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "chess> ",
		HistoryFile:     ".chess_cli_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer rl.Close()

	c := &cli{url: *wsURL, out: rl.Stdout()}
	fmt.Fprintln(c.out, helpText)

	for {
		line, err := rl.Readline()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		if err := c.exec(strings.Fields(line)); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
		if lobby := c.lobbyID(); lobby != "" {
			c.mu.Lock()
			rl.SetPrompt(fmt.Sprintf("chess [%s %s]> ", lobby, c.color))
			c.mu.Unlock()
		}
	}
	c.close()
}

type cli struct {
	url     string
	out     io.Writer
	session *client.Session

	// written by the session's reader
	mu      sync.Mutex
	ownID   string
	color   string
	lastTag chessdto.Tag
}

func (c *cli) lobbyID() string {
	if c.session == nil {
		return ""
	}
	return c.session.LobbyID()
}

func (c *cli) exec(args []string) error {
	cmd, rest := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "help":
		fmt.Fprintln(c.out, helpText)
		return nil
	case "create":
		if len(rest) < 1 {
			return errors.New("usage: create <name> [board] [remaining-ms] [increment-ms]")
		}
		p := client.Params{Name: rest[0]}
		if len(rest) > 1 {
			p.Board = rest[1]
		}
		var err error
		if len(rest) > 2 {
			if p.Remaining, err = strconv.ParseInt(rest[2], 10, 64); err != nil {
				return err
			}
		}
		if len(rest) > 3 {
			if p.Increment, err = strconv.ParseInt(rest[3], 10, 64); err != nil {
				return err
			}
		}
		return c.connect(p)
	case "join":
		if len(rest) != 2 {
			return errors.New("usage: join <lobbyId> <name>")
		}
		return c.connect(client.Params{LobbyID: rest[0], Name: rest[1]})
	case "reconnect":
		if len(rest) != 2 {
			return errors.New("usage: reconnect <lobbyId> <token>")
		}
		return c.connect(client.Params{LobbyID: rest[0], Token: rest[1]})
	case "move":
		if len(rest) != 1 {
			return errors.New("usage: move e2e4")
		}
		p, err := parseMove(rest[0])
		if err != nil {
			return err
		}
		return c.send(chessdto.TagMoved, p)
	case "resign":
		return c.send(chessdto.TagResigned, nil)
	case "abort":
		return c.send(chessdto.TagAborted, nil)
	case "draw":
		return c.send(chessdto.TagDrawOffered, nil)
	case "undo":
		return c.send(chessdto.TagUndoOffered, nil)
	case "again":
		return c.send(chessdto.TagPlayAgainOffered, nil)
	case "accept":
		c.mu.Lock()
		last := c.lastTag
		c.mu.Unlock()
		switch last {
		case chessdto.TagDrawOffered:
			return c.send(chessdto.TagDrawAccepted, nil)
		case chessdto.TagUndoOffered:
			return c.send(chessdto.TagUndoAccepted, nil)
		case chessdto.TagPlayAgainOffered:
			return c.send(chessdto.TagPlayAgainAccepted, nil)
		}
		return errors.New("no offer to accept")
	case "decline":
		return c.send(chessdto.TagSentOfferDeclined, nil)
	case "cancel":
		return c.send(chessdto.TagOfferCancelled, nil)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func (c *cli) connect(p client.Params) error {
	c.close()
	s := client.NewSession(c.url)
	s.OnMessage(c.print)
	s.OnStateChange(func(st client.State) { fmt.Fprintf(c.out, "* %s\n", st) })
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Connect(ctx, p); err != nil {
		return err
	}
	c.session = s
	return nil
}

func (c *cli) send(tag chessdto.Tag, payload any) error {
	if c.session == nil {
		return errors.New("not connected; create or join first")
	}
	return c.session.Send(context.Background(), tag, payload)
}

func (c *cli) close() {
	if c.session == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = c.session.Close(ctx)
	c.session = nil
}

func (c *cli) print(msg chessdto.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Tag {
	case chessdto.TagDrawOffered, chessdto.TagUndoOffered, chessdto.TagPlayAgainOffered:
		c.lastTag = msg.Tag
		fmt.Fprintf(c.out, "< %s (accept or decline)\n", msg.Tag)
		return
	case chessdto.TagCreated, chessdto.TagConnected:
		var p chessdto.JoinedPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			c.ownID = p.Player.ID
			fmt.Fprintf(c.out, "< %s lobby=%s token=%s\n", msg.Tag, p.LobbyID, p.Player.Token)
			return
		}
	case chessdto.TagStarted:
		var p chessdto.StartedPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			c.color = string(chess.Black)
			if p.WhitePlayer.ID == c.ownID {
				c.color = string(chess.White)
			}
			fmt.Fprintf(c.out, "< STARTED white=%s black=%s\n", p.WhitePlayer.Name, p.BlackPlayer.Name)
			return
		}
	case chessdto.TagMoved:
		var p chessdto.MovedPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			fmt.Fprintf(c.out, "< MOVED %s%s%s\n", chess.Square(p.From), chess.Square(p.To), strings.ToLower(p.Promotion))
			return
		}
	}
	if len(msg.Payload) == 0 {
		fmt.Fprintf(c.out, "< %s\n", msg.Tag)
		return
	}
	fmt.Fprintf(c.out, "< %s %s\n", msg.Tag, msg.Payload)
}

func parseMove(text string) (chessdto.MovedPayload, error) {
	from, to, promo, err := chess.ParseLAN(text)
	if err != nil {
		return chessdto.MovedPayload{}, err
	}
	return chessdto.MovedPayload{From: int(from), To: int(to), Promotion: string(promo)}, nil
}
