package protocol

import (
	"fmt"

	"github.com/park285/cheese-chess-server/internal/chess"
	"github.com/park285/cheese-chess-server/internal/lobby"
	"github.com/park285/cheese-chess-server/pkg/chessdto"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

var errUnsupported error = staticErr("unsupported message")

// taggedErr remembers which message failed.
type taggedErr struct {
	tag chessdto.Tag
	err error
}

func (e taggedErr) Error() string { return fmt.Sprintf("%s: %v", e.tag, e.err) }
func (e taggedErr) Unwrap() error { return e.err }

// outsidePlay lists the messages allowed while no game is in play.
var outsidePlay = map[chessdto.Tag]bool{
	chessdto.TagPlayAgainOffered:   true,
	chessdto.TagPlayAgainAccepted:  true,
	chessdto.TagOfferCancelled:     true,
	chessdto.TagSentOfferCancelled: true,
	chessdto.TagSentOfferDeclined:  true,
}

// participate requires a seated, online sender and, for most messages, a game
// in play.
func (h *Hub) participate(l *lobby.Lobby, s *Session, tag chessdto.Tag) error {
	seat, ok := l.Seat(s.Token)
	if !ok {
		return lobby.ErrInvalidToken
	}
	if !seat.Player.IsOnline {
		return lobby.ErrUnauthorized
	}
	// colors swap on a rematch
	s.Color = seat.Color
	if !outsidePlay[tag] && (!l.IsStarted() || !l.Status().Playable()) {
		return lobby.ErrGameNotInPlay
	}
	return nil
}

func (h *Hub) dispatch(l *lobby.Lobby, s *Session, msg chessdto.Message) error {
	var err error
	switch msg.Tag {
	case chessdto.TagMoved:
		err = h.move(l, s, msg)
	case chessdto.TagResigned:
		err = h.resign(l, s)
	case chessdto.TagAborted:
		err = h.abort(l, s)
	case chessdto.TagDrawOffered:
		err = h.offer(l, s, lobby.OfferDraw, msg.Tag)
	case chessdto.TagUndoOffered:
		err = h.offer(l, s, lobby.OfferUndo, msg.Tag)
	case chessdto.TagPlayAgainOffered:
		err = h.offer(l, s, lobby.OfferPlayAgain, msg.Tag)
	case chessdto.TagDrawAccepted:
		err = h.acceptDraw(l, s)
	case chessdto.TagUndoAccepted:
		err = h.acceptUndo(l, s)
	case chessdto.TagPlayAgainAccepted:
		err = h.acceptPlayAgain(l, s)
	case chessdto.TagOfferCancelled:
		err = h.cancelOffer(l, s)
	case chessdto.TagSentOfferDeclined:
		err = h.declineOffer(l, s)
	default:
		err = errUnsupported
	}
	if err != nil {
		return taggedErr{tag: msg.Tag, err: err}
	}
	return nil
}

func (h *Hub) move(l *lobby.Lobby, s *Session, msg chessdto.Message) error {
	var p chessdto.MovedPayload
	if err := msg.Bind(&p); err != nil {
		return err
	}
	from, to := chess.Square(p.From), chess.Square(p.To)
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("%w: square out of range", chess.ErrIllegalMove)
	}
	var promo chess.PieceType
	if p.Promotion != "" {
		t, ok := chess.PromotionType(p.Promotion)
		if !ok {
			return fmt.Errorf("%w: bad promotion %q", chess.ErrIllegalMove, p.Promotion)
		}
		promo = t
	}
	m, status, err := l.Move(s.Token, from, to, promo)
	if err != nil {
		// the move may have been refused because the mover's flag fell
		if status.Finished() {
			h.finished(l, status)
		}
		return err
	}
	out := chessdto.MovedPayload{From: int(m.From), To: int(m.To)}
	if m.Promotion != "" {
		out.Promotion = string(m.Promotion)
	}
	h.sendTo(l, s.Color.Opponent(), chessdto.TagMoved, out)
	if status.Finished() {
		h.finished(l, status)
	}
	return nil
}

func (h *Hub) finished(l *lobby.Lobby, status chess.GameStatus) {
	h.broadcast(l, chessdto.TagFinished, chessdto.StatusPayload{GameStatus: string(status)})
}

func (h *Hub) resign(l *lobby.Lobby, s *Session) error {
	status, err := l.Resign(s.Token)
	if err != nil {
		return err
	}
	h.broadcast(l, chessdto.TagResigned, chessdto.StatusPayload{GameStatus: string(status)})
	h.finished(l, status)
	return nil
}

func (h *Hub) abort(l *lobby.Lobby, s *Session) error {
	status, err := l.Abort(s.Token)
	if err != nil {
		return err
	}
	h.broadcast(l, chessdto.TagAborted, nil)
	h.finished(l, status)
	return nil
}

// offer forwards the proposal to the opponent under the same tag.
func (h *Hub) offer(l *lobby.Lobby, s *Session, kind lobby.OfferKind, tag chessdto.Tag) error {
	if _, err := l.Offer(s.Token, kind); err != nil {
		return err
	}
	h.sendTo(l, s.Color.Opponent(), tag, nil)
	return nil
}

func (h *Hub) acceptDraw(l *lobby.Lobby, s *Session) error {
	res, err := l.AcceptOffer(s.Token, lobby.OfferDraw)
	if err != nil {
		return err
	}
	h.broadcast(l, chessdto.TagDrawAccepted, nil)
	h.finished(l, res.Status)
	return nil
}

func (h *Hub) acceptUndo(l *lobby.Lobby, s *Session) error {
	res, err := l.AcceptOffer(s.Token, lobby.OfferUndo)
	if err != nil {
		return err
	}
	h.broadcast(l, chessdto.TagUndoAccepted, chessdto.UndoPayload{Board: res.FEN, UndoColor: string(res.Offerer)})
	return nil
}

func (h *Hub) acceptPlayAgain(l *lobby.Lobby, s *Session) error {
	if _, err := l.AcceptOffer(s.Token, lobby.OfferPlayAgain); err != nil {
		return err
	}
	h.broadcast(l, chessdto.TagPlayAgainAccepted, nil)
	h.broadcast(l, chessdto.TagStarted, h.started(l))
	return nil
}

func (h *Hub) cancelOffer(l *lobby.Lobby, s *Session) error {
	if _, err := l.CancelOffer(s.Token); err != nil {
		return err
	}
	h.sendTo(l, s.Color.Opponent(), chessdto.TagSentOfferCancelled, nil)
	return nil
}

func (h *Hub) declineOffer(l *lobby.Lobby, s *Session) error {
	o, err := l.DeclineOffer(s.Token)
	if err != nil {
		return err
	}
	h.sendTo(l, o.From, chessdto.TagSentOfferDeclined, nil)
	return nil
}
