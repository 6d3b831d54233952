package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"wager-quiz-service/internal/app"
	"wager-quiz-service/internal/domain"
)

const (
	roleHost   = "host"
	rolePlayer = "player"

	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

type WSHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type submitPayload struct {
	Round int    `json:"round"`
	Guess string `json:"guess"`
	Wager int    `json:"wager"`
}

type submittedPayload struct {
	Round    int    `json:"round"`
	Recorded bool   `json:"recorded"`
	Guess    string `json:"guess,omitempty"`
	Wager    int    `json:"wager,omitempty"`
}

type removePlayerPayload struct {
	PlayerID string `json:"playerId"`
}

type ackPayload struct {
	Action  string `json:"action"`
	Applied bool   `json:"applied"`
}

type submissionsPayload struct {
	GameID      string              `json:"gameId"`
	Round       int                 `json:"round"`
	Submissions []domain.Submission `json:"submissions"`
}

// roundKey identifies the ledger partition a host is watching.
type roundKey struct {
	gameID string
	round  int
}

// ServeWS upgrades HTTP requests to websockets for either the host or a player.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch q.Get("role") {
	case roleHost:
		hostID := q.Get("hostId")
		if hostID == "" {
			http.Error(w, "missing hostId", http.StatusBadRequest)
			return
		}
		h.serve(w, r, func(c *wsConn) error { return h.runHost(c, hostID) })
	case rolePlayer, "":
		playerID := q.Get("playerId")
		name, err := domain.NormalizeName(q.Get("name"))
		if playerID == "" || err != nil {
			http.Error(w, "missing playerId or name", http.StatusBadRequest)
			return
		}
		h.serve(w, r, func(c *wsConn) error { return h.runPlayer(c, playerID, name) })
	default:
		http.Error(w, "unknown role", http.StatusBadRequest)
	}
}

// wsConn serializes writes through a single writer goroutine.
type wsConn struct {
	conn *websocket.Conn
	ctx  context.Context
	send chan outboundMessage
	g    *errgroup.Group
}

func (c *wsConn) emit(typ string, payload interface{}) bool {
	select {
	case c.send <- outboundMessage{Type: typ, Payload: payload}:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *wsConn) emitError(err error) bool {
	return c.emit("error", errorPayload{Message: err.Error()})
}

func (h *WSHandler) serve(w http.ResponseWriter, r *http.Request, run func(c *wsConn) error) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	// A failed stream or writer unblocks the read loop.
	stop := context.AfterFunc(gctx, func() { _ = conn.Close() })

	c := &wsConn{conn: conn, ctx: gctx, send: make(chan outboundMessage, 16), g: g}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range c.send {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write failed")
				cancel()
				return
			}
		}
	}()

	if err := run(c); err != nil && !isClosed(err) {
		log.WithError(err).Warn("ws session ended")
	}

	// Keep the connection open until queued messages are flushed.
	stop()
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Debug("ws streams stopped")
	}
	close(c.send)
	<-writerDone
}

func (h *WSHandler) runPlayer(c *wsConn, playerID, name string) error {
	player, err := h.service.Join(c.ctx, playerID, name)
	if err != nil {
		c.emitError(err)
		return err
	}
	c.emit("joined", player)

	if err := h.streamGame(c, playerView, nil); err != nil {
		c.emitError(err)
		return err
	}
	if err := stream(c, "scoreboard", h.service.WatchScoreboard); err != nil {
		c.emitError(err)
		return err
	}

	// A reconnecting player learns what it already submitted this round.
	sub, round, ok, err := h.service.PlayerSubmission(c.ctx, playerID)
	if err != nil {
		c.emitError(err)
		return err
	}
	if ok {
		c.emit("submitted", submittedPayload{Round: round, Recorded: true, Guess: sub.Guess, Wager: sub.Wager})
	}

	return readLoop(c, func(in inboundMessage) {
		switch in.Type {
		case "submit":
			var payload submitPayload
			if err := json.Unmarshal(in.Payload, &payload); err != nil {
				c.emit("error", errorPayload{Message: "invalid submit payload"})
				return
			}
			recorded, err := h.service.Submit(c.ctx, domain.SubmitRequest{
				Round:    payload.Round,
				PlayerID: playerID,
				Guess:    payload.Guess,
				Wager:    payload.Wager,
			})
			if err != nil {
				c.emitError(err)
				return
			}
			ack := submittedPayload{Round: payload.Round, Recorded: recorded}
			if recorded {
				ack.Guess, ack.Wager = payload.Guess, payload.Wager
			}
			c.emit("submitted", ack)
		default:
			c.emit("error", errorPayload{Message: "unsupported message type"})
		}
	})
}

func (h *WSHandler) runHost(c *wsConn, hostID string) error {
	rounds := make(chan roundKey, 1)
	c.g.Go(func() error { return h.forwardSubmissions(c, rounds) })

	if err := h.streamGame(c, func(gs domain.GameState) domain.GameState { return gs }, rounds); err != nil {
		c.emitError(err)
		return err
	}
	if err := stream(c, "scoreboard", h.service.WatchScoreboard); err != nil {
		c.emitError(err)
		return err
	}
	if err := stream(c, "categories", h.service.WatchCategories); err != nil {
		c.emitError(err)
		return err
	}
	if err := stream(c, "questions", h.service.WatchQuestions); err != nil {
		c.emitError(err)
		return err
	}

	return readLoop(c, func(in inboundMessage) {
		var (
			applied bool
			err     error
		)
		switch in.Type {
		case "start":
			_, err = h.service.StartGame(c.ctx, hostID)
			applied = err == nil
		case "advance":
			_, applied, err = h.service.Advance(c.ctx)
		case "startCategory":
			_, applied, err = h.service.StartCategory(c.ctx)
		case "reveal":
			_, applied, err = h.service.Reveal(c.ctx)
		case "removePlayer":
			var payload removePlayerPayload
			if jsonErr := json.Unmarshal(in.Payload, &payload); jsonErr != nil || payload.PlayerID == "" {
				c.emit("error", errorPayload{Message: "invalid removePlayer payload"})
				return
			}
			err = h.service.RemovePlayer(c.ctx, payload.PlayerID)
			applied = err == nil
		default:
			c.emit("error", errorPayload{Message: "unsupported message type"})
			return
		}
		if err != nil {
			c.emitError(err)
			return
		}
		c.emit("ack", ackPayload{Action: in.Type, Applied: applied})
	})
}

// streamGame forwards game snapshots through view. When rounds is set, every
// change of game or round is announced on it so the ledger watch can follow.
func (h *WSHandler) streamGame(c *wsConn, view func(domain.GameState) domain.GameState, rounds chan roundKey) error {
	games, cancel, err := h.service.WatchGame(c.ctx)
	if err != nil {
		return err
	}
	c.g.Go(func() error {
		defer cancel()
		var last roundKey
		for {
			select {
			case <-c.ctx.Done():
				return nil
			case gs, ok := <-games:
				if !ok {
					return errors.New("game stream closed")
				}
				if rounds != nil && gs.Started() {
					if key := (roundKey{gameID: gs.GameID, round: gs.Round}); key != last {
						last = key
						replaceLatest(rounds, key)
					}
				}
				if !c.emit("game", view(gs)) {
					return nil
				}
			}
		}
	})
	return nil
}

// stream forwards every value of a service watch as a message of type typ.
func stream[T any](c *wsConn, typ string, watch func(context.Context) (<-chan T, func(), error)) error {
	values, cancel, err := watch(c.ctx)
	if err != nil {
		return err
	}
	c.g.Go(func() error {
		defer cancel()
		for {
			select {
			case <-c.ctx.Done():
				return nil
			case v, ok := <-values:
				if !ok {
					return errors.New(typ + " stream closed")
				}
				if !c.emit(typ, v) {
					return nil
				}
			}
		}
	})
	return nil
}

// forwardSubmissions keeps one ledger watch open for the round the game is on.
func (h *WSHandler) forwardSubmissions(c *wsConn, rounds <-chan roundKey) error {
	var (
		current roundKey
		subs    <-chan []domain.Submission
		cancel  = func() {}
	)
	defer func() { cancel() }()

	for {
		select {
		case <-c.ctx.Done():
			return nil
		case key := <-rounds:
			cancel()
			ch, stop, err := h.service.WatchSubmissions(c.ctx, key.gameID, key.round)
			if err != nil {
				return err
			}
			current, subs, cancel = key, ch, stop
		case list, ok := <-subs:
			if !ok {
				subs = nil
				continue
			}
			if !c.emit("submissions", submissionsPayload{GameID: current.gameID, Round: current.round, Submissions: list}) {
				return nil
			}
		}
	}
}

func readLoop(c *wsConn, handle func(inboundMessage)) error {
	for {
		var in inboundMessage
		if err := c.conn.ReadJSON(&in); err != nil {
			return err
		}
		handle(in)
		if c.ctx.Err() != nil {
			return nil
		}
	}
}

func replaceLatest(ch chan roundKey, key roundKey) {
	select {
	case ch <- key:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- key
}

func isClosed(err error) bool {
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr) || errors.Is(err, net.ErrClosed)
}
