package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"wager-quiz-service/internal/app"
	"wager-quiz-service/internal/domain"
	"wager-quiz-service/internal/infra/memory"
)

func TestWebSocketGameFlow(t *testing.T) {
	service, server := newTestServer(t)
	seedCategory(t, service)

	host := dial(t, server, "/ws?role=host&hostId=h1")
	readEach(t, host, map[string]func(json.RawMessage) bool{
		"scoreboard": nil,
		"categories": func(raw json.RawMessage) bool {
			var categories []domain.Category
			_ = json.Unmarshal(raw, &categories)
			return len(categories) == 1 && categories[0].Name == "Animals"
		},
		"questions": func(raw json.RawMessage) bool {
			var questions []domain.Question
			_ = json.Unmarshal(raw, &questions)
			return len(questions) == 2
		},
	})

	player := dial(t, server, "/ws?role=player&playerId=p1&name=Alice")
	readUntil(t, player, "joined", nil)

	send(t, host, "start", nil)
	readUntil(t, host, "ack", func(raw json.RawMessage) bool {
		var ack ackPayload
		_ = json.Unmarshal(raw, &ack)
		return ack.Action == "start" && ack.Applied
	})

	send(t, host, "startCategory", nil)
	var hostGame domain.GameState
	readUntil(t, host, "game", func(raw json.RawMessage) bool {
		_ = json.Unmarshal(raw, &hostGame)
		return hostGame.Status == domain.StatusActive
	})
	if hostGame.CurrentQuestion.CorrectAnswer == "" || len(hostGame.Playlist) != 2 {
		t.Fatalf("host view must carry the full game, got %+v", hostGame)
	}

	var playerGame domain.GameState
	readUntil(t, player, "game", func(raw json.RawMessage) bool {
		_ = json.Unmarshal(raw, &playerGame)
		return playerGame.Status == domain.StatusActive
	})
	if playerGame.CurrentQuestion.CorrectAnswer != "" || playerGame.Playlist != nil {
		t.Fatalf("player view leaked the answer or playlist: %+v", playerGame)
	}

	send(t, player, "submit", submitPayload{Round: playerGame.Round, Guess: hostGame.CurrentQuestion.CorrectAnswer, Wager: 3})
	readUntil(t, player, "submitted", func(raw json.RawMessage) bool {
		var p submittedPayload
		_ = json.Unmarshal(raw, &p)
		return p.Recorded && p.Round == playerGame.Round
	})

	readUntil(t, host, "submissions", func(raw json.RawMessage) bool {
		var p submissionsPayload
		_ = json.Unmarshal(raw, &p)
		return p.Round == hostGame.Round && len(p.Submissions) == 1 && p.Submissions[0].PlayerName == "Alice"
	})

	// A second session of the same player sees its pending submission.
	rejoined := dial(t, server, "/ws?role=player&playerId=p1&name=Alice")
	readUntil(t, rejoined, "submitted", func(raw json.RawMessage) bool {
		var p submittedPayload
		_ = json.Unmarshal(raw, &p)
		return p.Recorded && p.Round == playerGame.Round && p.Wager == 3 && p.Guess == hostGame.CurrentQuestion.CorrectAnswer
	})

	send(t, host, "reveal", nil)
	readUntil(t, player, "scoreboard", func(raw json.RawMessage) bool {
		var players []domain.Player
		_ = json.Unmarshal(raw, &players)
		return len(players) == 1 && players[0].Score == 3
	})
	readUntil(t, player, "game", func(raw json.RawMessage) bool {
		var gs domain.GameState
		_ = json.Unmarshal(raw, &gs)
		return gs.Status == domain.StatusRevealed && gs.RevealedQuestion != nil && gs.RevealedQuestion.CorrectAnswer != ""
	})
}

func TestWebSocketRejectsStaleAndInvalidSubmissions(t *testing.T) {
	service, server := newTestServer(t)
	seedCategory(t, service)

	player := dial(t, server, "/ws?role=player&playerId=p1&name=Alice")
	readUntil(t, player, "joined", nil)

	send(t, player, "submit", submitPayload{Round: 1, Guess: "Yes", Wager: 2})
	readUntil(t, player, "submitted", func(raw json.RawMessage) bool {
		var p submittedPayload
		_ = json.Unmarshal(raw, &p)
		return !p.Recorded
	})

	send(t, player, "submit", submitPayload{Round: 1, Guess: "Yes", Wager: 9})
	readUntil(t, player, "error", func(raw json.RawMessage) bool {
		return strings.Contains(string(raw), domain.ErrInvalidWager.Error())
	})

	send(t, player, "dance", nil)
	readUntil(t, player, "error", func(raw json.RawMessage) bool {
		return strings.Contains(string(raw), "unsupported")
	})
}

func TestWebSocketRequiresIdentity(t *testing.T) {
	_, server := newTestServer(t)
	for _, path := range []string{
		"/ws?role=player&playerId=p1&name=%20",
		"/ws?role=player&name=Alice",
		"/ws?role=host",
		"/ws?role=judge",
	} {
		resp, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, resp.StatusCode)
		}
	}
}

func newTestServer(t *testing.T) (*app.GameService, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	service := app.NewGameService(memory.NewStore())
	if err := service.Start(ctx); err != nil {
		t.Fatalf("start service: %v", err)
	}
	server := httptest.NewServer(NewRouter(service, RouterConfig{PublicURL: "http://quiz.test"}))
	t.Cleanup(server.Close)
	return service, server
}

func seedCategory(t *testing.T, service *app.GameService) domain.Category {
	t.Helper()
	ctx := context.Background()
	cat, err := service.AddCategory(ctx, domain.Category{Name: "Animals", Option1: "Yes", Option2: "No"})
	if err != nil {
		t.Fatalf("add category: %v", err)
	}
	for _, q := range []domain.Question{
		{Term: "Whale is a mammal", CorrectAnswer: "Yes", CategoryID: cat.ID},
		{Term: "Shark is a mammal", CorrectAnswer: "No", CategoryID: cat.ID},
	} {
		if _, err := service.AddQuestion(ctx, q); err != nil {
			t.Fatalf("add question: %v", err)
		}
	}
	return cat
}

func dial(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + path
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload interface{}) {
	t.Helper()
	msg := map[string]interface{}{"type": typ}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readEach reads until every message type in want has been seen with a matching payload.
func readEach(t *testing.T, conn *websocket.Conn, want map[string]func(json.RawMessage) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	pending := make(map[string]func(json.RawMessage) bool, len(want))
	for typ, match := range want {
		pending[typ] = match
	}
	for len(pending) > 0 {
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		_ = conn.SetReadDeadline(deadline)
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %d message types: %v", len(pending), err)
		}
		match, ok := pending[msg.Type]
		if ok && (match == nil || match(msg.Payload)) {
			delete(pending, msg.Type)
		}
	}
}

// readUntil skips messages until one of type typ satisfies match.
func readUntil(t *testing.T, conn *websocket.Conn, typ string, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		_ = conn.SetReadDeadline(deadline)
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if msg.Type == typ && (match == nil || match(msg.Payload)) {
			return msg.Payload
		}
	}
}
