package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	"wager-quiz-service/internal/app"
	"wager-quiz-service/internal/domain"
)

const qrSize = 320

// API serves the question bank, roster and game read model over REST.
type API struct {
	service   *app.GameService
	publicURL string
}

func NewAPI(service *app.GameService, publicURL string) *API {
	return &API{service: service, publicURL: publicURL}
}

type Response struct {
	Message string      `json:"message,omitempty"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (a *API) SetRoutes(r chi.Router) {
	r.Get("/categories", a.listCategories)
	r.Post("/categories", a.createCategory)
	r.Delete("/categories/{id}", a.deleteCategory)

	r.Get("/questions", a.listQuestions)
	r.Post("/questions", a.createQuestion)
	r.Delete("/questions/{id}", a.deleteQuestion)

	r.Get("/players", a.listPlayers)
	r.Delete("/players/{id}", a.deletePlayer)

	r.Get("/game", a.getGame)
	r.Get("/identity", a.newIdentity)
	r.Get("/join.png", a.joinQR)
}

func (a *API) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.service.Categories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (a *API) createCategory(w http.ResponseWriter, r *http.Request) {
	var c domain.Category
	if !decodeBody(w, r, &c) {
		return
	}
	created, err := a.service.AddCategory(r.Context(), c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := a.service.Questions(r.Context(), r.URL.Query().Get("categoryId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (a *API) createQuestion(w http.ResponseWriter, r *http.Request) {
	var q domain.Question
	if !decodeBody(w, r, &q) {
		return
	}
	created, err := a.service.AddQuestion(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteQuestion(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := a.service.Scoreboard(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, players)
}

func (a *API) deletePlayer(w http.ResponseWriter, r *http.Request) {
	if err := a.service.RemovePlayer(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getGame(w http.ResponseWriter, r *http.Request) {
	gs, err := a.service.Game(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if !gs.Started() {
		writeError(w, domain.ErrGameNotStarted)
		return
	}
	writeJSON(w, http.StatusOK, playerView(gs))
}

func (a *API) newIdentity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"id": uuid.NewString()})
}

// joinQR encodes the player URL so phones can join by scanning the host screen.
func (a *API) joinQR(w http.ResponseWriter, r *http.Request) {
	url := a.publicURL
	if url == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		url = scheme + "://" + r.Host
	}
	url = strings.TrimSuffix(url, "/") + "/?role=player"

	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSONResponse(w, Response{Code: http.StatusBadRequest, Error: "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	writeJSONResponse(w, Response{Code: code, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.WithError(err).Error("api request failed")
	}
	writeJSONResponse(w, Response{Code: code, Error: err.Error()})
}

func writeJSONResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.WithError(err).Warn("encode response")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidCategory),
		errors.Is(err, domain.ErrInvalidQuestion),
		errors.Is(err, domain.ErrInvalidWager),
		errors.Is(err, domain.ErrInvalidGuess):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCategoryNotFound),
		errors.Is(err, domain.ErrPlayerNotFound),
		errors.Is(err, domain.ErrGameNotStarted):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTransactionConflict),
		errors.Is(err, domain.ErrEmptyQuestionBank):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// playerView hides what players must not see: the upcoming playlist and the
// answer of the open question.
func playerView(gs domain.GameState) domain.GameState {
	v := gs
	v.Playlist = nil
	if gs.CurrentQuestion != nil {
		q := *gs.CurrentQuestion
		q.CorrectAnswer = ""
		v.CurrentQuestion = &q
	}
	return v
}
