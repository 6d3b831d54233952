package domain

// Status is the phase of the round state machine.
type Status string

const (
	StatusWaiting        Status = "waiting"
	StatusCategorySplash Status = "category-splash"
	StatusActive         Status = "active"
	StatusRevealed       Status = "revealed"
	StatusGameOver       Status = "game-over"
)

const (
	MinWager = 1
	MaxWager = 5
)

// Category groups questions that share the same two answer options.
type Category struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Option1 string `json:"option1"`
	Option2 string `json:"option2"`
}

// Question is an entry of the question bank. CategoryName is denormalized at creation.
type Question struct {
	ID            string `json:"id"`
	Term          string `json:"term"`
	CorrectAnswer string `json:"correctAnswer"`
	CategoryID    string `json:"categoryId"`
	CategoryName  string `json:"categoryName"`
}

// Player is one connected client identity and its running score.
type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// PlaylistEntry is a value copy of a question taken when the game started,
// including the options of its category at that moment.
type PlaylistEntry struct {
	Question
	Option1 string `json:"option1"`
	Option2 string `json:"option2"`
}

// Category returns the category the entry was built from.
func (e PlaylistEntry) Category() CategoryView {
	return CategoryView{ID: e.CategoryID, Name: e.CategoryName, Option1: e.Option1, Option2: e.Option2}
}

// CategoryView is the category being played, as shown during splash and active rounds.
type CategoryView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Option1 string `json:"option1"`
	Option2 string `json:"option2"`
}

// RoundQuestion is a playlist entry with its two options attached.
type RoundQuestion struct {
	PlaylistEntry
	Options []string `json:"options"`
}

// HasOption reports whether guess is one of the question's options.
func (q RoundQuestion) HasOption(guess string) bool {
	for _, opt := range q.Options {
		if opt == guess {
			return true
		}
	}
	return false
}

// RoundResult is the scored outcome of one player's submission.
type RoundResult struct {
	PlayerID    string `json:"playerId"`
	PlayerName  string `json:"playerName"`
	Guess       string `json:"guess"`
	Wager       int    `json:"wager"`
	IsCorrect   bool   `json:"isCorrect"`
	ScoreChange string `json:"scoreChange"`
}

// GameState is the authoritative game document. The zero value means no game was started.
type GameState struct {
	GameID           string          `json:"gameId"`
	HostID           string          `json:"hostId"`
	Round            int             `json:"round"`
	Status           Status          `json:"status"`
	Playlist         []PlaylistEntry `json:"playlist"`
	PlaylistLength   int             `json:"playlistLength"`
	CurrentCategory  *CategoryView   `json:"currentCategory"`
	CurrentQuestion  *RoundQuestion  `json:"currentQuestion"`
	RevealedQuestion *RoundQuestion  `json:"revealedQuestion,omitempty"`
	Results          []RoundResult   `json:"results"`
}

// Started reports whether the document holds a game.
func (g GameState) Started() bool {
	return g.Status != ""
}

// Submission is one player's guess for one round.
type Submission struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Guess      string `json:"guess"`
	Wager      int    `json:"wager"`
}

// SubmitRequest is what a player sends to answer the active round.
type SubmitRequest struct {
	Round    int
	PlayerID string
	Guess    string
	Wager    int
}
