package app

import (
	"sort"
	"strconv"

	"wager-quiz-service/internal/domain"
)

// newGame is the state written by start-game, before the first advance.
func newGame(gameID, hostID string, playlist []domain.PlaylistEntry) domain.GameState {
	return domain.GameState{
		GameID:         gameID,
		HostID:         hostID,
		Round:          0,
		Status:         domain.StatusWaiting,
		Playlist:       playlist,
		PlaylistLength: len(playlist),
	}
}

// advance moves to the next splash, active question, or game-over.
// The bool is false when the state does not accept an advance.
//
// A category boundary only announces the category and leaves Round untouched;
// the following start-category consumes the index. Round therefore always
// counts the questions already made active.
func advance(gs domain.GameState) (domain.GameState, bool) {
	if gs.Status != domain.StatusWaiting && gs.Status != domain.StatusRevealed {
		return gs, false
	}

	next := gs
	next.Results = nil
	next.RevealedQuestion = nil
	next.CurrentQuestion = nil

	i := gs.Round
	if i >= gs.PlaylistLength || i >= len(gs.Playlist) {
		next.Status = domain.StatusGameOver
		return next, true
	}

	entry := gs.Playlist[i]
	category := entry.Category()
	next.CurrentCategory = &category

	if i == 0 || gs.Playlist[i-1].CategoryID != entry.CategoryID {
		next.Status = domain.StatusCategorySplash
		return next, true
	}

	next.Status = domain.StatusActive
	next.CurrentQuestion = roundQuestion(entry)
	next.Round = i + 1
	return next, true
}

// startCategory activates the first question of the announced category.
func startCategory(gs domain.GameState) (domain.GameState, bool) {
	if gs.Status != domain.StatusCategorySplash || gs.Round >= len(gs.Playlist) {
		return gs, false
	}
	next := gs
	entry := gs.Playlist[gs.Round]
	category := entry.Category()
	next.Status = domain.StatusActive
	next.CurrentCategory = &category
	next.CurrentQuestion = roundQuestion(entry)
	next.Results = nil
	next.RevealedQuestion = nil
	next.Round = gs.Round + 1
	return next, true
}

func roundQuestion(entry domain.PlaylistEntry) *domain.RoundQuestion {
	return &domain.RoundQuestion{
		PlaylistEntry: entry,
		Options:       []string{entry.Option1, entry.Option2},
	}
}

// scoreRound turns the round's submissions into results and new player scores.
// Submissions from players that no longer exist are skipped.
func scoreRound(correctAnswer string, submissions []domain.Submission, players map[string]domain.Player) ([]domain.RoundResult, []domain.Player) {
	sort.Slice(submissions, func(i, j int) bool {
		if submissions[i].PlayerName != submissions[j].PlayerName {
			return submissions[i].PlayerName < submissions[j].PlayerName
		}
		return submissions[i].PlayerID < submissions[j].PlayerID
	})

	results := make([]domain.RoundResult, 0, len(submissions))
	updated := make([]domain.Player, 0, len(submissions))
	for _, sub := range submissions {
		player, ok := players[sub.PlayerID]
		if !ok {
			continue
		}
		correct := sub.Guess == correctAnswer
		change := "+" + strconv.Itoa(sub.Wager)
		if correct {
			player.Score += sub.Wager
		} else {
			player.Score -= sub.Wager
			change = "-" + strconv.Itoa(sub.Wager)
		}
		updated = append(updated, player)
		results = append(results, domain.RoundResult{
			PlayerID:    sub.PlayerID,
			PlayerName:  sub.PlayerName,
			Guess:       sub.Guess,
			Wager:       sub.Wager,
			IsCorrect:   correct,
			ScoreChange: change,
		})
	}
	return results, updated
}

// reveal closes the active round with its results.
func reveal(gs domain.GameState, results []domain.RoundResult) domain.GameState {
	next := gs
	next.Status = domain.StatusRevealed
	next.RevealedQuestion = gs.CurrentQuestion
	next.CurrentQuestion = nil
	next.Results = results
	return next
}
