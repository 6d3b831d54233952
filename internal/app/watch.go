package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"wager-quiz-service/internal/domain"
)

// WatchGame streams the game document. The zero GameState means no game exists yet.
func (s *GameService) WatchGame(ctx context.Context) (<-chan domain.GameState, func(), error) {
	return watch(ctx, s.fabric, gameCollection, decodeGame)
}

// WatchScoreboard streams the player list ordered by score.
func (s *GameService) WatchScoreboard(ctx context.Context) (<-chan []domain.Player, func(), error) {
	return watch(ctx, s.fabric, playersCollection, decodeScoreboard)
}

// WatchSubmissions streams the ledger partition of one round of one game.
func (s *GameService) WatchSubmissions(ctx context.Context, gameID string, round int) (<-chan []domain.Submission, func(), error) {
	return watch(ctx, s.fabric, SubmissionsCollection(gameID, round), decodeSubmissions)
}

// WatchCategories streams the category list.
func (s *GameService) WatchCategories(ctx context.Context) (<-chan []domain.Category, func(), error) {
	return watch(ctx, s.fabric, categoryCollection, decodeCategories)
}

// WatchQuestions streams the whole question bank.
func (s *GameService) WatchQuestions(ctx context.Context) (<-chan []domain.Question, func(), error) {
	return watch(ctx, s.fabric, questionCollection, decodeQuestions)
}

func watch[T any](ctx context.Context, f *Fabric, collection string, decode func(Snapshot) (T, error)) (<-chan T, func(), error) {
	snaps, cancel, err := f.Subscribe(ctx, collection)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan T, 1)
	go func() {
		defer close(out)
		for snap := range snaps {
			v, err := decode(snap)
			if err != nil {
				log.WithError(err).WithField("collection", collection).Warn("watch: dropping undecodable snapshot")
				continue
			}
			offerLatest(out, v)
		}
	}()
	return out, cancel, nil
}
