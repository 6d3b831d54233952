package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"wager-quiz-service/internal/domain"
)

// Reveal scores the active round and publishes its results in one
// transaction: the ledger, every submitter's score, the new scores and the
// revealed state are read and written as a unit. A second reveal of the same
// round finds the game already revealed and changes nothing.
func (s *GameService) Reveal(ctx context.Context) (domain.GameState, bool, error) {
	var (
		result  domain.GameState
		applied bool
	)
	err := s.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		applied = false
		gs, ok, err := getDoc[domain.GameState](ctx, tx, gameCollection, gameDocID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrGameNotStarted
		}
		result = gs
		if gs.Status != domain.StatusActive || gs.CurrentQuestion == nil {
			return nil
		}

		submissions, err := listDocs[domain.Submission](ctx, tx, SubmissionsCollection(gs.GameID, gs.Round))
		if err != nil {
			return err
		}
		players := make(map[string]domain.Player, len(submissions))
		for _, sub := range submissions {
			p, ok, err := getDoc[domain.Player](ctx, tx, playersCollection, sub.PlayerID)
			if err != nil {
				return err
			}
			if ok {
				players[sub.PlayerID] = p
			}
		}

		results, updated := scoreRound(gs.CurrentQuestion.CorrectAnswer, submissions, players)
		for _, p := range updated {
			if err := putDoc(tx, playersCollection, p.ID, p); err != nil {
				return err
			}
		}
		result = reveal(gs, results)
		applied = true
		return putDoc(tx, gameCollection, gameDocID, result)
	})
	if err != nil {
		return domain.GameState{}, false, fmt.Errorf("reveal: %w", err)
	}

	entry := log.WithFields(log.Fields{"gameId": result.GameID, "round": result.Round})
	if applied {
		entry.WithField("results", len(result.Results)).Info("round revealed")
	} else {
		entry.WithField("status", result.Status).Debug("reveal ignored")
	}
	return result, applied, nil
}
