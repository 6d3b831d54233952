package app

import (
	"context"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"wager-quiz-service/internal/domain"
)

// Submit records a player's guess and wager for the active round, replacing
// any earlier submission of that player. It reports false without error when
// the round is no longer open.
func (s *GameService) Submit(ctx context.Context, req domain.SubmitRequest) (bool, error) {
	if err := domain.ValidateWager(req.Wager); err != nil {
		return false, err
	}

	var (
		recorded bool
		gameID   string
	)
	err := s.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		recorded = false
		gs, ok, err := getDoc[domain.GameState](ctx, tx, gameCollection, gameDocID)
		if err != nil {
			return err
		}
		if !ok || gs.Status != domain.StatusActive || gs.Round != req.Round || gs.CurrentQuestion == nil {
			return nil
		}
		if !gs.CurrentQuestion.HasOption(req.Guess) {
			return domain.ErrInvalidGuess
		}

		player, ok, err := getDoc[domain.Player](ctx, tx, playersCollection, req.PlayerID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrPlayerNotFound
		}

		gameID = gs.GameID
		recorded = true
		return putDoc(tx, SubmissionsCollection(gs.GameID, gs.Round), player.ID, domain.Submission{
			PlayerID:   player.ID,
			PlayerName: player.Name,
			Guess:      req.Guess,
			Wager:      req.Wager,
		})
	})
	if err != nil {
		return false, fmt.Errorf("submit: %w", err)
	}

	fields := log.Fields{"playerId": req.PlayerID, "round": req.Round}
	if recorded {
		log.WithFields(fields).WithField("gameId", gameID).Debug("submission recorded")
	} else {
		log.WithFields(fields).Debug("stale submission ignored")
	}
	return recorded, nil
}

// ListSubmissions returns the submissions of the current game for a round.
func (s *GameService) ListSubmissions(ctx context.Context, round int) ([]domain.Submission, error) {
	gs, err := s.Game(ctx)
	if err != nil {
		return nil, err
	}
	if !gs.Started() {
		return nil, nil
	}
	snap, err := s.store.Snapshot(ctx, SubmissionsCollection(gs.GameID, round))
	if err != nil {
		return nil, err
	}
	return decodeSubmissions(snap)
}

// PlayerSubmission returns the player's submission for the open round, if any.
func (s *GameService) PlayerSubmission(ctx context.Context, playerID string) (domain.Submission, int, bool, error) {
	gs, err := s.Game(ctx)
	if err != nil {
		return domain.Submission{}, 0, false, err
	}
	if gs.Status != domain.StatusActive {
		return domain.Submission{}, 0, false, nil
	}
	var (
		sub   domain.Submission
		found bool
	)
	err = s.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		sub, found, err = getDoc[domain.Submission](ctx, tx, SubmissionsCollection(gs.GameID, gs.Round), playerID)
		return err
	})
	if err != nil {
		return domain.Submission{}, 0, false, fmt.Errorf("player submission: %w", err)
	}
	return sub, gs.Round, found, nil
}

func decodeSubmissions(snap Snapshot) ([]domain.Submission, error) {
	subs, err := decodeDocs[domain.Submission](snap.Collection, snap.Docs)
	if err != nil {
		return nil, err
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].PlayerName != subs[j].PlayerName {
			return subs[i].PlayerName < subs[j].PlayerName
		}
		return subs[i].PlayerID < subs[j].PlayerID
	})
	return subs, nil
}
