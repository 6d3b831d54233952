package app

import (
	"context"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"wager-quiz-service/internal/domain"
)

// Join registers a player, or renames one that already joined. Scores start
// at zero and survive a rejoin.
func (s *GameService) Join(ctx context.Context, playerID, name string) (domain.Player, error) {
	name, err := domain.NormalizeName(name)
	if err != nil {
		return domain.Player{}, err
	}

	var player domain.Player
	err = s.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		existing, ok, err := getDoc[domain.Player](ctx, tx, playersCollection, playerID)
		if err != nil {
			return err
		}
		player = domain.Player{ID: playerID, Name: name}
		if ok {
			player.Score = existing.Score
		}
		return putDoc(tx, playersCollection, playerID, player)
	})
	if err != nil {
		return domain.Player{}, fmt.Errorf("join: %w", err)
	}
	log.WithFields(log.Fields{"playerId": playerID, "name": name}).Info("player joined")
	return player, nil
}

// RemovePlayer deletes a player record. Their pending submission is skipped at reveal.
func (s *GameService) RemovePlayer(ctx context.Context, playerID string) error {
	err := s.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		_, ok, err := tx.Get(ctx, playersCollection, playerID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrPlayerNotFound
		}
		tx.Delete(playersCollection, playerID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove player: %w", err)
	}
	log.WithField("playerId", playerID).Info("player removed")
	return nil
}

// Scoreboard lists players by score, highest first.
func (s *GameService) Scoreboard(ctx context.Context) ([]domain.Player, error) {
	snap, err := s.store.Snapshot(ctx, playersCollection)
	if err != nil {
		return nil, err
	}
	return decodeScoreboard(snap)
}

func decodeScoreboard(snap Snapshot) ([]domain.Player, error) {
	players, err := decodeDocs[domain.Player](snap.Collection, snap.Docs)
	if err != nil {
		return nil, err
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].Score != players[j].Score {
			return players[i].Score > players[j].Score
		}
		if players[i].Name != players[j].Name {
			return players[i].Name < players[j].Name
		}
		return players[i].ID < players[j].ID
	})
	return players, nil
}
