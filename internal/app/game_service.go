package app

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"wager-quiz-service/internal/domain"
)

// GameService contains the host and player use cases of one game instance.
type GameService struct {
	store  Store
	fabric *Fabric
	newID  func() string

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewGameService(store Store) *GameService {
	return NewGameServiceWithRand(store, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewGameServiceWithRand is test-only for reproducible playlists.
func NewGameServiceWithRand(store Store, rnd *rand.Rand) *GameService {
	return &GameService{
		store:  store,
		fabric: NewFabric(store),
		newID:  uuid.NewString,
		rnd:    rnd,
	}
}

// Start begins delivering store changes to subscribers until ctx is done.
func (s *GameService) Start(ctx context.Context) error {
	return s.fabric.Start(ctx)
}

// Game returns the current game document.
func (s *GameService) Game(ctx context.Context) (domain.GameState, error) {
	snap, err := s.store.Snapshot(ctx, gameCollection)
	if err != nil {
		return domain.GameState{}, err
	}
	return decodeGame(snap)
}

// StartGame builds a fresh playlist, overwrites the previous game, resets all
// scores and advances to the first splash.
func (s *GameService) StartGame(ctx context.Context, hostID string) (domain.GameState, error) {
	gameID := s.newID()

	err := s.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		questions, err := listDocs[domain.Question](ctx, tx, questionCollection)
		if err != nil {
			return err
		}
		categories, err := listDocs[domain.Category](ctx, tx, categoryCollection)
		if err != nil {
			return err
		}
		players, err := listDocs[domain.Player](ctx, tx, playersCollection)
		if err != nil {
			return err
		}

		playlist, err := s.buildPlaylist(questions, categories)
		if err != nil {
			return err
		}
		if err := putDoc(tx, gameCollection, gameDocID, newGame(gameID, hostID, playlist)); err != nil {
			return err
		}
		for _, p := range players {
			p.Score = 0
			if err := putDoc(tx, playersCollection, p.ID, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.GameState{}, fmt.Errorf("start game: %w", err)
	}
	log.WithFields(log.Fields{"gameId": gameID, "hostId": hostID}).Info("game started")

	gs, _, err := s.Advance(ctx)
	return gs, err
}

// Advance moves past a revealed round (or the initial waiting state) to the
// next category splash, the next question, or game-over. It is a no-op in any
// other state, so a repeated click cannot skip a round.
func (s *GameService) Advance(ctx context.Context) (domain.GameState, bool, error) {
	return s.transition(ctx, "advance", advance)
}

// StartCategory activates the first question after a category splash.
func (s *GameService) StartCategory(ctx context.Context) (domain.GameState, bool, error) {
	return s.transition(ctx, "start-category", startCategory)
}

func (s *GameService) transition(ctx context.Context, name string, step func(domain.GameState) (domain.GameState, bool)) (domain.GameState, bool, error) {
	var (
		result  domain.GameState
		applied bool
	)
	err := s.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		gs, ok, err := getDoc[domain.GameState](ctx, tx, gameCollection, gameDocID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrGameNotStarted
		}
		result, applied = step(gs)
		if !applied {
			return nil
		}
		return putDoc(tx, gameCollection, gameDocID, result)
	})
	if err != nil {
		return domain.GameState{}, false, fmt.Errorf("%s: %w", name, err)
	}

	entry := log.WithFields(log.Fields{"gameId": result.GameID, "round": result.Round, "status": result.Status})
	if applied {
		entry.Infof("%s applied", name)
	} else {
		entry.Debugf("%s ignored", name)
	}
	return result, applied, nil
}

func (s *GameService) buildPlaylist(questions []domain.Question, categories []domain.Category) ([]domain.PlaylistEntry, error) {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return BuildPlaylist(s.rnd, questions, categories)
}

func decodeGame(snap Snapshot) (domain.GameState, error) {
	games, err := decodeDocs[domain.GameState](snap.Collection, snap.Docs)
	if err != nil {
		return domain.GameState{}, err
	}
	for i, doc := range snap.Docs {
		if doc.ID == gameDocID {
			return games[i], nil
		}
	}
	return domain.GameState{}, nil
}
