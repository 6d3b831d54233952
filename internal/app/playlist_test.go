package app

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"wager-quiz-service/internal/domain"
)

func TestBuildPlaylistKeepsCategoriesContiguous(t *testing.T) {
	categories := []domain.Category{
		{ID: "c1", Name: "Animals", Option1: "Mammal", Option2: "Bird"},
		{ID: "c2", Name: "Food", Option1: "Fruit", Option2: "Vegetable"},
		{ID: "c3", Name: "Space", Option1: "Planet", Option2: "Star"},
	}
	var questions []domain.Question
	for i, c := range categories {
		for j := 0; j < i+2; j++ {
			questions = append(questions, domain.Question{
				ID:            fmt.Sprintf("%s-q%d", c.ID, j),
				Term:          fmt.Sprintf("term %d", j),
				CorrectAnswer: c.Option1,
				CategoryID:    c.ID,
				CategoryName:  c.Name,
			})
		}
	}

	for seed := int64(0); seed < 50; seed++ {
		playlist, err := BuildPlaylist(rand.New(rand.NewSource(seed)), questions, categories)
		if err != nil {
			t.Fatalf("seed %d: build: %v", seed, err)
		}
		if len(playlist) != len(questions) {
			t.Fatalf("seed %d: expected %d entries, got %d", seed, len(questions), len(playlist))
		}

		seen := make(map[string]int)
		closed := make(map[string]bool)
		for i, entry := range playlist {
			seen[entry.ID]++
			if i > 0 && playlist[i-1].CategoryID != entry.CategoryID {
				closed[playlist[i-1].CategoryID] = true
			}
			if closed[entry.CategoryID] {
				t.Fatalf("seed %d: category %s interleaved at %d", seed, entry.CategoryID, i)
			}
			if entry.Option1 == "" || entry.Option2 == "" {
				t.Fatalf("seed %d: entry %s missing options", seed, entry.ID)
			}
		}
		for _, q := range questions {
			if seen[q.ID] != 1 {
				t.Fatalf("seed %d: question %s appears %d times", seed, q.ID, seen[q.ID])
			}
		}
	}
}

func TestBuildPlaylistCopiesQuestionsByValue(t *testing.T) {
	categories := []domain.Category{{ID: "c1", Name: "Animals", Option1: "Mammal", Option2: "Bird"}}
	questions := []domain.Question{{ID: "q1", Term: "Whale", CorrectAnswer: "Mammal", CategoryID: "c1"}}

	playlist, err := BuildPlaylist(rand.New(rand.NewSource(1)), questions, categories)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	questions[0].Term = "Eagle"
	categories[0].Option1 = "Fish"

	if playlist[0].Term != "Whale" || playlist[0].Option1 != "Mammal" {
		t.Fatalf("playlist changed after bank edit: %+v", playlist[0])
	}
	if playlist[0].CategoryName != "Animals" {
		t.Fatalf("expected category name copied, got %q", playlist[0].CategoryName)
	}
}

func TestBuildPlaylistRejectsEmptyBank(t *testing.T) {
	_, err := BuildPlaylist(rand.New(rand.NewSource(1)), nil, nil)
	if !errors.Is(err, domain.ErrEmptyQuestionBank) {
		t.Fatalf("expected ErrEmptyQuestionBank, got %v", err)
	}

	// A question pointing at a deleted category is not playable.
	_, err = BuildPlaylist(rand.New(rand.NewSource(1)), []domain.Question{{ID: "q1", CategoryID: "gone"}}, nil)
	if !errors.Is(err, domain.ErrEmptyQuestionBank) {
		t.Fatalf("expected ErrEmptyQuestionBank for orphaned questions, got %v", err)
	}
}
