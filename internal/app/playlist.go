package app

import (
	"math/rand"
	"sort"

	"wager-quiz-service/internal/domain"
)

// BuildPlaylist shuffles the question bank into one playlist. Categories are
// played as contiguous blocks; both the block order and the order inside each
// block are random. Questions are copied by value, so later edits to the bank
// never reach a running game. Questions whose category no longer exists are skipped.
func BuildPlaylist(rnd *rand.Rand, questions []domain.Question, categories []domain.Category) ([]domain.PlaylistEntry, error) {
	byID := make(map[string]domain.Category, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}

	grouped := make(map[string][]domain.Question)
	for _, q := range questions {
		if _, ok := byID[q.CategoryID]; !ok {
			continue
		}
		grouped[q.CategoryID] = append(grouped[q.CategoryID], q)
	}
	if len(grouped) == 0 {
		return nil, domain.ErrEmptyQuestionBank
	}

	// Sorting first keeps the result a pure function of the rng state.
	categoryIDs := make([]string, 0, len(grouped))
	for id := range grouped {
		categoryIDs = append(categoryIDs, id)
	}
	sort.Strings(categoryIDs)
	rnd.Shuffle(len(categoryIDs), func(i, j int) {
		categoryIDs[i], categoryIDs[j] = categoryIDs[j], categoryIDs[i]
	})

	playlist := make([]domain.PlaylistEntry, 0, len(questions))
	for _, categoryID := range categoryIDs {
		cat := byID[categoryID]
		block := grouped[categoryID]
		sort.Slice(block, func(i, j int) bool { return block[i].ID < block[j].ID })
		rnd.Shuffle(len(block), func(i, j int) { block[i], block[j] = block[j], block[i] })

		for _, q := range block {
			entry := domain.PlaylistEntry{Question: q, Option1: cat.Option1, Option2: cat.Option2}
			entry.CategoryName = cat.Name
			playlist = append(playlist, entry)
		}
	}
	return playlist, nil
}
