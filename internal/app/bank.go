package app

import (
	"context"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"wager-quiz-service/internal/domain"
)

// BankLoader fetches an authored question bank from an external source (e.g., Postgres).
type BankLoader interface {
	LoadBank(ctx context.Context) ([]domain.Category, []domain.Question, error)
}

// AddCategory stores a new category under a generated id.
func (s *GameService) AddCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	if err := domain.ValidateCategory(&c); err != nil {
		return domain.Category{}, err
	}
	c.ID = s.newID()
	err := s.store.Update(ctx, func(_ context.Context, tx Tx) error {
		return putDoc(tx, categoryCollection, c.ID, c)
	})
	if err != nil {
		return domain.Category{}, fmt.Errorf("add category: %w", err)
	}
	return c, nil
}

// DeleteCategory removes a category. Questions still pointing at it are left
// in place and are skipped when the next playlist is built.
func (s *GameService) DeleteCategory(ctx context.Context, id string) error {
	err := s.store.Update(ctx, func(_ context.Context, tx Tx) error {
		tx.Delete(categoryCollection, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

// Categories lists the categories by name.
func (s *GameService) Categories(ctx context.Context) ([]domain.Category, error) {
	snap, err := s.store.Snapshot(ctx, categoryCollection)
	if err != nil {
		return nil, err
	}
	return decodeCategories(snap)
}

// AddQuestion stores a question under an existing category.
func (s *GameService) AddQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	q.ID = s.newID()
	err := s.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		cat, ok, err := getDoc[domain.Category](ctx, tx, categoryCollection, q.CategoryID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrCategoryNotFound
		}
		if err := domain.ValidateQuestion(&q, cat); err != nil {
			return err
		}
		q.CategoryName = cat.Name
		return putDoc(tx, questionCollection, q.ID, q)
	})
	if err != nil {
		return domain.Question{}, fmt.Errorf("add question: %w", err)
	}
	return q, nil
}

// DeleteQuestion removes a question from the bank. Running games keep their copy.
func (s *GameService) DeleteQuestion(ctx context.Context, id string) error {
	err := s.store.Update(ctx, func(_ context.Context, tx Tx) error {
		tx.Delete(questionCollection, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	return nil
}

// Questions lists the bank, optionally restricted to one category.
func (s *GameService) Questions(ctx context.Context, categoryID string) ([]domain.Question, error) {
	snap, err := s.store.Snapshot(ctx, questionCollection)
	if err != nil {
		return nil, err
	}
	questions, err := decodeQuestions(snap)
	if err != nil || categoryID == "" {
		return questions, err
	}
	filtered := questions[:0]
	for _, q := range questions {
		if q.CategoryID == categoryID {
			filtered = append(filtered, q)
		}
	}
	return filtered, nil
}

// ImportBank upserts an externally authored bank into the store in one transaction.
// Invalid entries are skipped and counted.
func (s *GameService) ImportBank(ctx context.Context, loader BankLoader) (int, error) {
	categories, questions, err := loader.LoadBank(ctx)
	if err != nil {
		return 0, fmt.Errorf("load bank: %w", err)
	}

	var (
		byID              map[string]domain.Category
		imported, skipped int
	)
	err = s.store.Update(ctx, func(_ context.Context, tx Tx) error {
		byID = make(map[string]domain.Category, len(categories))
		imported, skipped = 0, 0
		for _, c := range categories {
			if err := domain.ValidateCategory(&c); err != nil || c.ID == "" {
				skipped++
				continue
			}
			byID[c.ID] = c
			if err := putDoc(tx, categoryCollection, c.ID, c); err != nil {
				return err
			}
		}
		for _, q := range questions {
			cat, ok := byID[q.CategoryID]
			if !ok || q.ID == "" || domain.ValidateQuestion(&q, cat) != nil {
				skipped++
				continue
			}
			q.CategoryName = cat.Name
			if err := putDoc(tx, questionCollection, q.ID, q); err != nil {
				return err
			}
			imported++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("import bank: %w", err)
	}
	log.WithFields(log.Fields{"categories": len(byID), "questions": imported, "skipped": skipped}).Info("question bank imported")
	return imported, nil
}

func decodeCategories(snap Snapshot) ([]domain.Category, error) {
	categories, err := decodeDocs[domain.Category](snap.Collection, snap.Docs)
	if err != nil {
		return nil, err
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].Name != categories[j].Name {
			return categories[i].Name < categories[j].Name
		}
		return categories[i].ID < categories[j].ID
	})
	return categories, nil
}

func decodeQuestions(snap Snapshot) ([]domain.Question, error) {
	questions, err := decodeDocs[domain.Question](snap.Collection, snap.Docs)
	if err != nil {
		return nil, err
	}
	sort.Slice(questions, func(i, j int) bool {
		if questions[i].CategoryName != questions[j].CategoryName {
			return questions[i].CategoryName < questions[j].CategoryName
		}
		if questions[i].Term != questions[j].Term {
			return questions[i].Term < questions[j].Term
		}
		return questions[i].ID < questions[j].ID
	})
	return questions, nil
}
