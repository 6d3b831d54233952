package domain

import "strings"

// NormalizeName trims a player name and rejects empty ones.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	return name, nil
}

// ValidateCategory trims the category fields in place and checks them.
func ValidateCategory(c *Category) error {
	c.Name = strings.TrimSpace(c.Name)
	c.Option1 = strings.TrimSpace(c.Option1)
	c.Option2 = strings.TrimSpace(c.Option2)
	if c.Name == "" || c.Option1 == "" || c.Option2 == "" || c.Option1 == c.Option2 {
		return ErrInvalidCategory
	}
	return nil
}

// ValidateQuestion checks a question against the category it belongs to.
func ValidateQuestion(q *Question, c Category) error {
	q.Term = strings.TrimSpace(q.Term)
	if q.Term == "" {
		return ErrInvalidQuestion
	}
	if q.CorrectAnswer != c.Option1 && q.CorrectAnswer != c.Option2 {
		return ErrInvalidQuestion
	}
	return nil
}

// ValidateWager checks the wager range.
func ValidateWager(wager int) error {
	if wager < MinWager || wager > MaxWager {
		return ErrInvalidWager
	}
	return nil
}
