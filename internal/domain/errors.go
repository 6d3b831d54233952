package domain

import "errors"

var (
	// ErrInvalidName is returned when a player joins without a usable name.
	ErrInvalidName = errors.New("player name is required")
	// ErrInvalidCategory is returned when a category is missing its name or options.
	ErrInvalidCategory = errors.New("category requires a name and two distinct options")
	// ErrInvalidQuestion is returned when a question has no term or its answer is not a category option.
	ErrInvalidQuestion = errors.New("question requires a term and an answer matching a category option")
	// ErrInvalidWager is returned for wagers outside [MinWager, MaxWager].
	ErrInvalidWager = errors.New("wager must be between 1 and 5")
	// ErrInvalidGuess is returned when a guess matches neither option of the active question.
	ErrInvalidGuess = errors.New("guess must be one of the current options")
	// ErrCategoryNotFound indicates a referenced category does not exist.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrPlayerNotFound indicates the player has not joined or was removed.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrEmptyQuestionBank is returned when a game is started without playable questions.
	ErrEmptyQuestionBank = errors.New("question bank is empty")
	// ErrGameNotStarted is returned by transitions issued before any start-game.
	ErrGameNotStarted = errors.New("game not started")
	// ErrTransactionConflict means the store gave up retrying a contended transaction. Safe to retry.
	ErrTransactionConflict = errors.New("transaction conflict, retry")
)
