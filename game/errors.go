package game

import "errors"

var (
	ErrValidation          = errors.New("invalid input")
	ErrSessionNotFound     = errors.New("game session not found")
	ErrNoCardsAvailable    = errors.New("no more cards available")
	ErrInsufficientCatalog = errors.New("not enough cards for requested session length")
	ErrSkipsExhausted      = errors.New("no skips remaining")
	ErrAlreadyEnded        = errors.New("game session already ended")
	ErrPersistence         = errors.New("session store failure")
)
