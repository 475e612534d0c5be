package game

import (
	"fmt"
	"strings"
)

// CardType classifies what a drawn card asks the players to do.
type CardType string

const (
	TypeQuestion  CardType = "question"
	TypeDare      CardType = "dare"
	TypeTask      CardType = "task"
	TypeMiniGame  CardType = "mini_game"
	TypeSponsored CardType = "sponsored"
)

func (t CardType) valid() bool {
	switch t {
	case TypeQuestion, TypeDare, TypeTask, TypeMiniGame, TypeSponsored:
		return true
	}
	return false
}

// Intensity is an ordered content tier. A session's intensity ceiling admits
// its own tier and everything below it.
type Intensity int

const (
	Mild Intensity = iota + 1
	Moderate
	Spicy
)

func (i Intensity) valid() bool {
	return i >= Mild && i <= Spicy
}

func (i Intensity) String() string {
	switch i {
	case Mild:
		return "mild"
	case Moderate:
		return "moderate"
	case Spicy:
		return "spicy"
	}
	return fmt.Sprintf("intensity(%d)", int(i))
}

// ParseIntensity maps the wire form to a tier. The empty string defaults to
// mild, matching the original game's default level.
func ParseIntensity(s string) (Intensity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mild":
		return Mild, nil
	case "moderate":
		return Moderate, nil
	case "spicy":
		return Spicy, nil
	}
	return 0, fmt.Errorf("%w: unknown intensity %q", ErrValidation, s)
}

func (i Intensity) MarshalText() ([]byte, error) {
	if !i.valid() {
		return nil, fmt.Errorf("cannot marshal invalid intensity %d", int(i))
	}
	return []byte(i.String()), nil
}

func (i *Intensity) UnmarshalText(text []byte) error {
	v, err := ParseIntensity(string(text))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// Card is a single prompt in the catalog. Immutable after load except for
// Active, which soft-deletes a card without reseeding.
type Card struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Section   string    `json:"section"`
	Type      CardType  `json:"type"`
	Intensity Intensity `json:"intensity"`
	Points    int       `json:"points"`
	Tags      []string  `json:"tags,omitempty"`
	Active    bool      `json:"active"`
}

func (c Card) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: card id is required", ErrValidation)
	}
	if strings.TrimSpace(c.Content) == "" {
		return fmt.Errorf("%w: card %s has no content", ErrValidation, c.ID)
	}
	if !c.Type.valid() {
		return fmt.Errorf("%w: card %s has unknown type %q", ErrValidation, c.ID, c.Type)
	}
	if !c.Intensity.valid() {
		return fmt.Errorf("%w: card %s has invalid intensity", ErrValidation, c.ID)
	}
	if c.Points < 0 {
		return fmt.Errorf("%w: card %s has negative points", ErrValidation, c.ID)
	}
	return nil
}
