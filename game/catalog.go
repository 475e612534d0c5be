package game

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

//go:embed cards.json
var seedJSON []byte

// Catalog provides the prompt cards a session draws from. Seeding and
// authoring of the card content itself happens outside this package;
// ReplaceAll is the bulk reseed hook.
type Catalog interface {
	LoadAll() []Card
	ReplaceAll(cards []Card) error
}

// MemoryCatalog is a read-mostly in-process catalog.
type MemoryCatalog struct {
	mu    sync.RWMutex
	cards []Card
}

func NewMemoryCatalog(cards []Card) (*MemoryCatalog, error) {
	c := &MemoryCatalog{}
	if err := c.ReplaceAll(cards); err != nil {
		return nil, err
	}
	return c, nil
}

// SeedCatalog returns a catalog populated with the embedded card set.
func SeedCatalog() *MemoryCatalog {
	cards, err := ParseCards(seedJSON)
	if err != nil {
		// The embedded seed is validated by tests; failing here means the
		// binary itself is broken.
		panic(fmt.Sprintf("embedded card seed is invalid: %v", err))
	}
	c, err := NewMemoryCatalog(cards)
	if err != nil {
		panic(fmt.Sprintf("embedded card seed is invalid: %v", err))
	}
	return c
}

func (c *MemoryCatalog) LoadAll() []Card {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Card, len(c.cards))
	copy(out, c.cards)
	return out
}

func (c *MemoryCatalog) ReplaceAll(cards []Card) error {
	seen := make(map[string]bool, len(cards))
	for _, card := range cards {
		if err := card.Validate(); err != nil {
			return err
		}
		if seen[card.ID] {
			return fmt.Errorf("%w: duplicate card id %q", ErrValidation, card.ID)
		}
		seen[card.ID] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cards = make([]Card, len(cards))
	copy(c.cards, cards)
	return nil
}

// cardJSON mirrors Card on the wire but lets "active" default to true when
// omitted, matching the original catalog schema.
type cardJSON struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Section   string    `json:"section"`
	Type      CardType  `json:"type"`
	Intensity Intensity `json:"intensity"`
	Points    int       `json:"points"`
	Tags      []string  `json:"tags"`
	Active    *bool     `json:"active"`
}

// ParseCards decodes a JSON card list and validates every entry.
func ParseCards(data []byte) ([]Card, error) {
	var raw []cardJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse cards: %v", ErrValidation, err)
	}

	cards := make([]Card, 0, len(raw))
	for _, r := range raw {
		card := Card{
			ID:        r.ID,
			Content:   r.Content,
			Section:   r.Section,
			Type:      r.Type,
			Intensity: r.Intensity,
			Points:    r.Points,
			Tags:      r.Tags,
			Active:    r.Active == nil || *r.Active,
		}
		if err := card.Validate(); err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// LoadCardsFile reads a replacement catalog from disk.
func LoadCardsFile(path string) ([]Card, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cards file: %w", err)
	}
	return ParseCards(data)
}

// Sections returns the distinct section labels of active cards, sorted.
func Sections(cards []Card) []string {
	seen := make(map[string]bool)
	for _, c := range cards {
		if c.Active && c.Section != "" {
			seen[c.Section] = true
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
