package game

// RNG abstracts random number generation for deterministic testing.
type RNG interface {
	// Intn returns a non-negative random int in [0, n).
	Intn(n int) int
}

// Selector picks cards for a session. It supports both selection modes:
// on-demand random draws for open-ended sessions, and a fixed Fisher-Yates
// shuffled sequence for sessions with a target card count.
type Selector struct {
	rng RNG
}

func NewSelector(rng RNG) *Selector {
	return &Selector{rng: rng}
}

// Eligible filters the catalog down to cards a session may still draw:
// active, at or below the intensity ceiling, within the session's sections
// (when any are set), and not yet drawn.
func Eligible(cards []Card, ceiling Intensity, sections []string, excluded map[string]bool) []Card {
	var allowed map[string]bool
	if len(sections) > 0 {
		allowed = make(map[string]bool, len(sections))
		for _, s := range sections {
			allowed[s] = true
		}
	}

	out := make([]Card, 0, len(cards))
	for _, c := range cards {
		if !c.Active || c.Intensity > ceiling || excluded[c.ID] {
			continue
		}
		if allowed != nil && !allowed[c.Section] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// PickRandom returns one eligible card chosen uniformly at random.
func (s *Selector) PickRandom(cards []Card, ceiling Intensity, sections []string, excluded map[string]bool) (Card, error) {
	pool := Eligible(cards, ceiling, sections, excluded)
	if len(pool) == 0 {
		return Card{}, ErrNoCardsAvailable
	}
	return pool[s.rng.Intn(len(pool))], nil
}

// Sequence shuffles the eligible set and fixes the first n card ids as a
// draw order. Fails up front when the catalog cannot fill the sequence.
func (s *Selector) Sequence(cards []Card, ceiling Intensity, sections []string, n int) ([]string, error) {
	pool := Eligible(cards, ceiling, sections, nil)
	if len(pool) < n {
		return nil, ErrInsufficientCatalog
	}

	// Fisher-Yates; a comparator-based "random sort" is biased.
	for i := len(pool) - 1; i > 0; i-- {
		j := s.rng.Intn(i + 1)
		pool[i], pool[j] = pool[j], pool[i]
	}

	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = pool[i].ID
	}
	return ids, nil
}
