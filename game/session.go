package game

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultMaxSkips is the skip budget applied when a session doesn't set one.
const DefaultMaxSkips = 3

// Session is one two-player game in progress or concluded. Sessions are
// soft-ended, never deleted, so summaries stay retrievable.
type Session struct {
	SessionID          string     `json:"sessionId"`
	PlayerNames        []string   `json:"playerNames"`
	CurrentPlayerIndex int        `json:"currentPlayerIndex"`
	DrawnCardIDs       []string   `json:"drawnCardIds"`
	SkipsUsed          int        `json:"skipsUsed"`
	MaxSkips           int        `json:"maxSkips"`
	IntensityCeiling   Intensity  `json:"intensityCeiling"`
	Sections           []string   `json:"sections,omitempty"`
	TargetCardCount    int        `json:"targetCardCount,omitempty"`
	DrawSequence       []string   `json:"drawSequence,omitempty"`
	CurrentCardIndex   int        `json:"currentCardIndex"`
	StartTime          time.Time  `json:"startTime"`
	EndTime            *time.Time `json:"endTime,omitempty"`
	Active             bool       `json:"active"`
	Stats              Stats      `json:"gameStats"`
}

// Stats are derived counters, monotonic while the session is active.
type Stats struct {
	TotalCards        int `json:"totalCards"`
	QuestionsAnswered int `json:"questionsAnswered"`
	TasksCompleted    int `json:"tasksCompleted"`
}

// StartConfig carries everything fixed at session creation.
type StartConfig struct {
	PlayerNames     []string
	Ceiling         Intensity
	Sections        []string
	TargetCardCount int // 0 means open-ended
	MaxSkips        int // 0 means DefaultMaxSkips
}

// Preset is a named fixed-length session shape from the original game.
type Preset struct {
	Name      string   `json:"name"`
	CardCount int      `json:"cardCount"`
	Sections  []string `json:"sections"`
}

var Presets = map[string]Preset{
	"quick": {
		Name:      "Quick Spark",
		CardCount: 8,
		Sections:  []string{"warm_up", "getting_closer"},
	},
	"standard": {
		Name:      "Standard Connection",
		CardCount: 15,
		Sections:  []string{"warm_up", "getting_closer", "heat_is_on"},
	},
	"extended": {
		Name:      "Extended Passion",
		CardCount: 25,
		Sections:  nil, // all sections
	},
}

func newSession(cfg StartConfig, now time.Time) (*Session, error) {
	names := make([]string, 0, 2)
	for _, n := range cfg.PlayerNames {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		names = append(names, n)
		if len(names) == 2 {
			break
		}
	}
	if len(names) < 2 {
		return nil, fmt.Errorf("%w: at least 2 player names required", ErrValidation)
	}
	if !cfg.Ceiling.valid() {
		return nil, fmt.Errorf("%w: invalid intensity ceiling", ErrValidation)
	}
	if cfg.TargetCardCount < 0 {
		return nil, fmt.Errorf("%w: negative target card count", ErrValidation)
	}
	if cfg.MaxSkips < 0 {
		return nil, fmt.Errorf("%w: negative skip budget", ErrValidation)
	}

	maxSkips := cfg.MaxSkips
	if maxSkips == 0 {
		maxSkips = DefaultMaxSkips
	}

	return &Session{
		PlayerNames:      names,
		DrawnCardIDs:     []string{},
		MaxSkips:         maxSkips,
		IntensityCeiling: cfg.Ceiling,
		Sections:         cfg.Sections,
		TargetCardCount:  cfg.TargetCardCount,
		StartTime:        now,
		Active:           true,
	}, nil
}

func (s *Session) presequenced() bool {
	return len(s.DrawSequence) > 0
}

func (s *Session) drawnSet() map[string]bool {
	set := make(map[string]bool, len(s.DrawnCardIDs))
	for _, id := range s.DrawnCardIDs {
		set[id] = true
	}
	return set
}

// recordDraw appends the card, bumps the derived counters, and passes the
// turn to the other player.
func (s *Session) recordDraw(card Card) {
	s.DrawnCardIDs = append(s.DrawnCardIDs, card.ID)
	s.Stats.TotalCards++
	switch card.Type {
	case TypeQuestion:
		s.Stats.QuestionsAnswered++
	case TypeDare, TypeTask, TypeMiniGame:
		s.Stats.TasksCompleted++
	}
	s.CurrentPlayerIndex = (s.CurrentPlayerIndex + 1) % len(s.PlayerNames)
}

func (s *Session) end(now time.Time) {
	s.Active = false
	t := now
	s.EndTime = &t
}

func (s *Session) SkipsRemaining() int {
	return s.MaxSkips - s.SkipsUsed
}

// Progress reports completion percent. Open-ended sessions only report
// retrospectively: any draws at all count as 100%.
func (s *Session) Progress() int {
	target := s.TargetCardCount
	if target == 0 {
		target = len(s.DrawnCardIDs)
	}
	if target == 0 {
		return 0
	}
	p := 100 * len(s.DrawnCardIDs) / target
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Validate checks the session invariants that must hold at every
// observable point.
func (s *Session) Validate() error {
	if len(s.PlayerNames) != 2 {
		return fmt.Errorf("session %s: expected 2 players, have %d", s.SessionID, len(s.PlayerNames))
	}
	if s.CurrentPlayerIndex < 0 || s.CurrentPlayerIndex >= len(s.PlayerNames) {
		return fmt.Errorf("session %s: player index %d out of range", s.SessionID, s.CurrentPlayerIndex)
	}
	seen := make(map[string]bool, len(s.DrawnCardIDs))
	for _, id := range s.DrawnCardIDs {
		if seen[id] {
			return fmt.Errorf("session %s: card %s drawn twice", s.SessionID, id)
		}
		seen[id] = true
	}
	if s.SkipsUsed > s.MaxSkips {
		return fmt.Errorf("session %s: skips used %d exceeds budget %d", s.SessionID, s.SkipsUsed, s.MaxSkips)
	}
	if !s.Active && s.EndTime == nil {
		return fmt.Errorf("session %s: ended without an end time", s.SessionID)
	}
	if s.Stats.TotalCards != len(s.DrawnCardIDs) {
		return fmt.Errorf("session %s: stats count %d does not match %d drawn cards", s.SessionID, s.Stats.TotalCards, len(s.DrawnCardIDs))
	}
	if s.TargetCardCount > 0 && len(s.DrawnCardIDs) > s.TargetCardCount {
		return fmt.Errorf("session %s: drew %d cards past target %d", s.SessionID, len(s.DrawnCardIDs), s.TargetCardCount)
	}
	return nil
}

// Clone returns a deep copy, so stores never hand out aliased state.
func (s *Session) Clone() *Session {
	c := *s
	c.PlayerNames = append([]string(nil), s.PlayerNames...)
	c.DrawnCardIDs = append([]string(nil), s.DrawnCardIDs...)
	c.DrawSequence = append([]string(nil), s.DrawSequence...)
	c.Sections = append([]string(nil), s.Sections...)
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	return &c
}

// View is the read-only projection returned by status and mutations.
type View struct {
	SessionID          string    `json:"sessionId"`
	PlayerNames        []string  `json:"playerNames"`
	CurrentPlayer      string    `json:"currentPlayer"`
	CurrentPlayerIndex int       `json:"currentPlayerIndex"`
	CardsDrawn         int       `json:"cardsDrawn"`
	SkipsUsed          int       `json:"skipsUsed"`
	SkipsRemaining     int       `json:"skipsRemaining"`
	IntensityCeiling   Intensity `json:"intensityCeiling"`
	TargetCardCount    int       `json:"targetCardCount,omitempty"`
	Progress           int       `json:"progress"`
	Stats              Stats     `json:"gameStats"`
	StartTime          time.Time `json:"startTime"`
	Active             bool      `json:"active"`
}

func (s *Session) View() View {
	return View{
		SessionID:          s.SessionID,
		PlayerNames:        append([]string(nil), s.PlayerNames...),
		CurrentPlayer:      s.PlayerNames[s.CurrentPlayerIndex],
		CurrentPlayerIndex: s.CurrentPlayerIndex,
		CardsDrawn:         len(s.DrawnCardIDs),
		SkipsUsed:          s.SkipsUsed,
		SkipsRemaining:     s.SkipsRemaining(),
		IntensityCeiling:   s.IntensityCeiling,
		TargetCardCount:    s.TargetCardCount,
		Progress:           s.Progress(),
		Stats:              s.Stats,
		StartTime:          s.StartTime,
		Active:             s.Active,
	}
}

// FinalStats is what End returns; duration is whole minutes, floored.
type FinalStats struct {
	Stats
	Duration    int      `json:"duration"`
	PlayerNames []string `json:"playerNames"`
}

func (s *Session) FinalStats() FinalStats {
	duration := 0
	if s.EndTime != nil {
		duration = int(s.EndTime.Sub(s.StartTime).Minutes())
	}
	return FinalStats{
		Stats:       s.Stats,
		Duration:    duration,
		PlayerNames: append([]string(nil), s.PlayerNames...),
	}
}

// Summary is the end-of-session report, composed with the favorite set.
type Summary struct {
	TotalCards             int    `json:"totalCards"`
	CompletedCards         int    `json:"completedCards"`
	FavoriteCardsInSession int    `json:"favoriteCards"`
	SessionTimeSeconds     int    `json:"sessionTime"`
	TopFavoriteCard        string `json:"topFavoriteCard,omitempty"`
	CompletionPercentage   int    `json:"completionPercentage"`
}

func (s *Session) Summarize(favorites map[string]bool) Summary {
	// Fixed-length sessions report completion against the full deck, so a
	// game quit early shows real progress rather than 100%.
	total := s.Stats.TotalCards
	if s.TargetCardCount > 0 {
		total = s.TargetCardCount
	}
	sum := Summary{
		TotalCards:     total,
		CompletedCards: len(s.DrawnCardIDs),
	}
	if s.EndTime != nil {
		sum.SessionTimeSeconds = int(s.EndTime.Sub(s.StartTime).Seconds())
	}
	for _, id := range s.DrawnCardIDs {
		if favorites[id] {
			if sum.TopFavoriteCard == "" {
				sum.TopFavoriteCard = id
			}
			sum.FavoriteCardsInSession++
		}
	}
	if sum.TotalCards > 0 {
		sum.CompletionPercentage = int(math.Round(100 * float64(sum.CompletedCards) / float64(sum.TotalCards)))
	}
	return sum
}
