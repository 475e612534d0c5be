package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func engineCatalog(t *testing.T, cards []Card) *MemoryCatalog {
	t.Helper()
	c, err := NewMemoryCatalog(cards)
	if err != nil {
		t.Fatalf("NewMemoryCatalog: %v", err)
	}
	return c
}

func mildDeck(n int) []Card {
	cards := make([]Card, n)
	for i := range cards {
		cards[i] = Card{
			ID:        fmt.Sprintf("card_%03d", i+1),
			Content:   "prompt",
			Section:   "warm_up",
			Type:      TypeQuestion,
			Intensity: Mild,
			Active:    true,
		}
	}
	return cards
}

// scriptedClock replays fixed instants; the last one repeats.
func scriptedClock(times ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
}

func newTestEngine(t *testing.T, cards []Card, opts ...Option) *Engine {
	t.Helper()
	return NewEngine(NewMemoryStore(), engineCatalog(t, cards), NewMemoryFavorites(), &seqRNG{vals: []int{0}}, opts...)
}

func TestStartInitialView(t *testing.T) {
	e := newTestEngine(t, mildDeck(5))

	view, err := e.Start(context.Background(), StartConfig{
		PlayerNames: []string{" Alice ", "Bob"},
		Ceiling:     Mild,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if view.SessionID == "" {
		t.Error("Start returned empty session id")
	}
	if view.CurrentPlayer != "Alice" {
		t.Errorf("CurrentPlayer = %q, want Alice", view.CurrentPlayer)
	}
	if view.SkipsRemaining != DefaultMaxSkips {
		t.Errorf("SkipsRemaining = %d, want %d", view.SkipsRemaining, DefaultMaxSkips)
	}
	if view.CardsDrawn != 0 || !view.Active {
		t.Errorf("fresh session: CardsDrawn = %d, Active = %v", view.CardsDrawn, view.Active)
	}
}

func TestDrawNeverRepeats(t *testing.T) {
	const deckSize = 5
	e := newTestEngine(t, mildDeck(deckSize))
	ctx := context.Background()

	view, err := e.Start(ctx, StartConfig{PlayerNames: []string{"Alice", "Bob"}, Ceiling: Mild})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	seen := make(map[string]bool)
	for i := 0; i < deckSize; i++ {
		card, _, err := e.Draw(ctx, view.SessionID)
		if err != nil {
			t.Fatalf("draw %d: %v", i+1, err)
		}
		if seen[card.ID] {
			t.Fatalf("card %s drawn twice", card.ID)
		}
		seen[card.ID] = true
	}

	if _, _, err := e.Draw(ctx, view.SessionID); !errors.Is(err, ErrNoCardsAvailable) {
		t.Errorf("draw past exhaustion: got %v, want ErrNoCardsAvailable", err)
	}
}

func TestDrawAlternatesTurns(t *testing.T) {
	e := newTestEngine(t, mildDeck(4))
	ctx := context.Background()

	view, err := e.Start(ctx, StartConfig{PlayerNames: []string{"Alice", "Bob"}, Ceiling: Mild})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	wantNext := []string{"Bob", "Alice", "Bob"}
	for i, want := range wantNext {
		_, v, err := e.Draw(ctx, view.SessionID)
		if err != nil {
			t.Fatalf("draw %d: %v", i+1, err)
		}
		if v.CurrentPlayer != want {
			t.Errorf("after draw %d: CurrentPlayer = %q, want %q", i+1, v.CurrentPlayer, want)
		}
	}
}

func TestMildCeilingExcludesSpicier(t *testing.T) {
	cards := mildDeck(1)
	cards = append(cards,
		Card{ID: "mod_1", Content: "prompt", Section: "warm_up", Type: TypeDare, Intensity: Moderate, Active: true},
		Card{ID: "spy_1", Content: "prompt", Section: "warm_up", Type: TypeDare, Intensity: Spicy, Active: true},
	)
	e := newTestEngine(t, cards)
	ctx := context.Background()

	view, err := e.Start(ctx, StartConfig{PlayerNames: []string{"Alice", "Bob"}, Ceiling: Mild})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	card, _, err := e.Draw(ctx, view.SessionID)
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if card.Intensity != Mild {
		t.Errorf("mild ceiling drew %s at intensity %s", card.ID, card.Intensity)
	}

	// The single mild card is spent; the moderate and spicy ones must not
	// back-fill the pool.
	if _, _, err := e.Draw(ctx, view.SessionID); !errors.Is(err, ErrNoCardsAvailable) {
		t.Errorf("got %v, want ErrNoCardsAvailable", err)
	}
}

func TestSkipBudget(t *testing.T) {
	e := newTestEngine(t, mildDeck(5))
	ctx := context.Background()

	view, err := e.Start(ctx, StartConfig{PlayerNames: []string{"Alice", "Bob"}, Ceiling: Mild})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	for want := DefaultMaxSkips - 1; want >= 0; want-- {
		remaining, err := e.Skip(ctx, view.SessionID)
		if err != nil {
			t.Fatalf("Skip: %v", err)
		}
		if remaining != want {
			t.Errorf("SkipsRemaining = %d, want %d", remaining, want)
		}
	}

	if _, err := e.Skip(ctx, view.SessionID); !errors.Is(err, ErrSkipsExhausted) {
		t.Errorf("got %v, want ErrSkipsExhausted", err)
	}

	// Skips spend budget only; they consume no turn and no card.
	status, err := e.Status(ctx, view.SessionID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.CardsDrawn != 0 {
		t.Errorf("CardsDrawn = %d after skips, want 0", status.CardsDrawn)
	}
	if status.CurrentPlayer != "Alice" {
		t.Errorf("CurrentPlayer = %q after skips, want Alice", status.CurrentPlayer)
	}
}

func TestEndDuration(t *testing.T) {
	start := time.Date(2026, 8, 1, 20, 0, 0, 0, time.UTC)
	e := newTestEngine(t, mildDeck(5), WithClock(scriptedClock(start, start.Add(125*time.Second))))
	ctx := context.Background()

	view, err := e.Start(ctx, StartConfig{PlayerNames: []string{"Alice", "Bob"}, Ceiling: Mild})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	stats, err := e.End(ctx, view.SessionID)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if stats.Duration != 2 {
		t.Errorf("Duration = %d minutes, want 2 (125s floored)", stats.Duration)
	}
}

func TestEndedSessionRejectsMutation(t *testing.T) {
	e := newTestEngine(t, mildDeck(5))
	ctx := context.Background()

	view, err := e.Start(ctx, StartConfig{PlayerNames: []string{"Alice", "Bob"}, Ceiling: Mild})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := e.End(ctx, view.SessionID); err != nil {
		t.Fatalf("End: %v", err)
	}

	if _, err := e.End(ctx, view.SessionID); !errors.Is(err, ErrAlreadyEnded) {
		t.Errorf("second End: got %v, want ErrAlreadyEnded", err)
	}
	if _, _, err := e.Draw(ctx, view.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Draw after end: got %v, want ErrSessionNotFound", err)
	}
	if _, err := e.Skip(ctx, view.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Skip after end: got %v, want ErrSessionNotFound", err)
	}
	if _, err := e.Status(ctx, view.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Status after end: got %v, want ErrSessionNotFound", err)
	}
}

func TestSummaryWithFavorites(t *testing.T) {
	favorites := NewMemoryFavorites()
	e := NewEngine(NewMemoryStore(), engineCatalog(t, mildDeck(5)), favorites, &seqRNG{vals: []int{0}})
	ctx := context.Background()

	view, err := e.Start(ctx, StartConfig{PlayerNames: []string{"Alice", "Bob"}, Ceiling: Mild})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	card, _, err := e.Draw(ctx, view.SessionID)
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if _, err := favorites.Add(ctx, card.ID); err != nil {
		t.Fatalf("Add favorite: %v", err)
	}

	if _, err := e.Summary(ctx, view.SessionID); !errors.Is(err, ErrValidation) {
		t.Errorf("Summary on active session: got %v, want ErrValidation", err)
	}

	if _, err := e.End(ctx, view.SessionID); err != nil {
		t.Fatalf("End: %v", err)
	}

	sum, err := e.Summary(ctx, view.SessionID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.FavoriteCardsInSession != 1 {
		t.Errorf("FavoriteCardsInSession = %d, want 1", sum.FavoriteCardsInSession)
	}
	if sum.TopFavoriteCard != card.ID {
		t.Errorf("TopFavoriteCard = %q, want %q", sum.TopFavoriteCard, card.ID)
	}
}

func TestTargetCountEndsSession(t *testing.T) {
	e := newTestEngine(t, mildDeck(10))
	ctx := context.Background()

	view, err := e.Start(ctx, StartConfig{
		PlayerNames:     []string{"Alice", "Bob"},
		Ceiling:         Mild,
		TargetCardCount: 3,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var last View
	for i := 0; i < 3; i++ {
		_, last, err = e.Draw(ctx, view.SessionID)
		if err != nil {
			t.Fatalf("draw %d: %v", i+1, err)
		}
	}

	if last.Active {
		t.Error("session still active after reaching target")
	}
	if last.Progress != 100 {
		t.Errorf("Progress = %d, want 100", last.Progress)
	}
	if _, err := e.End(ctx, view.SessionID); !errors.Is(err, ErrAlreadyEnded) {
		t.Errorf("End after auto-end: got %v, want ErrAlreadyEnded", err)
	}
	if _, err := e.Summary(ctx, view.SessionID); err != nil {
		t.Errorf("Summary after auto-end: %v", err)
	}
}

func TestSummaryAfterEarlyEnd(t *testing.T) {
	e := newTestEngine(t, mildDeck(12))
	ctx := context.Background()

	view, err := e.Start(ctx, StartConfig{
		PlayerNames:     []string{"Alice", "Bob"},
		Ceiling:         Mild,
		TargetCardCount: 10,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, _, err := e.Draw(ctx, view.SessionID); err != nil {
			t.Fatalf("draw %d: %v", i+1, err)
		}
	}
	if _, err := e.End(ctx, view.SessionID); err != nil {
		t.Fatalf("End: %v", err)
	}

	sum, err := e.Summary(ctx, view.SessionID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalCards != 10 || sum.CompletedCards != 2 || sum.CompletionPercentage != 20 {
		t.Errorf("early-ended summary = %+v, want 2 of 10 at 20%%", sum)
	}
}

func TestStartTargetNeedsCatalog(t *testing.T) {
	e := newTestEngine(t, mildDeck(2))

	_, err := e.Start(context.Background(), StartConfig{
		PlayerNames:     []string{"Alice", "Bob"},
		Ceiling:         Mild,
		TargetCardCount: 5,
	})
	if !errors.Is(err, ErrInsufficientCatalog) {
		t.Errorf("got %v, want ErrInsufficientCatalog", err)
	}
}

func TestConcurrentDrawsNoDuplicates(t *testing.T) {
	const workers = 10
	// Default crypto RNG; the per-session lock is what's under test.
	e := NewEngine(NewMemoryStore(), engineCatalog(t, mildDeck(20)), NewMemoryFavorites(), nil)
	ctx := context.Background()

	view, err := e.Start(ctx, StartConfig{PlayerNames: []string{"Alice", "Bob"}, Ceiling: Mild})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var mu sync.Mutex
	drawn := make([]string, 0, workers)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			card, _, err := e.Draw(ctx, view.SessionID)
			if err != nil {
				t.Errorf("Draw: %v", err)
				return
			}
			mu.Lock()
			drawn = append(drawn, card.ID)
			mu.Unlock()
		}()
	}
	wg.Wait()

	seen := make(map[string]bool, len(drawn))
	for _, id := range drawn {
		if seen[id] {
			t.Errorf("card %s drawn by two workers", id)
		}
		seen[id] = true
	}

	status, err := e.Status(ctx, view.SessionID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.CardsDrawn != workers {
		t.Errorf("CardsDrawn = %d, want %d", status.CardsDrawn, workers)
	}
	if status.Stats.TotalCards != workers || status.Stats.QuestionsAnswered != workers {
		t.Errorf("stats drifted under concurrency: %+v", status.Stats)
	}
}

func TestNotifierSeesEveryMutation(t *testing.T) {
	var got []View
	e := NewEngine(NewMemoryStore(), engineCatalog(t, mildDeck(5)), NewMemoryFavorites(), &seqRNG{vals: []int{0}},
		WithNotifier(func(v View) { got = append(got, v) }))
	ctx := context.Background()

	view, err := e.Start(ctx, StartConfig{PlayerNames: []string{"Alice", "Bob"}, Ceiling: Mild})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, _, err := e.Draw(ctx, view.SessionID); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if _, err := e.Skip(ctx, view.SessionID); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if _, err := e.End(ctx, view.SessionID); err != nil {
		t.Fatalf("End: %v", err)
	}

	if len(got) != 4 {
		t.Fatalf("notifier saw %d views, want 4", len(got))
	}
	if got[3].Active {
		t.Error("final notification should show the session ended")
	}
}

func TestEndReleasesSessionLock(t *testing.T) {
	e := newTestEngine(t, mildDeck(10))
	ctx := context.Background()

	view, err := e.Start(ctx, StartConfig{PlayerNames: []string{"Alice", "Bob"}, Ceiling: Mild})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, _, err := e.Draw(ctx, view.SessionID); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if _, err := e.End(ctx, view.SessionID); err != nil {
		t.Fatalf("End: %v", err)
	}

	e.mu.Lock()
	held := len(e.locks)
	e.mu.Unlock()
	if held != 0 {
		t.Errorf("%d session locks retained after End, want 0", held)
	}

	// The auto-end path on reaching the target drops the lock too.
	view, err = e.Start(ctx, StartConfig{
		PlayerNames:     []string{"Alice", "Bob"},
		Ceiling:         Mild,
		TargetCardCount: 2,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, _, err := e.Draw(ctx, view.SessionID); err != nil {
			t.Fatalf("draw %d: %v", i+1, err)
		}
	}

	e.mu.Lock()
	held = len(e.locks)
	e.mu.Unlock()
	if held != 0 {
		t.Errorf("%d session locks retained after auto-end, want 0", held)
	}
}

func TestSessionIDShape(t *testing.T) {
	id := newSessionID()
	if len(id) != len("game_")+12 {
		t.Errorf("session id %q has unexpected length", id)
	}
	if id[:5] != "game_" {
		t.Errorf("session id %q missing prefix", id)
	}
}
