package game

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// Notifier receives the updated session view after every successful
// mutation. Used to feed the websocket watchers; may be nil.
type Notifier func(View)

// Engine is the session state machine. It holds no hidden global state:
// store, catalog, favorites, RNG, and clock are all injected, so multiple
// engines can run side by side in tests.
type Engine struct {
	store     SessionStore
	catalog   Catalog
	favorites Favorites
	selector  *Selector
	now       func() time.Time
	notify    Notifier

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithNotifier sets the post-mutation view hook.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notify = n }
}

func NewEngine(store SessionStore, catalog Catalog, favorites Favorites, rng RNG, opts ...Option) *Engine {
	if rng == nil {
		rng = cryptoRNG{}
	}
	e := &Engine{
		store:     store,
		catalog:   catalog,
		favorites: favorites,
		selector:  NewSelector(rng),
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// cryptoRNG is the default randomness source.
type cryptoRNG struct{}

func (cryptoRNG) Intn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(err)
	}
	return int(v.Int64())
}

const sessionIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func newSessionID() string {
	const n = 12
	maxByte := byte(255 - (256 % len(sessionIDAlphabet)))

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)

	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			panic(err)
		}
		for _, b := range buf {
			if b <= maxByte {
				out = append(out, sessionIDAlphabet[int(b)%len(sessionIDAlphabet)])
				if len(out) == n {
					return "game_" + string(out)
				}
			}
		}
	}

	return "game_" + string(out)
}

// lock acquires the per-session mutex. Two concurrent draws against the
// same session would otherwise race their read-modify-write cycles and
// could duplicate cards or corrupt the turn index.
func (e *Engine) lock(id string) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// releaseLock drops an ended session's mutex from the map. Stragglers still
// holding the old mutex only ever see the ended session, so letting a late
// caller mint a fresh one is harmless.
func (e *Engine) releaseLock(id string) {
	e.mu.Lock()
	delete(e.locks, id)
	e.mu.Unlock()
}

func (e *Engine) emit(v View) {
	if e.notify != nil {
		e.notify(v)
	}
}

// loadActive fetches a session that can still be mutated. Ended sessions
// are reachable only through Summary.
func (e *Engine) loadActive(ctx context.Context, id string) (*Session, error) {
	s, err := e.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.Active {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Start creates and persists a new session. With a target card count the
// draw order is fixed up front; otherwise cards are picked on demand.
func (e *Engine) Start(ctx context.Context, cfg StartConfig) (View, error) {
	sess, err := newSession(cfg, e.now())
	if err != nil {
		return View{}, err
	}

	if sess.TargetCardCount > 0 {
		seq, err := e.selector.Sequence(e.catalog.LoadAll(), sess.IntensityCeiling, sess.Sections, sess.TargetCardCount)
		if err != nil {
			return View{}, err
		}
		sess.DrawSequence = seq
	}

	sess.SessionID = newSessionID()
	if err := e.store.Save(ctx, sess); err != nil {
		return View{}, err
	}

	v := sess.View()
	e.emit(v)
	return v, nil
}

// Status returns the current view of an active session.
func (e *Engine) Status(ctx context.Context, id string) (View, error) {
	s, err := e.loadActive(ctx, id)
	if err != nil {
		return View{}, err
	}
	return s.View(), nil
}

// Draw selects the next card, records it, and rotates the turn. Reaching
// the target card count ends the session as part of the same draw.
func (e *Engine) Draw(ctx context.Context, id string) (Card, View, error) {
	unlock := e.lock(id)
	defer unlock()

	sess, err := e.loadActive(ctx, id)
	if err != nil {
		return Card{}, View{}, err
	}

	var card Card
	if sess.presequenced() {
		if sess.CurrentCardIndex >= len(sess.DrawSequence) {
			return Card{}, View{}, ErrNoCardsAvailable
		}
		card, err = e.cardByID(sess.DrawSequence[sess.CurrentCardIndex])
		if err != nil {
			return Card{}, View{}, err
		}
		sess.CurrentCardIndex++
	} else {
		card, err = e.selector.PickRandom(e.catalog.LoadAll(), sess.IntensityCeiling, sess.Sections, sess.drawnSet())
		if err != nil {
			return Card{}, View{}, err
		}
	}

	sess.recordDraw(card)
	if sess.TargetCardCount > 0 && len(sess.DrawnCardIDs) >= sess.TargetCardCount {
		sess.end(e.now())
	}

	if err := sess.Validate(); err != nil {
		return Card{}, View{}, fmt.Errorf("draw left session invalid: %w", err)
	}
	if err := e.store.Save(ctx, sess); err != nil {
		return Card{}, View{}, err
	}
	if !sess.Active {
		e.releaseLock(id)
	}

	v := sess.View()
	e.emit(v)
	return card, v, nil
}

// Skip spends one skip. It does not advance the turn and does not count
// toward progress; the next draw replaces the skipped prompt.
func (e *Engine) Skip(ctx context.Context, id string) (int, error) {
	unlock := e.lock(id)
	defer unlock()

	sess, err := e.loadActive(ctx, id)
	if err != nil {
		return 0, err
	}
	if sess.SkipsUsed >= sess.MaxSkips {
		return 0, ErrSkipsExhausted
	}

	sess.SkipsUsed++
	if err := e.store.Save(ctx, sess); err != nil {
		return 0, err
	}

	v := sess.View()
	e.emit(v)
	return sess.SkipsRemaining(), nil
}

// End terminates an active session and returns its final stats. A second
// End on the same session fails with ErrAlreadyEnded.
func (e *Engine) End(ctx context.Context, id string) (FinalStats, error) {
	unlock := e.lock(id)
	defer unlock()

	sess, err := e.store.Load(ctx, id)
	if err != nil {
		return FinalStats{}, err
	}
	if !sess.Active {
		return FinalStats{}, ErrAlreadyEnded
	}

	sess.end(e.now())
	if err := e.store.Save(ctx, sess); err != nil {
		return FinalStats{}, err
	}
	e.releaseLock(id)

	e.emit(sess.View())
	return sess.FinalStats(), nil
}

// Summary composes the end-of-session report for an ended session,
// consulting the favorite set.
func (e *Engine) Summary(ctx context.Context, id string) (Summary, error) {
	sess, err := e.store.Load(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	if sess.Active {
		return Summary{}, fmt.Errorf("%w: session is still active", ErrValidation)
	}

	favorites, err := e.favorites.All(ctx)
	if err != nil {
		return Summary{}, err
	}
	return sess.Summarize(favorites), nil
}

func (e *Engine) cardByID(id string) (Card, error) {
	for _, c := range e.catalog.LoadAll() {
		if c.ID == id {
			return c, nil
		}
	}
	return Card{}, fmt.Errorf("%w: card %s missing from catalog", ErrNoCardsAvailable, id)
}
