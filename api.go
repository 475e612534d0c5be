package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/sparkdeck/spark/game"
)

type startRequest struct {
	PlayerNames     []string `json:"playerNames"`
	Intensity       string   `json:"intensity"`
	Sections        []string `json:"sections,omitempty"`
	TargetCardCount int      `json:"targetCardCount,omitempty"`
	Preset          string   `json:"preset,omitempty"`
	MaxSkips        int      `json:"maxSkips,omitempty"`
}

type startResponse struct {
	Success     bool      `json:"success"`
	SessionID   string    `json:"sessionId"`
	GameSession game.View `json:"gameSession"`
}

type statusResponse struct {
	Success     bool      `json:"success"`
	GameSession game.View `json:"gameSession"`
}

type drawResponse struct {
	Success     bool      `json:"success"`
	Card        game.Card `json:"card"`
	GameSession game.View `json:"gameSession"`
}

type skipResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	SkipsRemaining int    `json:"skipsRemaining"`
}

type endResponse struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	FinalStats game.FinalStats `json:"finalStats"`
}

type summaryResponse struct {
	Success bool         `json:"success"`
	Summary game.Summary `json:"summary"`
}

type favoritesResponse struct {
	Success       bool `json:"success"`
	FavoriteCount int  `json:"favoriteCount"`
}

// registerAPI wires the game operation surface under /api.
func (s *server) registerAPI(mux *httprouter.Router) {
	prefix := s.cfg.prefix

	mux.POST(prefix+"/api/game", s.handleStart)
	mux.GET(prefix+"/api/game/:sessionId", s.handleStatus)
	mux.POST(prefix+"/api/game/:sessionId/draw", s.handleDraw)
	mux.POST(prefix+"/api/game/:sessionId/skip", s.handleSkip)
	mux.POST(prefix+"/api/game/:sessionId/end", s.handleEnd)
	mux.GET(prefix+"/api/game/:sessionId/summary", s.handleSummary)
	mux.GET(prefix+"/api/game/:sessionId/ws", s.handleWatch)
	mux.GET(prefix+"/api/game/:sessionId/qr", s.handleQR)

	mux.GET(prefix+"/api/cards", s.handleCards)
	mux.GET(prefix+"/api/cards/:id", s.handleCard)
	mux.GET(prefix+"/api/categories", s.handleCategories)
	mux.POST(prefix+"/api/admin/seed", s.handleSeed)

	mux.GET(prefix+"/api/favorites", s.handleFavoritesList)
	mux.POST(prefix+"/api/favorites/:cardId", s.handleFavoriteAdd)
	mux.DELETE(prefix+"/api/favorites/:cardId", s.handleFavoriteRemove)
}

func (s *server) fail(op string, w http.ResponseWriter, err error) {
	s.metrics.operation(op, "error")
	logrus.WithFields(logrus.Fields{"op": op}).Debugf("ERROR: %v", err)
	respondError(s.cfg, w, err)
}

func (s *server) handleStart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	securityHeaders(s.cfg, w)

	var req startRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		s.fail("start", w, err)
		return
	}

	ceiling, err := game.ParseIntensity(req.Intensity)
	if err != nil {
		s.fail("start", w, err)
		return
	}

	cfg := game.StartConfig{
		PlayerNames:     req.PlayerNames,
		Ceiling:         ceiling,
		Sections:        req.Sections,
		TargetCardCount: req.TargetCardCount,
		MaxSkips:        req.MaxSkips,
	}
	if cfg.MaxSkips == 0 {
		cfg.MaxSkips = s.cfg.maxSkips
	}
	if req.Preset != "" {
		preset, ok := game.Presets[req.Preset]
		if !ok {
			s.fail("start", w, fmt.Errorf("%w: unknown preset %q", game.ErrValidation, req.Preset))
			return
		}
		if cfg.TargetCardCount == 0 {
			cfg.TargetCardCount = preset.CardCount
		}
		if len(cfg.Sections) == 0 {
			cfg.Sections = preset.Sections
		}
	}

	view, err := s.engine.Start(r.Context(), cfg)
	if err != nil {
		s.fail("start", w, err)
		return
	}

	s.metrics.operation("start", "ok")
	s.metrics.activeSessions.Inc()
	logrus.WithFields(logrus.Fields{
		"session": view.SessionID,
		"players": view.PlayerNames,
	}).Debugf("GAMES: Started session for %s", realIP(r))

	respondJSON(w, http.StatusOK, startResponse{
		Success:     true,
		SessionID:   view.SessionID,
		GameSession: view,
	})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	securityHeaders(s.cfg, w)

	view, err := s.engine.Status(r.Context(), ps.ByName("sessionId"))
	if err != nil {
		s.fail("status", w, err)
		return
	}

	s.metrics.operation("status", "ok")
	respondJSON(w, http.StatusOK, statusResponse{Success: true, GameSession: view})
}

func (s *server) handleDraw(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	securityHeaders(s.cfg, w)

	card, view, err := s.engine.Draw(r.Context(), ps.ByName("sessionId"))
	if err != nil {
		s.fail("draw", w, err)
		return
	}

	s.metrics.operation("draw", "ok")
	if !view.Active {
		// Reaching the target card count ends the session with the draw.
		s.metrics.activeSessions.Dec()
	}
	logrus.WithFields(logrus.Fields{
		"session": view.SessionID,
		"card":    card.ID,
	}).Debugf("GAMES: Drew card for %s", realIP(r))

	respondJSON(w, http.StatusOK, drawResponse{Success: true, Card: card, GameSession: view})
}

func (s *server) handleSkip(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	securityHeaders(s.cfg, w)

	remaining, err := s.engine.Skip(r.Context(), ps.ByName("sessionId"))
	if err != nil {
		s.fail("skip", w, err)
		return
	}

	s.metrics.operation("skip", "ok")
	respondJSON(w, http.StatusOK, skipResponse{
		Success:        true,
		Message:        "Card skipped",
		SkipsRemaining: remaining,
	})
}

func (s *server) handleEnd(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	securityHeaders(s.cfg, w)

	stats, err := s.engine.End(r.Context(), ps.ByName("sessionId"))
	if err != nil {
		s.fail("end", w, err)
		return
	}

	s.metrics.operation("end", "ok")
	s.metrics.activeSessions.Dec()
	respondJSON(w, http.StatusOK, endResponse{
		Success:    true,
		Message:    "Game session ended",
		FinalStats: stats,
	})
}

func (s *server) handleSummary(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	securityHeaders(s.cfg, w)

	summary, err := s.engine.Summary(r.Context(), ps.ByName("sessionId"))
	if err != nil {
		s.fail("summary", w, err)
		return
	}

	s.metrics.operation("summary", "ok")
	respondJSON(w, http.StatusOK, summaryResponse{Success: true, Summary: summary})
}

func (s *server) handleCards(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	securityHeaders(s.cfg, w)

	q := r.URL.Query()
	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.fail("cards", w, fmt.Errorf("%w: invalid limit %q", game.ErrValidation, v))
			return
		}
		limit = n
	}

	var intensity game.Intensity
	if v := q.Get("intensity"); v != "" {
		parsed, err := game.ParseIntensity(v)
		if err != nil {
			s.fail("cards", w, err)
			return
		}
		intensity = parsed
	}

	category := q.Get("category")
	cardType := q.Get("type")

	cards := make([]game.Card, 0, limit)
	for _, c := range s.catalog.LoadAll() {
		if !c.Active {
			continue
		}
		if category != "" && c.Section != category {
			continue
		}
		if cardType != "" && string(c.Type) != cardType {
			continue
		}
		if intensity != 0 && c.Intensity != intensity {
			continue
		}
		cards = append(cards, c)
		if len(cards) == limit {
			break
		}
	}

	s.metrics.operation("cards", "ok")
	respondJSON(w, http.StatusOK, struct {
		Success bool        `json:"success"`
		Count   int         `json:"count"`
		Cards   []game.Card `json:"cards"`
	}{true, len(cards), cards})
}

func (s *server) handleCard(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	securityHeaders(s.cfg, w)

	id := ps.ByName("id")
	for _, c := range s.catalog.LoadAll() {
		if c.ID == id && c.Active {
			s.metrics.operation("cards", "ok")
			respondJSON(w, http.StatusOK, struct {
				Success bool      `json:"success"`
				Card    game.Card `json:"card"`
			}{true, c})
			return
		}
	}

	s.metrics.operation("cards", "error")
	respondJSON(w, http.StatusNotFound, errorResponse{Error: "Card not found"})
}

func (s *server) handleCategories(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	securityHeaders(s.cfg, w)

	s.metrics.operation("cards", "ok")
	respondJSON(w, http.StatusOK, struct {
		Success    bool     `json:"success"`
		Categories []string `json:"categories"`
	}{true, game.Sections(s.catalog.LoadAll())})
}

// handleSeed bulk-replaces the catalog. The card content itself is authored
// elsewhere; this is just the reseed hook.
func (s *server) handleSeed(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	securityHeaders(s.cfg, w)

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		s.fail("seed", w, fmt.Errorf("%w: read body: %v", game.ErrValidation, err))
		return
	}

	cards, err := game.ParseCards(data)
	if err != nil {
		s.fail("seed", w, err)
		return
	}
	if err := s.catalog.ReplaceAll(cards); err != nil {
		s.fail("seed", w, err)
		return
	}

	s.metrics.operation("seed", "ok")
	logrus.Infof("GAMES: Catalog reseeded with %d cards by %s", len(cards), realIP(r))
	respondJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{true, fmt.Sprintf("Catalog seeded with %d cards", len(cards))})
}

func (s *server) handleFavoriteAdd(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	securityHeaders(s.cfg, w)

	count, err := s.favorites.Add(r.Context(), ps.ByName("cardId"))
	if err != nil {
		s.fail("favorite", w, err)
		return
	}

	s.metrics.operation("favorite", "ok")
	respondJSON(w, http.StatusOK, favoritesResponse{Success: true, FavoriteCount: count})
}

func (s *server) handleFavoriteRemove(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	securityHeaders(s.cfg, w)

	count, err := s.favorites.Remove(r.Context(), ps.ByName("cardId"))
	if err != nil {
		s.fail("favorite", w, err)
		return
	}

	s.metrics.operation("favorite", "ok")
	respondJSON(w, http.StatusOK, favoritesResponse{Success: true, FavoriteCount: count})
}

func (s *server) handleFavoritesList(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	securityHeaders(s.cfg, w)

	all, err := s.favorites.All(r.Context())
	if err != nil {
		s.fail("favorite", w, err)
		return
	}

	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	s.metrics.operation("favorite", "ok")
	respondJSON(w, http.StatusOK, struct {
		Success   bool     `json:"success"`
		Favorites []string `json:"favorites"`
	}{true, ids})
}

func decodeJSON(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("%w: parse request body: %v", game.ErrValidation, err)
	}
	return nil
}
