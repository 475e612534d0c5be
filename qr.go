package main

import (
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
)

// handleQR generates a PNG QR code for the session URL, so the second
// player can pull the session up on their phone.
func (s *server) handleQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sessionID := ps.ByName("sessionId")

	if _, err := s.engine.Status(r.Context(), sessionID); err != nil {
		s.fail("qr", w, err)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /api/game/:sessionId/qr; strip the suffix to get the
	// session URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")
	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	s.metrics.operation("qr", "ok")
	w.Header().Set("Content-Type", "image/png")
	written, err := w.Write(png)
	if err != nil {
		logrus.Errorf("write qr: %v", err)
		return
	}

	logrus.Debugf("SERVE: QR code (%s) to %s", humanReadableSize(int64(written)), realIP(r))
}
