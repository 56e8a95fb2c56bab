package handlers

import (
	"bytes"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"overlay-server/coordinator"
	"overlay-server/models"
	services "overlay-server/service"
	"overlay-server/util"
)

// ViewportRequest is the body of POST /viewport.
type ViewportRequest struct {
	Center models.Coordinate `json:"center"`
	Span   models.Span       `json:"span"`
}

// LocationRequest carries either a raw fix or a fix the client already
// classified (Accurate set).
type LocationRequest struct {
	Lat                      float64 `json:"lat"`
	Lon                      float64 `json:"lon"`
	HorizontalAccuracyMeters float64 `json:"horizontal_accuracy_m"`
	AgeMs                    int64   `json:"age_ms"`
	Accurate                 *bool   `json:"accurate,omitempty"`
	Stale                    bool    `json:"stale,omitempty"`
}

// RecenterRequest is the body of POST /recenter. Span is optional.
type RecenterRequest struct {
	Lat    float64      `json:"lat"`
	Lon    float64      `json:"lon"`
	Reason string       `json:"reason"`
	Span   *models.Span `json:"span,omitempty"`
}

type OverlaysToggleRequest struct {
	Enabled bool `json:"enabled"`
}

type SessionHandler struct {
	sessionService *services.SessionService
}

func NewSessionHandler(sessionService *services.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.sessionService.Create()
	writeJSON(w, http.StatusCreated, s.Status())
}

func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

func (h *SessionHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessionService.Close(mux.Vars(r)[SESSION_ID_PATH_VAR]); err != nil {
		h.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) PostViewport(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ViewportRequest
	if !decodeBody(w, r, &req) {
		return
	}
	v := models.Viewport{Center: req.Center, Span: req.Span}
	if err := v.Validate(); err != nil {
		http.Error(w, "Invalid viewport: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.ViewportChanged(v)
	writeJSON(w, http.StatusAccepted, s.Status())
}

func (h *SessionHandler) PostRendered(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.RenderCompleted()
	writeJSON(w, http.StatusAccepted, s.Status())
}

func (h *SessionHandler) PostLocation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req LocationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Accurate != nil {
		s.LocationUpdated(*req.Accurate, req.Stale)
	} else {
		if req.HorizontalAccuracyMeters < 0 || req.AgeMs < 0 {
			http.Error(w, "Invalid location sample", http.StatusBadRequest)
			return
		}
		s.LocationSampled(models.LocationSample{
			Coordinate:               models.Coordinate{Lat: req.Lat, Lon: req.Lon},
			HorizontalAccuracyMeters: req.HorizontalAccuracyMeters,
			Age:                      time.Duration(req.AgeMs) * time.Millisecond,
		})
	}
	writeJSON(w, http.StatusAccepted, s.Status())
}

func (h *SessionHandler) PostRecenter(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req RecenterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	reason, err := coordinator.ParseRecenterReason(req.Reason)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	point := models.Coordinate{Lat: req.Lat, Lon: req.Lon}
	check := models.Viewport{Center: point, Span: models.Span{LatDelta: 1, LonDelta: 1}}
	if req.Span != nil {
		check.Span = *req.Span
	}
	if err := check.Validate(); err != nil {
		http.Error(w, "Invalid recenter target: "+err.Error(), http.StatusBadRequest)
		return
	}
	v := s.Recenter(point, req.Span, reason)
	writeJSON(w, http.StatusAccepted, v)
}

func (h *SessionHandler) PostOverlays(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req OverlaysToggleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.SetOverlaysEnabled(req.Enabled)
	writeJSON(w, http.StatusAccepted, s.Status())
}

func (h *SessionHandler) PostReload(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.ForceReload()
	writeJSON(w, http.StatusAccepted, s.Status())
}

// GetOverlays returns the newest delivered load, or 204 before the first.
func (h *SessionHandler) GetOverlays(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	result, ok := s.LatestOverlays()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *SessionHandler) GetLoadsPlot(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := util.PlotLoadHistory(&buf, s.LoadHistory()); err != nil {
		log.Println("Error plotting load history:", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*services.Session, bool) {
	s, err := h.sessionService.Get(mux.Vars(r)[SESSION_ID_PATH_VAR])
	if err != nil {
		h.writeSessionError(w, err)
		return nil, false
	}
	return s, true
}

func (h *SessionHandler) writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrSessionNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	log.Println("Session error:", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
