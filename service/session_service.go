package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"overlay-server/clock"
	"overlay-server/config"
	"overlay-server/coordinator"
	"overlay-server/metrics"
	"overlay-server/models"
	"overlay-server/overlay"
	"overlay-server/viewport"
)

// ErrSessionNotFound is returned for unknown or already closed sessions.
var ErrSessionNotFound = errors.New("session not found")

// Session is one map surface: a coordinator deciding when to load and a
// fetcher doing the loading. It sits between the two so it can record what
// was asked for and keep what came back.
type Session struct {
	ID          string
	coordinator *coordinator.OverlayLoadCoordinator
	fetcher     *overlay.Fetcher
	clock       clock.Clock

	mu       sync.Mutex
	loads    []models.LoadRecord
	latest   *overlay.LoadResult
	lastSeen time.Time
}

// SessionStatus is a point-in-time view of a session.
type SessionStatus struct {
	ID              string           `json:"id"`
	State           string           `json:"state"`
	OverlaysEnabled bool             `json:"overlays_enabled"`
	Viewport        *models.Viewport `json:"viewport,omitempty"`
	LastTileKey     string           `json:"last_tile_key,omitempty"`
	LoadsIssued     int              `json:"loads_issued"`
}

// RequestLoad records the load and forwards it to the fetcher.
func (s *Session) RequestLoad(v models.Viewport, tag string) {
	s.mu.Lock()
	s.loads = append(s.loads, models.LoadRecord{
		Tag:         tag,
		Viewport:    v,
		BoundingBox: models.BoundingBoxFromViewport(v),
		RequestedAt: s.clock.Now(),
	})
	s.mu.Unlock()
	s.fetcher.RequestLoad(v, tag)
}

// OverlaysLoaded keeps the newest result; late deliveries of older loads
// are ignored.
func (s *Session) OverlaysLoaded(r overlay.LoadResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest != nil && s.latest.Seq >= r.Seq {
		log.Printf("[Session %s] Ignoring stale load %s", s.ID, r.Tag)
		return
	}
	s.latest = &r
}

func (s *Session) ViewportChanged(v models.Viewport) {
	s.touch()
	s.coordinator.ViewportChanged(v)
}

func (s *Session) RenderCompleted() {
	s.touch()
	s.coordinator.RenderCompleted()
}

func (s *Session) LocationSampled(sample models.LocationSample) {
	s.touch()
	s.coordinator.LocationSampled(sample)
}

// LocationUpdated takes a fix the client already classified.
func (s *Session) LocationUpdated(accurate, isStale bool) {
	s.touch()
	s.coordinator.LocationUpdated(accurate, isStale)
}

// Recenter moves the map to point, keeping it above the bottom sheet. A nil
// span keeps the current zoom.
func (s *Session) Recenter(point models.Coordinate, span *models.Span, reason coordinator.Reason) models.Viewport {
	s.touch()
	target := models.Span{LatDelta: config.TILE_KEY_MIN_STEP_DEGREES, LonDelta: config.TILE_KEY_MIN_STEP_DEGREES}
	if span != nil {
		target = *span
	} else if current, ok := s.coordinator.CurrentViewport(); ok {
		target = current.Span
	}
	v := viewport.BiasedRecenterTarget(point, target, config.RECENTER_VERTICAL_BIAS_FRACTION)
	s.coordinator.RecenterRequested(v, reason)
	return v
}

// SetOverlaysEnabled toggles overlays. Enabling them on a ready session
// repaints the current viewport straight away.
func (s *Session) SetOverlaysEnabled(enabled bool) {
	s.touch()
	if s.coordinator.ToggleOverlaysEnabled(enabled) {
		s.coordinator.Repaint(coordinator.ReasonOverlaysEnabled)
	}
}

func (s *Session) ForceReload() {
	s.touch()
	s.coordinator.ForceReload()
}

// LatestOverlays returns the newest delivered load, if any. Polling it keeps
// the session alive.
func (s *Session) LatestOverlays() (overlay.LoadResult, bool) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return overlay.LoadResult{}, false
	}
	return *s.latest, true
}

// LoadHistory returns a copy of every load the coordinator issued.
func (s *Session) LoadHistory() []models.LoadRecord {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LoadRecord, len(s.loads))
	copy(out, s.loads)
	return out
}

func (s *Session) Status() SessionStatus {
	s.touch()
	st := SessionStatus{
		ID:              s.ID,
		State:           s.coordinator.State().String(),
		OverlaysEnabled: s.coordinator.OverlaysEnabled(),
	}
	if v, ok := s.coordinator.CurrentViewport(); ok {
		st.Viewport = &v
	}
	if key, ok := s.coordinator.LastTileKey(); ok {
		st.LastTileKey = string(key)
	}
	s.mu.Lock()
	st.LoadsIssued = len(s.loads)
	s.mu.Unlock()
	return st
}

func (s *Session) touch() {
	now := s.clock.Now()
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) close() {
	s.coordinator.Close()
	s.fetcher.Close()
}

// SessionService owns the live map sessions.
type SessionService struct {
	source         overlay.Source
	cache          overlay.TileCache
	coordinatorCfg coordinator.Config
	fetcherCfg     overlay.FetcherConfig
	clock          clock.Clock
	idleTimeout    time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionService constructs a SessionService. cache may be nil.
func NewSessionService(
	source overlay.Source,
	cache overlay.TileCache,
	coordinatorCfg coordinator.Config,
	fetcherCfg overlay.FetcherConfig,
	clk clock.Clock,
	idleTimeout time.Duration,
) *SessionService {
	return &SessionService{
		source:         source,
		cache:          cache,
		coordinatorCfg: coordinatorCfg,
		fetcherCfg:     fetcherCfg,
		clock:          clk,
		idleTimeout:    idleTimeout,
		sessions:       make(map[string]*Session),
	}
}

// Create starts a new session in the NotReady state.
func (ss *SessionService) Create() *Session {
	s := &Session{
		ID:       uuid.NewString(),
		clock:    ss.clock,
		lastSeen: ss.clock.Now(),
	}
	s.fetcher = overlay.NewFetcher(ss.fetcherCfg, ss.source, ss.cache, s)
	s.coordinator = coordinator.NewOverlayLoadCoordinator(ss.coordinatorCfg, ss.clock, s)

	ss.mu.Lock()
	ss.sessions[s.ID] = s
	n := len(ss.sessions)
	ss.mu.Unlock()

	metrics.ActiveSessions.Inc()
	log.Printf("[SessionService] Created session %s (%d active)", s.ID, n)
	return s
}

func (ss *SessionService) Get(id string) (*Session, error) {
	ss.mu.Lock()
	s, ok := ss.sessions[id]
	ss.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close stops the session's timers and in-flight fetch and forgets it.
func (ss *SessionService) Close(id string) error {
	ss.mu.Lock()
	s, ok := ss.sessions[id]
	delete(ss.sessions, id)
	ss.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.close()
	metrics.ActiveSessions.Dec()
	log.Printf("[SessionService] Closed session %s", id)
	return nil
}

// CloseAll closes every session, used on shutdown.
func (ss *SessionService) CloseAll() {
	for _, id := range ss.ids() {
		_ = ss.Close(id)
	}
}

func (ss *SessionService) Count() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.sessions)
}

// ReapIdle closes sessions not touched for longer than the idle timeout and
// returns how many it closed.
func (ss *SessionService) ReapIdle() int {
	cutoff := ss.clock.Now().Add(-ss.idleTimeout)
	reaped := 0
	for _, id := range ss.ids() {
		s, err := ss.Get(id)
		if err != nil || !s.idleSince().Before(cutoff) {
			continue
		}
		if ss.Close(id) == nil {
			reaped++
		}
	}
	return reaped
}

// StartReaper launches the idle-session loop until ctx is done.
func (ss *SessionService) StartReaper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := ss.ReapIdle(); n > 0 {
					log.Printf("[SessionService] Reaped %d idle sessions", n)
				}
			}
		}
	}()
}

func (ss *SessionService) ids() []string {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ids := make([]string, 0, len(ss.sessions))
	for id := range ss.sessions {
		ids = append(ids, id)
	}
	return ids
}
