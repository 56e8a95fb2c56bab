package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func named(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(name + ":" + mux.Vars(r)["id"]))
	}
}

// MockSessionHandler answers every route with its own name.
type MockSessionHandler struct{}

func (MockSessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) { named("create")(w, r) }
func (MockSessionHandler) GetSession(w http.ResponseWriter, r *http.Request) { named("get")(w, r) }
func (MockSessionHandler) CloseSession(w http.ResponseWriter, r *http.Request) { named("close")(w, r) }
func (MockSessionHandler) PostViewport(w http.ResponseWriter, r *http.Request) { named("viewport")(w, r) }
func (MockSessionHandler) PostRendered(w http.ResponseWriter, r *http.Request) { named("rendered")(w, r) }
func (MockSessionHandler) PostLocation(w http.ResponseWriter, r *http.Request) { named("location")(w, r) }
func (MockSessionHandler) PostRecenter(w http.ResponseWriter, r *http.Request) { named("recenter")(w, r) }
func (MockSessionHandler) PostOverlays(w http.ResponseWriter, r *http.Request) { named("toggle")(w, r) }
func (MockSessionHandler) PostReload(w http.ResponseWriter, r *http.Request) { panic("reload exploded") }
func (MockSessionHandler) GetOverlays(w http.ResponseWriter, r *http.Request) { named("overlays")(w, r) }
func (MockSessionHandler) GetLoadsPlot(w http.ResponseWriter, r *http.Request) { named("plot")(w, r) }

// MockOverlayHandler is a mock implementation of OverlayRoutes.
type MockOverlayHandler struct{}

func (MockOverlayHandler) GetOverlaysNearby(w http.ResponseWriter, r *http.Request) {
	named("nearby")(w, r)
}
func (MockOverlayHandler) Ping(w http.ResponseWriter, r *http.Request) { named("ping")(w, r) }

func TestRouter_RegisterRoutes(t *testing.T) {
	// Setup
	router := mux.NewRouter()
	appRouter := NewRouter(MockSessionHandler{}, MockOverlayHandler{}, router)
	appRouter.RegisterRoutes()

	tests := []struct {
		name       string
		method     string
		path       string
		statusCode int
		response   string
	}{
		{"Create Session", "POST", "/v1/sessions", http.StatusOK, "create:"},
		{"Get Session", "GET", "/v1/sessions/abc", http.StatusOK, "get:abc"},
		{"Close Session", "DELETE", "/v1/sessions/abc", http.StatusOK, "close:abc"},
		{"Viewport", "POST", "/v1/sessions/abc/viewport", http.StatusOK, "viewport:abc"},
		{"Rendered", "POST", "/v1/sessions/abc/rendered", http.StatusOK, "rendered:abc"},
		{"Location", "POST", "/v1/sessions/abc/location", http.StatusOK, "location:abc"},
		{"Recenter", "POST", "/v1/sessions/abc/recenter", http.StatusOK, "recenter:abc"},
		{"Toggle Overlays", "POST", "/v1/sessions/abc/overlays", http.StatusOK, "toggle:abc"},
		{"Get Overlays", "GET", "/v1/sessions/abc/overlays", http.StatusOK, "overlays:abc"},
		{"Load Plot", "GET", "/v1/sessions/abc/loads/plot", http.StatusOK, "plot:abc"},
		{"Nearby Overlays", "GET", "/v1/overlays/nearby", http.StatusOK, "nearby:"},
		{"Ping Route", "GET", "/ping", http.StatusOK, "ping:"},
		{"Panicking Handler Recovers", "POST", "/v1/sessions/abc/reload", http.StatusInternalServerError, ""},
		{"Invalid Route", "GET", "/invalid", http.StatusNotFound, ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			req := httptest.NewRequest(test.method, test.path, nil)
			rr := httptest.NewRecorder()

			router.ServeHTTP(rr, req)

			assert.Equal(t, test.statusCode, rr.Code)
			if test.response != "" {
				assert.Equal(t, test.response, rr.Body.String())
			}
		})
	}
}

func TestRouter_MetricsRoute(t *testing.T) {
	router := mux.NewRouter()
	NewRouter(MockSessionHandler{}, MockOverlayHandler{}, router).RegisterRoutes()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "overlay_active_sessions")
}

func TestOverlayHttpServer_StopsOnContextCancel(t *testing.T) {
	router := mux.NewRouter()
	srv := NewOverlayHttpServer(NewRouter(MockSessionHandler{}, MockOverlayHandler{}, router), router, "127.0.0.1:0", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
