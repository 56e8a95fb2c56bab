package server

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"

	"overlay-server/metrics"
)

// SessionRoutes handles the per-session map events.
type SessionRoutes interface {
	CreateSession(w http.ResponseWriter, r *http.Request)
	GetSession(w http.ResponseWriter, r *http.Request)
	CloseSession(w http.ResponseWriter, r *http.Request)
	PostViewport(w http.ResponseWriter, r *http.Request)
	PostRendered(w http.ResponseWriter, r *http.Request)
	PostLocation(w http.ResponseWriter, r *http.Request)
	PostRecenter(w http.ResponseWriter, r *http.Request)
	PostOverlays(w http.ResponseWriter, r *http.Request)
	PostReload(w http.ResponseWriter, r *http.Request)
	GetOverlays(w http.ResponseWriter, r *http.Request)
	GetLoadsPlot(w http.ResponseWriter, r *http.Request)
}

// OverlayRoutes handles the stateless overlay queries.
type OverlayRoutes interface {
	GetOverlaysNearby(w http.ResponseWriter, r *http.Request)
	Ping(w http.ResponseWriter, r *http.Request)
}

type Router struct {
	sessionHandler SessionRoutes
	overlayHandler OverlayRoutes
	router         *mux.Router
}

// NewRouter creates a router with the app’s routes.
func NewRouter(
	sessionHandler SessionRoutes,
	overlayHandler OverlayRoutes,
	router *mux.Router) *Router {
	return &Router{
		sessionHandler: sessionHandler,
		overlayHandler: overlayHandler,
		router:         router,
	}
}

func (r *Router) RegisterRoutes() {
	r.router.Use(middleware.RequestID, middleware.Recoverer, accessLog)

	sessions := r.router.PathPrefix("/v1/sessions").Subrouter()
	sessions.HandleFunc("", r.sessionHandler.CreateSession).Methods("POST")
	sessions.HandleFunc("/{id}", r.sessionHandler.GetSession).Methods("GET")
	sessions.HandleFunc("/{id}", r.sessionHandler.CloseSession).Methods("DELETE")
	sessions.HandleFunc("/{id}/viewport", r.sessionHandler.PostViewport).Methods("POST")
	sessions.HandleFunc("/{id}/rendered", r.sessionHandler.PostRendered).Methods("POST")
	sessions.HandleFunc("/{id}/location", r.sessionHandler.PostLocation).Methods("POST")
	sessions.HandleFunc("/{id}/recenter", r.sessionHandler.PostRecenter).Methods("POST")
	sessions.HandleFunc("/{id}/overlays", r.sessionHandler.PostOverlays).Methods("POST")
	sessions.HandleFunc("/{id}/reload", r.sessionHandler.PostReload).Methods("POST")
	sessions.HandleFunc("/{id}/overlays", r.sessionHandler.GetOverlays).Methods("GET")
	sessions.HandleFunc("/{id}/loads/plot", r.sessionHandler.GetLoadsPlot).Methods("GET")

	// expects ?lat={latitude(float)}&lon={longitude(float)}&radius={km(float)}
	r.router.HandleFunc("/v1/overlays/nearby", r.overlayHandler.GetOverlaysNearby).Methods("GET")

	r.router.HandleFunc("/ping", r.overlayHandler.Ping).Methods("GET")
	r.router.Handle("/metrics", metrics.Handler()).Methods("GET")
}

// accessLog writes one line per request in the server's log format.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Printf("[HTTP] %s %s %d %s req=%s", r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}
