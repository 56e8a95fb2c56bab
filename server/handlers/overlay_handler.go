package handlers

import (
	"errors"
	"log"
	"net/http"

	services "overlay-server/service"
)

type OverlayHandler struct {
	overlayService *services.OverlayService
}

func NewOverlayHandler(overlayService *services.OverlayService) *OverlayHandler {
	return &OverlayHandler{overlayService: overlayService}
}

// GetOverlaysNearby expects ?lat={float}&lon={float}&radius={km}.
func (h *OverlayHandler) GetOverlaysNearby(w http.ResponseWriter, r *http.Request) {
	vals := r.URL.Query()
	args := make(map[string]float64, 3)
	for _, name := range []string{LAT_QUERY_ARG, LON_QUERY_ARG, RADIUS_QUERY_ARG} {
		v, err := parseArgFloat64(vals, name)
		if err != nil {
			http.Error(w, "Invalid argument "+name, http.StatusBadRequest)
			return
		}
		args[name] = v
	}

	fc, err := h.overlayService.GetOverlaysNearby(args[LAT_QUERY_ARG], args[LON_QUERY_ARG], args[RADIUS_QUERY_ARG])
	if errors.Is(err, services.ErrInvalidQuery) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Println("Error loading nearby overlays:", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

func (h *OverlayHandler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}
