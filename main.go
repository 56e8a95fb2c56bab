package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"overlay-server/config"
	"overlay-server/di"
)

func main() {
	settings := config.Load()
	container := di.NewContainer(settings)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if container.IngestsFeatures() {
		log.Println("[MAIN] Refreshing overlay data")
		if err := container.OverlayRefresherService.RefreshOverlayData(ctx); err != nil {
			log.Printf("[MAIN] Initial overlay refresh failed: %v", err)
		}
		container.OverlayRefresherService.StartPeriodicJob(ctx, settings.RefreshInterval)
	}

	container.SessionService.StartReaper(ctx, config.SESSION_REAPER_INTERVAL)

	if err := container.OverlayHttpServer.Start(ctx); err != nil {
		log.Printf("[MAIN] Server error: %v", err)
	}
	container.SessionService.CloseAll()
	log.Println("[MAIN] Bye")
}
