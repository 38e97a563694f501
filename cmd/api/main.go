package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"inkwell/api/internal/annotations"
	"inkwell/api/internal/app"
	"inkwell/api/internal/archive"
	"inkwell/api/internal/authpw"
	"inkwell/api/internal/collab"
	"inkwell/api/internal/config"
	"inkwell/api/internal/export"
	"inkwell/api/internal/history"
	"inkwell/api/internal/presence"
	"inkwell/api/internal/search"
	"inkwell/api/internal/snapshot"
	"inkwell/api/internal/store"
	"inkwell/api/internal/textdiff"
	"inkwell/api/internal/ws"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
		log.Fatalf("failed to create archive dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	archiveService := archive.New(cfg.ArchiveDir)
	differ := textdiff.NewEngine(textdiff.Options{
		DiffTimeout:    cfg.DiffTimeout,
		MatchThreshold: cfg.PatchMatchThreshold,
	})
	graph := history.NewGraph(differ)
	comments := annotations.NewStore()

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	searchService.ReindexAllFromPG(ctx)

	var tracker presence.Tracker
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("presence: using redis tracker")
		redisTracker, err := presence.NewRedis(cfg.RedisURL, cfg.PresenceTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisTracker.Close()
		tracker = redisTracker
	} else {
		log.Printf("presence: using in-memory tracker")
		tracker = presence.NewMemory()
	}

	var snapshots *snapshot.Uploader
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		snapshots, err = snapshot.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Printf("WARNING: snapshot store unavailable: %v", err)
			snapshots = nil
		}
	}

	exporter := export.NewService(graph, differ, comments)
	authService := authpw.NewService(dataStore)
	orchestrator := collab.NewOrchestrator(dataStore, tracker, comments)

	deps := app.ServiceDeps{
		Graph:     graph,
		Store:     dataStore,
		Archive:   archiveService,
		Search:    searchService,
		Exporter:  exporter,
		Comments:  comments,
		AuthPW:    authService,
		JWTSecret: cfg.JWTSecret,
		AccessTTL: cfg.AccessTTL,
	}
	if snapshots != nil {
		deps.Snapshots = snapshots
	}
	service := app.NewService(deps)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	wsHandler := ws.NewHandler(orchestrator, wsAuthenticator(service))

	// The websocket endpoint bypasses the logging middleware so the
	// connection can be hijacked for the upgrade.
	mux := http.NewServeMux()
	mux.Handle("/ws", wsHandler)
	mux.Handle("/", httpServer.Handler())

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Inkwell API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// wsAuthenticator accepts the access token from the Authorization header or,
// for browser clients that cannot set websocket headers, a token query param.
func wsAuthenticator(service *app.Service) ws.Authenticator {
	return func(r *http.Request) (collab.Participant, error) {
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if token == "" {
			token = strings.TrimSpace(r.URL.Query().Get("token"))
		}
		session, err := service.SessionFromToken(token)
		if err != nil {
			return collab.Participant{}, err
		}
		return collab.Participant{ID: session.UserID, Username: session.UserName}, nil
	}
}
