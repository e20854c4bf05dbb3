package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/sdvuuv/spitec/internal/api"
	"github.com/sdvuuv/spitec/internal/config"
	"github.com/sdvuuv/spitec/internal/dataset"
	"github.com/sdvuuv/spitec/internal/websocket"
	"github.com/sdvuuv/spitec/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting SIP trajectory server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
		logger.String("storage", cfg.Storage.Type),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the observation data set
	store, err := dataset.Open(ctx, cfg.Storage, log)
	if err != nil {
		log.Error("Failed to open data set", logger.Error(err))
		os.Exit(1)
	}

	// Create WebSocket server
	wsServer := websocket.NewServer(log, originChecker(cfg.Server.CORSAllowedOrigins))
	go wsServer.Run()

	// Create data set service and session handler
	service := dataset.NewService(store, cfg.Trajectory, wsServer, log)
	wsHandler := dataset.NewWebSocketHandler(service, wsServer, log)
	wsServer.SetMessageHandler(wsHandler)

	if _, err := service.Directory(ctx); err != nil {
		log.Error("Failed to load sites", logger.Error(err))
		os.Exit(1)
	}

	// Create API router
	handler := api.NewHandler(service, wsHandler, cfg, log)
	router := api.NewRouter(handler, cfg, wsServer.HandleConnection, log)
	routes := router.Routes()

	// --- Setup for multiple HTTP servers ---
	var servers []*http.Server
	allPorts := append([]int{cfg.Server.Port}, cfg.Server.AdditionalPorts...)

	log.Info("Configured listener ports", logger.Any("ports", allPorts))

	for _, port := range allPorts {
		server := &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, port),
			Handler:      routes, // All servers use the same main router
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
		}
		servers = append(servers, server)

		go func(s *http.Server) {
			log.Info("Starting HTTP server", logger.String("addr", s.Addr))
			if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("HTTP server error on startup", logger.String("addr", s.Addr), logger.Error(err))
			}
		}(server)
	}

	// SIGHUP reloads the data set; SIGINT and SIGTERM stop the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigCh {
		if sig != syscall.SIGHUP {
			break
		}
		log.Info("Reloading data set")
		reloadCtx, reloadCancel := context.WithTimeout(ctx, time.Minute)
		if _, err := wsHandler.Reload(reloadCtx); err != nil {
			log.Error("Failed to reload data set", logger.Error(err))
		}
		reloadCancel()
	}

	log.Info("Shutting down server...")
	cancel()

	// Shutdown all HTTP servers
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("HTTP server shutdown error", logger.String("addr", srv.Addr), logger.Error(err))
			} else {
				log.Info("HTTP server shutdown complete", logger.String("addr", srv.Addr))
			}
		}(s)
	}
	wg.Wait()

	wsServer.Stop()

	if err := service.Close(); err != nil {
		log.Error("Failed to close data set", logger.Error(err))
	}

	log.Info("Server fully stopped")
}

// originChecker accepts WebSocket upgrades from the configured CORS origins
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
