package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"drawing-assistant-go/src/configs"
	"drawing-assistant-go/src/configs/database"
	"drawing-assistant-go/src/core/analyzer"
	"drawing-assistant-go/src/core/assist"
	"drawing-assistant-go/src/core/camera"
	imageproc "drawing-assistant-go/src/core/image"
	"drawing-assistant-go/src/core/providers/critique"
	"drawing-assistant-go/src/core/providers/imagegen"
	"drawing-assistant-go/src/core/providers/speech"
	"drawing-assistant-go/src/core/session"
	"drawing-assistant-go/src/core/utils"
	"drawing-assistant-go/src/web"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func LoadConfigAndLogger() (*configs.Config, *utils.Logger, error) {
	config, configPath, err := configs.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger, err := utils.NewLogger(config)
	if err != nil {
		return nil, nil, err
	}
	logger.Info(fmt.Sprintf("logging initialized, config file: %s", configPath))

	return config, logger, nil
}

// buildService wires the whole assistant: camera, AI clients, speech,
// analyzer, session state and the web layer on top.
func buildService(config *configs.Config, logger *utils.Logger) (*web.Service, *web.Hub, error) {
	for _, dir := range []string{config.Storage.CapturedDir, config.Storage.GeneratedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating image directory %s: %w", dir, err)
		}
	}

	processor := imageproc.NewProcessor(config.Camera.MaxWidth, logger)

	source, err := camera.NewSource(config.Camera, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing camera: %w", err)
	}

	critiqueName := config.SelectedModule["critique"]
	critiqueCfg, ok := config.Critique[critiqueName]
	if !ok {
		return nil, nil, fmt.Errorf("selected critique module %q is not configured", critiqueName)
	}
	critic, err := critique.NewClient(critiqueCfg, processor, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing critique client: %w", err)
	}

	// An unconfigured image generator still constructs; Generate reports
	// failure at call time so the rest of the assistant keeps working.
	imageGenCfg := config.ImageGen[config.SelectedModule["image_gen"]]
	if imageGenCfg.Type == "" {
		imageGenCfg.Type = "gemini"
	}
	images, err := imagegen.NewClient(imageGenCfg, config.Storage.GeneratedDir, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing image generation client: %w", err)
	}

	var engine speech.Engine
	if config.TTS.Enabled {
		engine, err = speech.NewEngine(config.TTS, logger)
		if err != nil {
			logger.Warn(fmt.Sprintf("speech engine unavailable, continuing without TTS: %v", err))
			engine = nil
		}
	}

	var store speech.SettingsStore
	if db, err := database.InitDB(); err != nil {
		logger.Warn(fmt.Sprintf("settings database unavailable, speech preferences will not persist: %v", err))
	} else {
		store = speech.NewDBSettingsStore(db)
	}
	speaker := speech.NewSpeaker(engine, config.TTS, store, logger)

	feedbackAnalyzer := analyzer.NewAnalyzer(config.Analyzer, logger)
	sessionState := session.NewState(config.SystemPrompt)
	hub := web.NewHub(logger)

	pipeline := assist.NewPipeline(
		source, critic, images, speaker,
		feedbackAnalyzer, sessionState, processor,
		hub, config.Storage.CapturedDir, logger,
	)

	service := web.NewService(config, pipeline, sessionState, speaker, feedbackAnalyzer, source, hub, logger)
	return service, hub, nil
}

func StartHttpServer(config *configs.Config, logger *utils.Logger, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	if config.Log.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.SetTrustedProxies([]string{"0.0.0.0"})

	service, hub, err := buildService(config, logger)
	if err != nil {
		logger.Error(fmt.Sprintf("building assistant failed: %v", err))
		return nil, err
	}

	apiGroup := router.Group("/api")
	if err := service.Start(groupCtx, router, apiGroup); err != nil {
		logger.Error(fmt.Sprintf("registering routes failed: %v", err))
		return nil, err
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Server.IP, config.Server.Port),
		Handler: router,
	}

	g.Go(func() error {
		logger.Info(fmt.Sprintf("drawing assistant listening on http://%s:%d", config.Server.IP, config.Server.Port))

		go func() {
			<-groupCtx.Done()
			logger.Info("shutdown signal received, stopping HTTP server...")

			hub.Close()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error(fmt.Sprintf("HTTP server shutdown failed: %v", err))
			} else {
				logger.Info("HTTP server stopped")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(fmt.Sprintf("HTTP server failed: %v", err))
			return err
		}
		return nil
	})

	return httpServer, nil
}

func GracefulShutdown(cancel context.CancelFunc, logger *utils.Logger, g *errgroup.Group) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	logger.Info(fmt.Sprintf("received signal %v, shutting down", sig))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error(fmt.Sprintf("shutdown finished with error: %v", err))
			os.Exit(1)
		}
		logger.Info("all services stopped")
	case <-time.After(15 * time.Second):
		logger.Error("shutdown timed out, forcing exit")
		os.Exit(1)
	}
}

func main() {
	// Loaded before the config so API keys from .env reach the overlay.
	dotenvErr := godotenv.Load()

	config, logger, err := LoadConfigAndLogger()
	if err != nil {
		fmt.Println("failed to load configuration or initialize logging:", err)
		os.Exit(1)
	}
	defer logger.Close()

	if dotenvErr != nil {
		logger.Warn("no .env file found, using process environment")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, groupCtx := errgroup.WithContext(ctx)

	if _, err := StartHttpServer(config, logger, g, groupCtx); err != nil {
		logger.Error(fmt.Sprintf("starting services failed: %v", err))
		os.Exit(1)
	}

	GracefulShutdown(cancel, logger, g)
}
