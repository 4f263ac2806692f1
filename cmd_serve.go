package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Bharath5252/Segmentation-masks-via-SAM2/config"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/handler"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/middleware"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/service"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/utils"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "path to a YAML config file (default ./config.yaml if present)")
	rootCmd.AddCommand(serveCmd)
}

func loadConfig() (*config.Config, error) {
	if serveConfigPath == "" {
		return config.New(), nil
	}
	return config.Load(serveConfigPath)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// 初始化日志
	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer utils.Sync()

	utils.Logger.Info("starting segpaint server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("git_branch", GitBranch))

	for _, dir := range []string{cfg.Upload.UploadDir, cfg.Artifact.Dir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	if !service.SupportsFormat(cfg.Artifact.Format) {
		return fmt.Errorf("artifact format %q is not compiled in", cfg.Artifact.Format)
	}
	artifacts, err := service.NewArtifactStoreFor(cfg.Artifact.Dir, cfg.Artifact.Format)
	if err != nil {
		return err
	}

	sessions, closeSessions := openSessionStore(cmd.Context(), cfg)
	defer closeSessions()

	segmenter := service.NewRemoteSegmenter(cfg.Segmentation.Endpoint, cfg.Segmentation.Token, &http.Client{})
	if cfg.Segmentation.Endpoint == "" {
		utils.Logger.Warn("segmentation endpoint not configured, serving fallback masks only")
	}
	gateway := service.NewGateway(segmenter, service.NewSynthesizer(), service.GatewayOptionsFrom(&cfg.Segmentation))

	workspace := service.NewWorkspace(
		service.NewUploadStore(cfg.Upload.UploadDir),
		sessions,
		artifacts,
		gateway,
		service.WorkspaceOptionsFrom(cfg),
	)

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.Server.AllowOrigins))
	r.MaxMultipartMemory = cfg.Upload.MaxSize

	handler.NewSegmentHandler(workspace, cfg.Upload.MaxSize, buildInfo()).Register(r)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	utils.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openSessionStore returns the configured store. An unreachable redis
// degrades to the in-memory store instead of failing startup.
func openSessionStore(ctx context.Context, cfg *config.Config) (service.SessionStore, func()) {
	if cfg.Store.Backend != "redis" {
		return service.NewMemorySessionStore(), func() {}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	store := service.NewRedisSessionStore(&cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		utils.Logger.Warn("redis connection failed, using in-memory sessions",
			zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		_ = store.Close()
		return service.NewMemorySessionStore(), func() {}
	}

	utils.Logger.Info("redis connected successfully", zap.String("addr", cfg.Redis.Addr))
	return store, func() {
		if err := store.Close(); err != nil {
			utils.Logger.Warn("close redis", zap.Error(err))
		}
	}
}
