// Package app はプロセスの起動・依存関係のワイヤリング・シャットダウンを担う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/devicehub/internal/auth"
	"github.com/hitoshi/devicehub/internal/billing"
	"github.com/hitoshi/devicehub/internal/config"
	"github.com/hitoshi/devicehub/internal/database"
	"github.com/hitoshi/devicehub/internal/device"
	"github.com/hitoshi/devicehub/internal/handler"
	"github.com/hitoshi/devicehub/internal/logger"
	"github.com/hitoshi/devicehub/internal/metrics"
	"github.com/hitoshi/devicehub/internal/middleware"
	"github.com/hitoshi/devicehub/internal/model"
	"github.com/hitoshi/devicehub/internal/notify"
	"github.com/hitoshi/devicehub/internal/repository"
	"github.com/hitoshi/devicehub/internal/subscription"
	"github.com/hitoshi/devicehub/internal/webhook"
	"github.com/hitoshi/devicehub/internal/worker/cleanup"
)

const (
	dbPingTimeout   = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, slog.LevelInfo)

	if err := config.LoadDotEnv(""); err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はDBを開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")
	return db, nil
}

// server はserveモードで起動する構成要素をまとめたもの。
type server struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
}

// newServer は全依存関係をワイヤリングし、HTTPハンドラーを構築する。
func newServer(cfg *config.Config, db *sql.DB, log *slog.Logger) *server {
	// リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	deviceRepo := repository.NewPostgresDeviceRepo(db)
	eventRepo := repository.NewPostgresWebhookEventRepo(db)
	productRepo := repository.NewPostgresProductRepo(db)

	// メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 認証
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	verifier := auth.NewVerifier(cfg.JWTSecret)
	accountService := auth.NewAccountService(userRepo, issuer)

	// 課金
	billingClient := billing.NewStripeClient(billing.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		Tolerance:     cfg.WebhookTolerance,
	})
	subService := subscription.NewService(userRepo, billingClient, subscription.CheckoutConfig{
		PriceIDs: map[model.Plan]string{
			model.PlanBasic:   cfg.StripePriceBasic,
			model.PlanPremium: cfg.StripePricePremium,
		},
		SuccessURL: cfg.CheckoutSuccessURL,
		CancelURL:  cfg.CheckoutCancelURL,
	})
	reconciler := webhook.NewReconciler(billingClient, userRepo, eventRepo, webhook.PlanMapping{
		PriceIDs: cfg.PlanPriceIDs(),
		Amounts:  cfg.PlanPriceAmounts,
	}, collector)

	// デバイス
	deviceService := device.NewService(userRepo, deviceRepo, notify.NewLogPublisher(log), collector)

	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitDeviceReg),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Verifier:          verifier,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RequestTimeout:    cfg.RequestTimeout,
		RateLimiter:       rateLimiter,
		Logger:            log,
		Collector:         collector,

		DB:             db,
		MetricsHandler: metrics.Handler(registry),

		AccountService:      accountService,
		DeviceService:       deviceService,
		SubscriptionService: subService,
		WebhookReconciler:   reconciler,
		Products:            productRepo,
	})

	return &server{handler: router, rateLimiter: rateLimiter}
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	srv := newServer(cfg, db, slog.Default())
	defer srv.rateLimiter.Stop()

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// Webhook台帳の保持期間切れエントリを定期削除し、ctxのキャンセルで終了する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	job := cleanup.NewCleanupJob(db, slog.Default(), metrics.NewCollector(registry))
	job.RetentionDays = cfg.WebhookRetentionDays

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Int("retention_days", cfg.WebhookRetentionDays),
	)

	job.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はすべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はdistroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%s/health", port))
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
