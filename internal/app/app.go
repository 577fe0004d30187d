package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/reserv/internal/auth"
	"github.com/hitoshi/reserv/internal/cache"
	"github.com/hitoshi/reserv/internal/config"
	"github.com/hitoshi/reserv/internal/database"
	"github.com/hitoshi/reserv/internal/handler"
	"github.com/hitoshi/reserv/internal/logger"
	"github.com/hitoshi/reserv/internal/metrics"
	"github.com/hitoshi/reserv/internal/middleware"
	"github.com/hitoshi/reserv/internal/payment"
	"github.com/hitoshi/reserv/internal/repository"
	"github.com/hitoshi/reserv/internal/rsvp"
	"github.com/hitoshi/reserv/internal/security"
	"github.com/hitoshi/reserv/internal/session"
	"github.com/hitoshi/reserv/internal/storage"
	"github.com/hitoshi/reserv/internal/worker/cleanup"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 開発環境向けの.env読み込み（存在しなければ何もしない）
	_ = godotenv.Load()

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
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
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	authSessionRepo := repository.NewPostgresAuthSessionRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	participantRepo := repository.NewPostgresParticipantRepo(db)
	proofRepo := repository.NewPostgresPaymentProofRepo(db)

	// 3. セキュリティ・計測サービスの初期化
	sanitizer := security.NewInputSanitizer()
	ssrfGuard := security.NewSSRFGuard()
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. ページキャッシュ再検証（Redis未設定時はno-op）
	var revalidator cache.Revalidator
	if cfg.RedisURL != "" {
		redisClient, err := cache.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to configure redis: %w", err)
		}
		defer redisClient.Close()
		revalidator = cache.NewRedisRevalidator(redisClient)
		slog.Info("page revalidation enabled (redis)")
	} else {
		revalidator = cache.NewNoopRevalidator()
		slog.Info("page revalidation disabled (redis not configured)")
	}

	// 5. 支払い証明ストレージ（未設定時はアップロード機能を無効化）
	var uploader storage.Uploader
	if cfg.StorageConfigured() {
		uploader = storage.NewS3Uploader(storage.S3Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			AccessKeyID:   cfg.S3AccessKeyID,
			SecretKey:     cfg.S3SecretKey,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
		slog.Info("payment proof storage enabled", slog.String("bucket", cfg.S3Bucket))
	} else {
		slog.Info("payment proof storage disabled (S3 not configured)")
	}

	// 6. ドメインサービスの初期化
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, authSessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	rsvpService := rsvp.NewService(sessionRepo, participantRepo, sanitizer, revalidator, collector)
	sessionService := session.NewService(sessionRepo, participantRepo, sanitizer, revalidator)
	paymentService := payment.NewService(
		proofRepo, sessionRepo, participantRepo, uploader,
		payment.NewStubOCRClient(), ssrfGuard, collector,
		payment.ServiceConfig{
			FetchTimeout: cfg.OCRFetchTimeout,
			MaxImageSize: cfg.OCRMaxImageSize,
		},
	)

	// 7. ルーターの構築
	rateLimiterCfg := middleware.RateLimiterConfig{
		PublicRate:      rate.Limit(float64(cfg.RateLimitPublic) / 60.0),
		PublicBurst:     cfg.RateLimitPublic,
		HostRate:        rate.Limit(float64(cfg.RateLimitHost) / 60.0),
		HostBurst:       cfg.RateLimitHost,
		CleanupInterval: 5 * time.Minute,
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		SessionFinder:     authSessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Collector:         collector,
		Gatherer:          registry,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		RSVPService:   rsvpService,
		SessionReader: sessionService,
		RSVPConfig: handler.RSVPHandlerConfig{
			GuestKeyPersist: cfg.GuestKeyPersist,
			Cookie: handler.CookieConfig{
				Secure: cfg.CookieSecure,
				Domain: cfg.CookieDomain,
			},
		},

		SessionService: sessionService,
		PaymentService: paymentService,
		UserFinder:     userRepo,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
	}
	if uploader != nil {
		deps.ProofUploader = paymentService
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れログインセッションの削除と終了済みセッションの自動完了を
// 一定間隔で実行する。SIGINTまたはSIGTERMシグナルで停止する。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. クリーンアップジョブの初期化
	authSessionRepo := repository.NewPostgresAuthSessionRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	job := cleanup.NewJob(authSessionRepo, sessionRepo, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	// クリーンアップループをメインgoroutineで実行（ブロッキング）
	job.RunLoop(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
