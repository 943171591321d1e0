package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/sellerpro/internal/auth"
	"github.com/hitoshi/sellerpro/internal/completion"
	"github.com/hitoshi/sellerpro/internal/config"
	"github.com/hitoshi/sellerpro/internal/database"
	"github.com/hitoshi/sellerpro/internal/entitlement"
	"github.com/hitoshi/sellerpro/internal/generation"
	"github.com/hitoshi/sellerpro/internal/handler"
	"github.com/hitoshi/sellerpro/internal/logger"
	"github.com/hitoshi/sellerpro/internal/metrics"
	"github.com/hitoshi/sellerpro/internal/middleware"
	"github.com/hitoshi/sellerpro/internal/payment"
	"github.com/hitoshi/sellerpro/internal/quota"
	"github.com/hitoshi/sellerpro/internal/repository"
	"github.com/hitoshi/sellerpro/internal/security"
	"github.com/hitoshi/sellerpro/internal/session"
	"github.com/hitoshi/sellerpro/internal/worker/expiry"
)

const (
	// dbConnectTimeout は起動時のDB疎通確認の上限時間。
	dbConnectTimeout = 5 * time.Second
	// demoCompletionDelay はデモモードで生成を模擬する待ち時間。
	demoCompletionDelay = 1500 * time.Millisecond
	// paymentHTTPTimeout は決済ゲートウェイAPI呼び出しの上限時間。
	paymentHTTPTimeout = 30 * time.Second
	// shutdownTimeout はグレースフルシャットダウンの上限時間。
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envファイルと環境変数から設定を読み込む
	if err := config.LoadEnvFile(os.Getenv("ENV_FILE")); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

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
		slog.Bool("demo_mode", cfg.DemoMode()),
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

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Ping(ctx, db, dbConnectTimeout); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mc := metrics.NewCollector(registry)

	// 3. リポジトリの初期化
	profileRepo := repository.NewPostgresProfileRepo(db)
	generationRepo := repository.NewPostgresGenerationRepo(db)
	invoiceSeq := repository.NewPostgresInvoiceSequence(db)

	// 4. ドメインサービスの初期化
	quotaManager := quota.NewManager(profileRepo, log)
	grantor := entitlement.NewGrantor(profileRepo, mc, log)
	paymentService := payment.NewService(grantor, mc, log, buildGateways(cfg, invoiceSeq, log)...)

	completer, err := buildCompletionClient(ctx, cfg)
	if err != nil {
		return err
	}
	generationService := generation.NewService(
		profileRepo, generationRepo, quotaManager, completer,
		security.NewTextSanitizer(), mc, log,
		generation.Config{CompletionTimeout: cfg.CompletionTimeout, DemoMode: cfg.DemoMode()},
	)

	broker := session.NewBroker()
	guard := session.NewGuard(profileRepo, broker, mc, log)

	// 5. 他インスタンスのセッション取得をLISTEN/NOTIFYで受け取る
	listener := session.NewListener(cfg.DatabaseURL, broker, log)
	go func() {
		if err := listener.Run(ctx); err != nil {
			log.Error("session listener failed", slog.String("error", err.Error()))
		}
	}()

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitGenerate), log,
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		TokenVerifier:     auth.NewVerifier(cfg.AuthJWTSecret),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Metrics:           mc,
		Gatherer:          registry,
		HealthChecker:     db,
		Logger:            log,
		GenerationService: generationService,
		PaymentService:    paymentService,
		SessionService:    guard,
		SessionEvents:     broker,
	})

	// 7. HTTPサーバーの起動
	// 書き込みタイムアウトは生成の上限時間より長くする
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.CompletionTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}

// buildCompletionClient はデモモードならモック、そうでなければ設定されたプロバイダのクライアントを返す。
func buildCompletionClient(ctx context.Context, cfg *config.Config) (completion.Client, error) {
	if cfg.DemoMode() {
		slog.Warn("AI_API_KEY is not set; running in demo mode")
		return completion.NewMockClient(demoCompletionDelay), nil
	}
	client, err := completion.New(ctx, completion.Options{
		Provider: cfg.AIProvider,
		APIKey:   cfg.AIAPIKey,
		BaseURL:  cfg.AIBaseURL,
		Model:    cfg.AIModel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}
	return client, nil
}

// buildGateways は認証情報が揃っている決済ゲートウェイだけを返す。
func buildGateways(cfg *config.Config, invoices repository.InvoiceSequence, log *slog.Logger) []payment.Gateway {
	var gateways []payment.Gateway

	if cfg.YooKassaEnabled() {
		gateways = append(gateways, payment.NewYooKassa(payment.YooKassaConfig{
			ShopID:    cfg.YooKassaShopID,
			SecretKey: cfg.YooKassaSecretKey,
			APIURL:    cfg.YooKassaAPIURL,
			ReturnURL: cfg.BaseURL + "/app?payment_check=true",
		}, &http.Client{Timeout: paymentHTTPTimeout}, log))
	} else {
		log.Warn("YooKassa credentials are not set; gateway disabled")
	}

	if cfg.RobokassaEnabled() {
		gateways = append(gateways, payment.NewRobokassa(payment.RobokassaConfig{
			MerchantLogin: cfg.RobokassaMerchantLogin,
			Password1:     cfg.RobokassaPassword1,
			Password2:     cfg.RobokassaPassword2,
			TestMode:      cfg.RobokassaTestMode,
		}, invoices, log))
	} else {
		log.Warn("Robokassa credentials are not set; gateway disabled")
	}

	return gateways
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れプレミアムの失効ジョブを定期実行する。
// ctxがキャンセルされるとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Ping(ctx, db, dbConnectTimeout); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established (worker)")

	profileRepo := repository.NewPostgresProfileRepo(db)
	sweep := expiry.NewSweepJob(profileRepo, metrics.Nop{}, log)

	log.Info("worker starting", slog.Duration("expiry_sweep_interval", cfg.ExpirySweepInterval))

	// ctxがキャンセルされるまでブロッキング
	sweep.Start(ctx, cfg.ExpirySweepInterval)

	log.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
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
