// Package app はコマンドライン引数に応じてAPIサーバー、ワーカー、マイグレーションを起動する。
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/closetiq/internal/aiclient"
	"github.com/hitoshi/closetiq/internal/auth"
	"github.com/hitoshi/closetiq/internal/chat"
	"github.com/hitoshi/closetiq/internal/clothing"
	"github.com/hitoshi/closetiq/internal/config"
	"github.com/hitoshi/closetiq/internal/database"
	"github.com/hitoshi/closetiq/internal/handler"
	"github.com/hitoshi/closetiq/internal/logger"
	"github.com/hitoshi/closetiq/internal/metrics"
	"github.com/hitoshi/closetiq/internal/middleware"
	"github.com/hitoshi/closetiq/internal/outfit"
	"github.com/hitoshi/closetiq/internal/realtime"
	"github.com/hitoshi/closetiq/internal/repository"
	"github.com/hitoshi/closetiq/internal/security"
	"github.com/hitoshi/closetiq/internal/storage"
	"github.com/hitoshi/closetiq/internal/user"
	"github.com/hitoshi/closetiq/internal/userdata"
	"github.com/hitoshi/closetiq/internal/wardrobe"
	"github.com/hitoshi/closetiq/internal/weather"
	"github.com/hitoshi/closetiq/internal/worker/cleanup"
)

// rateLimitCleanupInterval はレート制限テーブルの期限切れエントリを掃除する間隔。
const rateLimitCleanupInterval = time.Minute

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. .envで指定されたログレベルを反映する
	logger.SetupDefault(w, cfg.LogLevel)
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
			port = "5000"
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
		slog.String("environment", cfg.Environment),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// newVerifier はFirebaseのプロジェクトIDがあればFirebase検証、なければHMAC検証を返す。
// 2つ目の戻り値はヘルスチェックに表示する検証方式。
func newVerifier(cfg *config.Config) (auth.TokenVerifier, string) {
	if cfg.FirebaseProjectID != "" {
		return auth.NewFirebaseVerifier(auth.FirebaseConfig{ProjectID: cfg.FirebaseProjectID}), "firebase"
	}
	return auth.NewHMACVerifier(cfg.AuthHMACSecret), "hmac"
}

// newImageStore はバケットが設定されていればS3、なければ保存不可のストアを返す。
func newImageStore(ctx context.Context, cfg *config.Config) (storage.ImageStore, error) {
	if cfg.S3Bucket == "" {
		slog.Warn("S3_BUCKET is not set; image uploads are disabled")
		return storage.Disabled{}, nil
	}
	return storage.NewS3Store(ctx, storage.Config{
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
		PublicBaseURL: cfg.S3PublicBaseURL,
		PresignTTL:    cfg.S3PresignTTL,
	})
}

// newResponder はOpenAIのAPIキーがあればOpenAI、なければ定型文の返答器を返す。
func newResponder(cfg *config.Config) chat.Responder {
	if cfg.OpenAIAPIKey == "" {
		return chat.NewCannedResponder()
	}
	return chat.NewOpenAIResponder(cfg.OpenAIAPIKey, cfg.OpenAIModel)
}

// newRegistry はGoランタイムとプロセスのメトリクスを含むレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()
	log := slog.Default()

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	wardrobeRepo := repository.NewPostgresWardrobeRepo(db)
	clothingRepo := repository.NewPostgresClothingRepo(db)
	outfitRepo := repository.NewPostgresOutfitRepo(db)
	recommendationRepo := repository.NewPostgresRecommendationRepo(db)
	chatRepo := repository.NewPostgresChatRepo(db)
	statsRepo := repository.NewPostgresStatsRepo(db)

	// 3. メトリクスと外部サービスクライアントの初期化
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	verifier, verifierMode := newVerifier(cfg)
	images, err := newImageStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize image storage: %w", err)
	}
	engine := aiclient.NewClient(cfg.AIBackendURL, cfg.AITimeout, log, collector)
	weatherClient := weather.NewClient(&http.Client{Timeout: 10 * time.Second}, log,
		cfg.OpenWeatherBaseURL, cfg.OpenWeatherAPIKey)
	if !weatherClient.Configured() {
		slog.Warn("OPENWEATHER_API_KEY is not set; weather endpoints will return 503")
	}

	// 4. ドメインサービスの初期化
	authService := auth.NewService(userRepo)
	userService := user.NewService(userRepo, wardrobeRepo, clothingRepo, images)
	wardrobeService := wardrobe.NewService(wardrobeRepo, clothingRepo, userRepo, images)
	clothingService := clothing.NewService(clothingRepo, wardrobeRepo, images, engine, security.NewImageFetcher())
	outfitService := outfit.NewService(outfitRepo, clothingRepo, recommendationRepo, engine,
		cfg.FrontendURL, cfg.RecommendationTTL)
	chatService := chat.NewService(chatRepo, newResponder(cfg))
	userDataService := userdata.NewService(statsRepo, userRepo, wardrobeRepo, clothingRepo, outfitRepo, chatRepo)

	// 5. レート制限とリアルタイムチャネルの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.DefaultRateLimitGroups(cfg.RateLimitGeneral, cfg.RateLimitAuth, cfg.RateLimitUpload, cfg.RateLimitAI),
		rateLimitCleanupInterval, collector,
	)
	defer rateLimiter.Stop()

	hub := realtime.NewHub()
	ws := realtime.NewHandler(hub, chatService, verifier, userRepo, cfg.CORSAllowedOrigins, log)

	// 6. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             log,
		Verifier:           verifier,
		UserFinder:         userRepo,
		RateLimiter:        rateLimiter,
		Metrics:            collector,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		HSTS:               cfg.Environment == "production",

		AuthService: authService,
		UserService: userService,

		WardrobeService: wardrobeService,
		ClothingService: clothingService,
		OutfitService:   outfitService,

		ChatService: chatService,
		Realtime:    ws,

		AIEngine: engine,
		Weather:  weatherClient,

		UserDataService: userDataService,
		Health:          handler.NewHealthHandler(userDataService, verifierMode, cfg.Environment),
		MetricsHandler:  metrics.Handler(reg),
	})

	// 7. HTTPサーバーの起動
	// バッチ分類は60秒かかり得るため、書き込みタイムアウトはそれより長くする
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return serveUntilSignal(server, "API server")
}

// serveUntilSignal はサーバーを起動し、SIGINTまたはSIGTERMで停止する。
func serveUntilSignal(server *http.Server, name string) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("%s listen error: %w", name, err)
	case <-stop:
	}
	slog.Info("shutting down " + name + "...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れおすすめの削除をスケジュール実行し、/healthと/metricsを公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
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
	reg := newRegistry()
	collector := metrics.NewCollector(reg)
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default(), collector)

	// 3. 監視用エンドポイント
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker metrics server error", slog.String("error", err.Error()))
		}
	}()

	slog.Info("worker starting", slog.String("cleanup_schedule", cfg.CleanupSchedule))

	// スケジューラをメインgoroutineで実行（ブロッキング）
	runErr := cleanupJob.Start(ctx, cfg.CleanupSchedule)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("worker metrics server shutdown failed", slog.String("error", err.Error()))
	}

	if runErr != nil {
		return fmt.Errorf("cleanup scheduler failed: %w", runErr)
	}
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
