package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/closetiq/internal/auth"
	"github.com/hitoshi/closetiq/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	Verifier           auth.TokenVerifier
	UserFinder         middleware.UserFinder
	RateLimiter        *middleware.RateLimiter
	Metrics            middleware.HTTPRequestRecorder
	CORSAllowedOrigins []string
	HSTS               bool

	// 認証・ユーザー
	AuthService AuthServiceInterface
	UserService UserServiceInterface

	// ワードローブ・衣類・コーディネート
	WardrobeService WardrobeServiceInterface
	ClothingService ClothingServiceInterface
	OutfitService   OutfitServiceInterface

	// チャット
	ChatService ChatServiceInterface
	Realtime    http.Handler

	// 外部サービス
	AIEngine AIEngine
	Weather  WeatherServiceInterface

	// データ管理・監視
	UserDataService UserDataServiceInterface
	Health          *HealthHandler
	MetricsHandler  http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → SecurityHeaders → CORS → Logging → Metrics
//
// /api配下には一般レート制限をかけ、認証・アップロード・AIの各ルートには
// それぞれのグループの制限を重ねる。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))

	authHandler := NewAuthHandler(deps.AuthService, deps.UserService)
	userHandler := NewUserHandler(deps.UserService)
	wardrobeHandler := NewWardrobeHandler(deps.WardrobeService)
	clothingHandler := NewClothingHandler(deps.ClothingService)
	outfitHandler := NewOutfitHandler(deps.OutfitService)
	chatHandler := NewChatHandler(deps.ChatService)
	aiHandler := NewAIHandler(deps.AIEngine)
	weatherHandler := NewWeatherHandler(deps.Weather)
	databaseHandler := NewDatabaseHandler(deps.UserDataService)

	requireUser := middleware.NewAuthMiddleware(deps.Verifier, deps.UserFinder)
	requireToken := middleware.NewTokenOnlyMiddleware(deps.Verifier)
	limit := deps.RateLimiter.Middleware

	// --- 認証不要のルート ---
	r.Get("/health", deps.Health.Health)
	r.Get("/health/database", deps.Health.Database)
	r.Get("/health/firebase", deps.Health.Firebase)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	if deps.Realtime != nil {
		r.Handle("/ws/chat", deps.Realtime)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(limit(middleware.GroupGeneral))

		// 認証（初回登録と同期はユーザー未作成でも通す）
		r.Route("/auth", func(r chi.Router) {
			r.Use(limit(middleware.GroupAuth))
			r.With(requireToken).Post("/register", authHandler.Register)
			r.With(requireToken).Post("/sync", authHandler.Sync)

			r.Group(func(r chi.Router) {
				r.Use(requireUser)
				r.Post("/validate", authHandler.Validate)
				r.Get("/me", authHandler.Me)
				r.Put("/profile", authHandler.UpdateProfile)
				r.Delete("/account", authHandler.DeleteAccount)
			})
		})

		// AIエンジンのプロキシ
		r.Group(func(r chi.Router) {
			r.Use(limit(middleware.GroupAI))
			r.With(limit(middleware.GroupUpload)).Post("/classify", aiHandler.Classify)
			r.With(limit(middleware.GroupUpload)).Post("/classify/batch", aiHandler.ClassifyBatch)
			r.Post("/similarity/find", aiHandler.FindSimilar)
			r.Post("/compatibility/check", aiHandler.CheckCompatibility)
			r.Post("/attributes/analyze", aiHandler.AnalyzeAttributes)
			r.Post("/recommendations/style", aiHandler.StyleRecommendations)
			r.Post("/knowledge/query", aiHandler.QueryKnowledge)
		})

		// 天気
		r.Route("/weather", func(r chi.Router) {
			r.Get("/current", weatherHandler.Current)
			r.Get("/forecast", weatherHandler.Forecast)
			r.Get("/city", weatherHandler.City)
			r.Post("/recommendations", weatherHandler.Recommendations)
		})

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Route("/users", func(r chi.Router) {
				r.Get("/profile", userHandler.Profile)
				r.Put("/profile", userHandler.UpdateProfile)
				r.Delete("/profile", userHandler.Deactivate)
				r.With(limit(middleware.GroupUpload)).Post("/profile/picture", userHandler.UploadPicture)
				r.Get("/settings", userHandler.Settings)
				r.Put("/settings", userHandler.UpdateSettings)
				r.Get("/stats", userHandler.Stats)
			})

			r.Route("/wardrobes", func(r chi.Router) {
				r.Post("/", wardrobeHandler.Create)
				r.Get("/", wardrobeHandler.List)
				r.Get("/shared", wardrobeHandler.ListShared)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", wardrobeHandler.Get)
					r.Put("/", wardrobeHandler.Update)
					r.Delete("/", wardrobeHandler.Delete)
					r.Post("/share", wardrobeHandler.Share)
				})
			})

			r.Route("/clothing", func(r chi.Router) {
				r.With(limit(middleware.GroupUpload)).Post("/", clothingHandler.Create)
				r.Get("/", clothingHandler.List)
				r.Patch("/bulk-update", clothingHandler.BulkUpdate)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", clothingHandler.Get)
					r.Put("/", clothingHandler.Update)
					r.Delete("/", clothingHandler.Delete)
					r.Post("/classify", clothingHandler.Classify)
					r.Get("/similar", clothingHandler.Similar)
					r.Post("/favorite", clothingHandler.ToggleFavorite)
					r.Post("/wear", clothingHandler.RecordWear)
				})
			})

			r.Route("/outfits", func(r chi.Router) {
				r.With(limit(middleware.GroupAI)).Post("/generate", outfitHandler.Generate)
				r.Post("/", outfitHandler.Save)
				r.Get("/", outfitHandler.List)
				r.Get("/recommendations", outfitHandler.Recommendations)
				r.Post("/recommendations/{id}/feedback", outfitHandler.Feedback)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", outfitHandler.Get)
					r.Put("/", outfitHandler.Update)
					r.Delete("/", outfitHandler.Delete)
					r.Post("/rate", outfitHandler.Rate)
					r.Post("/share", outfitHandler.Share)
					r.Post("/wear", outfitHandler.RecordWear)
				})
			})

			r.Route("/chat/sessions", func(r chi.Router) {
				r.Get("/", chatHandler.List)
				r.Post("/", chatHandler.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", chatHandler.Get)
					r.Delete("/", chatHandler.Delete)
					r.Post("/messages", chatHandler.SendMessage)
					r.Get("/history", chatHandler.History)
				})
			})

			r.Route("/database", func(r chi.Router) {
				r.Get("/overview", databaseHandler.Overview)
				r.Get("/stats/detailed", databaseHandler.DetailedStats)
				r.Get("/export", databaseHandler.Export)
				r.Get("/health", databaseHandler.Health)
			})
		})

		r.NotFound(notFound)
		r.MethodNotAllowed(notFound)
	})

	return r
}
