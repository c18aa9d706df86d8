// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/closetiq/internal/auth"
	"github.com/hitoshi/closetiq/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// claimsContextKey は検証済みトークンのクレームを格納するためのキー。
	claimsContextKey = contextKey("claims")
	// userIDHolderContextKey は外側のミドルウェアへユーザーIDを渡すためのキー。
	userIDHolderContextKey = contextKey("user_id_holder")
)

// userIDHolder は認証ミドルウェアで特定したユーザーIDを、
// それより外側にあるロギングミドルウェアへ伝える。
type userIDHolder struct {
	userID string
}

func contextWithUserIDHolder(ctx context.Context, h *userIDHolder) context.Context {
	return context.WithValue(ctx, userIDHolderContextKey, h)
}

// UserFinder は認証時のユーザー検索に必要なインターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByFirebaseUID(ctx context.Context, uid string) (*model.User, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// ResolveUser はトークンを検証し、対応する有効なユーザーを返す。
// 失敗時はクライアントに返すmodel.APIError（UNAUTHORIZED）を返す。
// HTTPミドルウェアとWebSocketの接続確立で共用する。
func ResolveUser(ctx context.Context, verifier auth.TokenVerifier, users UserFinder, token string) (*model.User, *auth.Claims, error) {
	if token == "" {
		return nil, nil, model.NewUnauthorizedError("No valid authorization token provided")
	}

	claims, err := verifier.Verify(ctx, token)
	if err != nil {
		slog.Warn("token verification failed", slog.String("error", err.Error()))
		return nil, nil, model.NewUnauthorizedError(auth.UnauthorizedMessage(err))
	}

	user, err := users.FindByFirebaseUID(ctx, claims.UID())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, nil, model.NewUnauthorizedError("User not found or inactive. Please complete registration.")
	}

	if err := users.TouchLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		slog.Warn("failed to update last login",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return user, claims, nil
}

// NewAuthMiddleware はBearerトークンを検証してユーザーを特定するミドルウェアを返す。
// 認証済みユーザーIDとクレームをリクエストコンテキストに注入する。
// 未認証リクエストには401を返す。
func NewAuthMiddleware(verifier auth.TokenVerifier, users UserFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, claims, err := ResolveUser(r.Context(), verifier, users, BearerToken(r))
			if err != nil {
				writeAuthError(w, err)
				return
			}

			ctx := ContextWithUserID(r.Context(), user.ID)
			ctx = ContextWithClaims(ctx, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewTokenOnlyMiddleware はトークンの検証のみを行い、ユーザー検索をしないミドルウェアを返す。
// 初回登録・同期のようにユーザーがまだ存在しないエンドポイントで使う。
func NewTokenOnlyMiddleware(verifier auth.TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				WriteAPIError(w, model.NewUnauthorizedError("No valid authorization token provided"))
				return
			}
			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				WriteAPIError(w, model.NewUnauthorizedError(auth.UnauthorizedMessage(err)))
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*model.APIError); ok {
		WriteAPIError(w, apiErr)
		return
	}
	slog.Error("authentication failed", slog.String("error", err.Error()))
	WriteInternalServerError(w)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if h, ok := ctx.Value(userIDHolderContextKey).(*userIDHolder); ok {
		h.userID = userID
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}

// ClaimsFromContext はリクエストコンテキストから検証済みクレームを取得する。
func ClaimsFromContext(ctx context.Context) (*auth.Claims, error) {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	if !ok || claims == nil {
		return nil, fmt.Errorf("claims not found in context")
	}
	return claims, nil
}

// ContextWithClaims はコンテキストにクレームを注入する。
func ContextWithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}
