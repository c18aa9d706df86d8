package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultFirebaseCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"
	firebaseIssuerPrefix    = "https://securetoken.google.com/"
	defaultCertsMaxAge      = time.Hour
)

// FirebaseConfig はFirebase IDトークン検証の設定。
type FirebaseConfig struct {
	ProjectID string

	// テスト用にオーバーライド可能
	CertsURL   string
	HTTPClient *http.Client
}

// FirebaseVerifier はFirebase IDトークン（RS256）を検証する。
// 署名鍵はGoogleの公開x509証明書から取得し、Cache-Controlのmax-ageに従ってキャッシュする。
type FirebaseVerifier struct {
	config FirebaseConfig
	now    func() time.Time

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time

	// 同時に期限切れを検知したリクエストの取得を1回にまとめる
	refreshMu sync.Mutex
}

// NewFirebaseVerifier はFirebaseVerifierを生成する。
func NewFirebaseVerifier(config FirebaseConfig) *FirebaseVerifier {
	if config.CertsURL == "" {
		config.CertsURL = defaultFirebaseCertsURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &FirebaseVerifier{config: config, now: time.Now}
}

// Verify はトークンの署名・aud・iss・exp・subを検証する。
func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("missing kid header")
		}
		return v.publicKey(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.config.ProjectID),
		jwt.WithIssuer(firebaseIssuerPrefix+v.config.ProjectID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, classify(err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return claims, nil
}

// publicKey はkidに対応する公開鍵を返す。キャッシュが期限切れなら取り直す。
// キャッシュが有効な間は未知のkidでも取り直さない。
func (v *FirebaseVerifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, fresh := v.cached(kid); fresh {
		return lookupKey(key, kid)
	}

	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()
	// 待っている間に他のリクエストが取り直していればそれを使う
	if key, fresh := v.cached(kid); fresh {
		return lookupKey(key, kid)
	}
	if err := v.refresh(ctx); err != nil {
		return nil, err
	}
	key, _ := v.cached(kid)
	return lookupKey(key, kid)
}

func (v *FirebaseVerifier) cached(kid string) (*rsa.PublicKey, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.keys[kid], v.keys != nil && v.now().Before(v.expiresAt)
}

func lookupKey(key *rsa.PublicKey, kid string) (*rsa.PublicKey, error) {
	if key == nil {
		return nil, fmt.Errorf("unknown signing key: %s", kid)
	}
	return key, nil
}

// refresh は証明書一覧を取得してキャッシュを置き換える。
func (v *FirebaseVerifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.config.CertsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create certs request: %w", err)
	}

	resp, err := v.config.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("certs request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read certs response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("certs fetch failed with status %d", resp.StatusCode)
	}

	var certs map[string]string
	if err := json.Unmarshal(body, &certs); err != nil {
		return fmt.Errorf("failed to parse certs response: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, pem := range certs {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return fmt.Errorf("failed to parse cert %s: %w", kid, err)
		}
		keys[kid] = key
	}

	v.mu.Lock()
	v.keys = keys
	v.expiresAt = v.now().Add(maxAge(resp.Header.Get("Cache-Control")))
	v.mu.Unlock()
	return nil
}

// maxAge はCache-Controlヘッダーからmax-ageを取り出す。なければ既定値。
func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if sec, err := strconv.Atoi(value); err == nil && sec > 0 {
			return time.Duration(sec) * time.Second
		}
	}
	return defaultCertsMaxAge
}

// compile-time interface check
var _ TokenVerifier = (*FirebaseVerifier)(nil)
