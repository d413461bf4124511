package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/fileguard/internal/domain/policy"
)

// testKeyID — идентификатор ключа для тестов.
const testKeyID = "test-key-fg"

// testIssuer — issuer тестовых JWT.
const testIssuer = "https://idp.test/realms/fileguard"

// mockRoleProvider — мок для RoleProvider поверх таблицы profiles.
type mockRoleProvider struct {
	roles  map[string]string
	banned map[string]bool
	err    error
}

func (m *mockRoleProvider) ResolveRole(_ context.Context, userID string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	role, ok := m.roles[userID]
	if !ok {
		// Профиль не заведён — guest
		return policy.RoleGuest, false, nil
	}
	return role, m.banned[userID], nil
}

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	nB64 := base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
	eB64 := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())

	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   nB64,
				"e":   eB64,
			},
		},
	}

	data, _ := json.Marshal(jwks)
	return data
}

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestJWTAuth создаёт JWTAuth с mock JWKS и заданным RoleProvider.
func newTestJWTAuth(t *testing.T, key *rsa.PrivateKey, roleProvider RoleProvider) *JWTAuth {
	t.Helper()
	jwksJSON := buildJWKSetJSON(&key.PublicKey, testKeyID)
	kf, err := keyfunc.NewJWKSetJSON(jwksJSON)
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}

	return NewJWTAuthWithKeyfunc(kf, testIssuer, roleProvider, testLogger())
}

// generateToken генерирует подписанный JWT для тестов.
func generateToken(t *testing.T, key *rsa.PrivateKey, sub, username, email string, expired bool) string {
	t.Helper()

	exp := time.Now().Add(time.Hour)
	if expired {
		exp = time.Now().Add(-time.Hour)
	}

	claims := jwt.MapClaims{
		"sub":                sub,
		"preferred_username": username,
		"email":              email,
		"iss":                testIssuer,
		"exp":                jwt.NewNumericDate(exp),
		"nbf":                jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		"iat":                jwt.NewNumericDate(time.Now()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return tokenStr
}

// --- Тесты JWT Middleware ---

// TestJWTAuth_ValidToken — валидный JWT, роль из RoleProvider.
func TestJWTAuth_ValidToken(t *testing.T) {
	key := generateTestKey(t)
	provider := &mockRoleProvider{
		roles: map[string]string{"user-123": policy.RoleAdmin},
	}
	auth := newTestJWTAuth(t, key, provider)

	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			t.Fatal("claims не найдены в контексте")
		}
		if claims.Subject != "user-123" {
			t.Errorf("ожидался sub=user-123, получен %s", claims.Subject)
		}
		if claims.PreferredUsername != "ivanov" {
			t.Errorf("ожидался username=ivanov, получен %s", claims.PreferredUsername)
		}
		if claims.Email != "ivanov@test.com" {
			t.Errorf("ожидался email=ivanov@test.com, получен %s", claims.Email)
		}
		if claims.Role != policy.RoleAdmin {
			t.Errorf("ожидалась роль admin, получена %s", claims.Role)
		}
		if claims.Banned {
			t.Error("пользователь не должен быть заблокирован")
		}
		w.WriteHeader(http.StatusOK)
	}))

	tokenStr := generateToken(t, key, "user-123", "ivanov", "ivanov@test.com", false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/folders", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d: %s", rec.Code, rec.Body.String())
	}
}

// TestJWTAuth_UnknownProfileIsGuest — субъект без профиля получает роль guest.
func TestJWTAuth_UnknownProfileIsGuest(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key, &mockRoleProvider{})

	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			t.Fatal("claims не найдены в контексте")
		}
		if claims.Role != policy.RoleGuest {
			t.Errorf("ожидалась роль guest, получена %s", claims.Role)
		}
		w.WriteHeader(http.StatusOK)
	}))

	tokenStr := generateToken(t, key, "stranger-1", "stranger", "s@test.com", false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/folders", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d", rec.Code)
	}
}

// TestJWTAuth_BannedUser — заблокированный пользователь получает 403 на любой запрос.
func TestJWTAuth_BannedUser(t *testing.T) {
	key := generateTestKey(t)
	provider := &mockRoleProvider{
		roles:  map[string]string{"user-666": policy.RoleUser},
		banned: map[string]bool{"user-666": true},
	}
	auth := newTestJWTAuth(t, key, provider)

	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("handler не должен вызываться для заблокированного пользователя")
		w.WriteHeader(http.StatusOK)
	}))

	tokenStr := generateToken(t, key, "user-666", "banned", "b@test.com", false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/folders", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("ожидался статус 403, получен %d", rec.Code)
	}
}

// TestJWTAuth_RejectedTokens — таблица невалидных запросов.
func TestJWTAuth_RejectedTokens(t *testing.T) {
	key := generateTestKey(t)
	otherKey := generateTestKey(t)
	auth := newTestJWTAuth(t, key, &mockRoleProvider{})

	tests := []struct {
		name       string
		authHeader string
	}{
		{
			name:       "отсутствует заголовок Authorization",
			authHeader: "",
		},
		{
			name:       "неверный формат заголовка",
			authHeader: "Basic dXNlcjpwYXNz",
		},
		{
			name:       "пустой Bearer token",
			authHeader: "Bearer ",
		},
		{
			name:       "мусор вместо токена",
			authHeader: "Bearer not-a-jwt",
		},
		{
			name:       "просроченный токен",
			authHeader: "Bearer " + generateToken(t, key, "user-123", "ivanov", "i@test.com", true),
		},
		{
			name:       "токен подписан чужим ключом",
			authHeader: "Bearer " + generateToken(t, otherKey, "user-123", "ivanov", "i@test.com", false),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				t.Error("handler не должен вызываться")
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/folders", http.NoBody)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("ожидался статус 401, получен %d", rec.Code)
			}
		})
	}
}

// TestJWTAuth_WrongIssuer — токен с чужим issuer отклоняется.
func TestJWTAuth_WrongIssuer(t *testing.T) {
	key := generateTestKey(t)
	jwksJSON := buildJWKSetJSON(&key.PublicKey, testKeyID)
	kf, err := keyfunc.NewJWKSetJSON(jwksJSON)
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}
	auth := NewJWTAuthWithKeyfunc(kf, "https://other-idp.test/realms/other", &mockRoleProvider{}, testLogger())

	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("handler не должен вызываться")
		w.WriteHeader(http.StatusOK)
	}))

	tokenStr := generateToken(t, key, "user-123", "ivanov", "i@test.com", false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/folders", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// --- Тесты RequireRole ---

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		claims     *AuthClaims
		required   []string
		wantStatus int
	}{
		{
			name:       "admin проходит admin-guard",
			claims:     &AuthClaims{Subject: "a1", Role: policy.RoleAdmin},
			required:   []string{policy.RoleAdmin},
			wantStatus: http.StatusOK,
		},
		{
			name:       "user не проходит admin-guard",
			claims:     &AuthClaims{Subject: "u1", Role: policy.RoleUser},
			required:   []string{policy.RoleAdmin},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "guest проходит guard с перечислением ролей",
			claims:     &AuthClaims{Subject: "g1", Role: policy.RoleGuest},
			required:   []string{policy.RoleUser, policy.RoleGuest},
			wantStatus: http.StatusOK,
		},
		{
			name:       "без claims в контексте",
			claims:     nil,
			required:   []string{policy.RoleAdmin},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireRole(tt.required...)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/users", http.NoBody)
			if tt.claims != nil {
				ctx := context.WithValue(req.Context(), ContextKeyClaims, tt.claims)
				req = req.WithContext(ctx)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("ожидался статус %d, получен %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

// TestScope — Scope формируется из claims.
func TestScope(t *testing.T) {
	claims := &AuthClaims{Subject: "u1", Role: policy.RoleUser}
	scope := claims.Scope()
	if scope.ActorID != "u1" || scope.Role != policy.RoleUser {
		t.Errorf("неверный scope: %+v", scope)
	}
}
