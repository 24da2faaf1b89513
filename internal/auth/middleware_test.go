package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func newRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", mw, func(c *gin.Context) {
		subject, _ := GetSubject(c.Request.Context())
		c.String(http.StatusOK, subject)
	})
	return router
}

func call(router *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func validClaims(role string) Claims {
	return Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops-1",
			Audience:  jwt.ClaimStrings{"waste-sort"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestJWTMiddlewareAcceptsOperator(t *testing.T) {
	router := newRouter(JWTMiddleware(testSecret, "waste-sort", OperatorRole))

	resp := call(router, signToken(t, testSecret, validClaims(OperatorRole)))
	if resp.Code != http.StatusOK || resp.Body.String() != "ops-1" {
		t.Fatalf("unexpected response: %d %s", resp.Code, resp.Body.String())
	}
}

func TestJWTMiddlewareRejections(t *testing.T) {
	router := newRouter(JWTMiddleware(testSecret, "waste-sort", OperatorRole))

	expired := validClaims(OperatorRole)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	wrongAudience := validClaims(OperatorRole)
	wrongAudience.Audience = jwt.ClaimStrings{"other"}
	noSubject := validClaims(OperatorRole)
	noSubject.Subject = ""

	cases := map[string]struct {
		token string
		want  int
	}{
		"missing header": {"", http.StatusUnauthorized},
		"bad signature":  {signToken(t, "other-secret", validClaims(OperatorRole)), http.StatusUnauthorized},
		"expired":        {signToken(t, testSecret, expired), http.StatusUnauthorized},
		"wrong audience": {signToken(t, testSecret, wrongAudience), http.StatusUnauthorized},
		"no subject":     {signToken(t, testSecret, noSubject), http.StatusUnauthorized},
		"wrong role":     {signToken(t, testSecret, validClaims("viewer")), http.StatusForbidden},
	}
	for name, tc := range cases {
		if resp := call(router, tc.token); resp.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", name, tc.want, resp.Code)
		}
	}
}

func TestJWTMiddlewareWithoutSecretRejects(t *testing.T) {
	router := newRouter(JWTMiddleware("", ""))

	if resp := call(router, signToken(t, testSecret, validClaims(""))); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	if _, err := extractBearerToken("Basic abc"); err == nil {
		t.Fatal("expected error for non-bearer scheme")
	}
	if token, err := extractBearerToken("bearer abc"); err != nil || token != "abc" {
		t.Fatalf("unexpected result %q, %v", token, err)
	}
}
