package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/quocanhngo/talkcore/internal/metrics"
	"github.com/quocanhngo/talkcore/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubRevocations struct {
	revoked map[string]bool
	err     error
}

func (s stubRevocations) IsRevoked(_ context.Context, token string) (bool, error) {
	return s.revoked[token], s.err
}

func authRouter(jwt *auth.JWTManager, revoked RevocationList) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(jwt, revoked), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": UserID(c), "name": UserName(c)})
	})
	return r
}

func get(r http.Handler, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	jwt := auth.NewJWTManager("secret", time.Hour)
	userID := uuid.New()
	token, err := jwt.GenerateToken(userID, "a@example.com", "Alice")
	require.NoError(t, err)

	tests := []struct {
		name    string
		authz   string
		revoked RevocationList
		want    int
	}{
		{"missing header", "", nil, http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, nil, http.StatusUnauthorized},
		{"garbage token", "Bearer nope", nil, http.StatusUnauthorized},
		{"valid", "Bearer " + token, nil, http.StatusOK},
		{"valid lower-case scheme", "bearer " + token, stubRevocations{}, http.StatusOK},
		{"revoked", "Bearer " + token, stubRevocations{revoked: map[string]bool{token: true}}, http.StatusUnauthorized},
		{"revocation list down", "Bearer " + token, stubRevocations{err: errors.New("redis down")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(authRouter(jwt, tt.revoked), "/me", tt.authz)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.want == http.StatusOK {
				assert.Contains(t, w.Body.String(), userID.String())
				assert.Contains(t, w.Body.String(), "Alice")
			}
		})
	}
}

func TestSendRateLimitPerUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/send", func(c *gin.Context) {
		id, _ := uuid.Parse(c.GetHeader("X-User"))
		SetUser(c, id, "")
		c.Next()
	}, SendRateLimit(0.001, 2), func(c *gin.Context) { c.Status(http.StatusCreated) })

	send := func(user uuid.UUID) int {
		req := httptest.NewRequest(http.MethodPost, "/send", nil)
		req.Header.Set("X-User", user.String())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	alice, bob := uuid.New(), uuid.New()
	assert.Equal(t, http.StatusCreated, send(alice))
	assert.Equal(t, http.StatusCreated, send(alice))
	assert.Equal(t, http.StatusTooManyRequests, send(alice))
	assert.Equal(t, http.StatusCreated, send(bob))
}

func TestSendRateLimitDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/send", SendRateLimit(0, 0), func(c *gin.Context) { c.Status(http.StatusCreated) })
	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/send", nil))
		require.Equal(t, http.StatusCreated, w.Code)
	}
}

func TestLimiterPoolSweep(t *testing.T) {
	p := &limiterPool{m: make(map[uuid.UUID]*entry), rps: 1, burst: 1}
	now := time.Now()
	p.allow(uuid.New(), now.Add(-time.Hour))
	p.allow(uuid.New(), now)

	p.sweep(now, 10*time.Minute)
	assert.Len(t, p.m, 1)
}

func TestRequestLoggerRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.New(prometheus.NewRegistry())
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop(), m))
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	get(r, "/items/1", "")
	get(r, "/items/2", "")
	get(r, "/nowhere", "")

	// one series for the matched route, one for the 404
	assert.Equal(t, 2, testutil.CollectAndCount(m.HTTPDuration))
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware([]string{"http://app.example.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
