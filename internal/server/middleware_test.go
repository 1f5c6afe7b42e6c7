package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"medportal/internal/config"
	"medportal/internal/core"

	"github.com/gin-gonic/gin"
)

func newTestServerForMiddleware(clientKeys []string) *Server {
	gin.SetMode(gin.TestMode)
	keyMap := make(map[string]bool)
	for _, k := range clientKeys {
		keyMap[k] = true
	}
	return &Server{
		validClientKeys: keyMap,
		config:          config.ServerConfig{Logger: &core.NopLogger{}},
	}
}

func TestAuthenticateClient_ValidBearerToken(t *testing.T) {
	s := newTestServerForMiddleware([]string{"test-key-1", "test-key-2"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/consultations", nil)
	c.Request.Header.Set("Authorization", "Bearer test-key-1")
	s.authenticateClient(c)
	if w.Code != http.StatusOK {
		t.Errorf("有效 Bearer 应通过，实际 %d", w.Code)
	}
	if c.IsAborted() {
		t.Error("有效 Bearer 不应中断")
	}
}

func TestAuthenticateClient_ValidXAPIKey(t *testing.T) {
	s := newTestServerForMiddleware([]string{"test-key-1"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/consultations", nil)
	c.Request.Header.Set("x-api-key", "test-key-1")
	s.authenticateClient(c)
	if c.IsAborted() {
		t.Error("有效 x-api-key 不应中断")
	}
}

func TestAuthenticateClient_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		keys    []string
		headers map[string]string
		want    int
	}{
		{"无效密钥", []string{"valid-key"}, map[string]string{"Authorization": "Bearer wrong-key"}, http.StatusForbidden},
		{"缺少密钥", []string{"valid-key"}, nil, http.StatusUnauthorized},
		{"未配置密钥", nil, nil, http.StatusServiceUnavailable},
		{"x-api-key 优先", []string{"valid-key"}, map[string]string{"x-api-key": "invalid-key", "Authorization": "Bearer valid-key"}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServerForMiddleware(tt.keys)
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/v1/consultations", nil)
			for k, v := range tt.headers {
				c.Request.Header.Set(k, v)
			}
			s.authenticateClient(c)
			if w.Code != tt.want {
				t.Errorf("期望 %d，实际 %d", tt.want, w.Code)
			}
			if !c.IsAborted() {
				t.Error("应中断请求")
			}
		})
	}
}

func TestCorsMiddleware_SetsHeaders(t *testing.T) {
	s := newTestServerForMiddleware(nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	s.corsMiddleware()(c)
	if origin := w.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("期望 Access-Control-Allow-Origin 为 '*'，实际 '%s'", origin)
	}
	if methods := w.Header().Get("Access-Control-Allow-Methods"); methods != "GET, POST, DELETE, OPTIONS" {
		t.Errorf("应允许 DELETE，实际 '%s'", methods)
	}
}

func TestCorsMiddleware_ConfiguredOrigin(t *testing.T) {
	s := newTestServerForMiddleware(nil)
	s.config.CORSAllowOrigin = "https://portal.example.com"
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	s.corsMiddleware()(c)
	if origin := w.Header().Get("Access-Control-Allow-Origin"); origin != "https://portal.example.com" {
		t.Errorf("应使用配置的来源，实际 '%s'", origin)
	}
}

func TestCorsMiddleware_OptionsRequest(t *testing.T) {
	s := newTestServerForMiddleware(nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodOptions, "/v1/consultations", nil)
	s.corsMiddleware()(c)
	if w.Code != http.StatusNoContent {
		t.Errorf("OPTIONS 应返回 204，实际 %d", w.Code)
	}
	if !c.IsAborted() {
		t.Error("OPTIONS 应跳过后续处理")
	}
}

func TestRequirePortalUser(t *testing.T) {
	s := newTestServerForMiddleware(nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/sessions/x", nil)
	s.requirePortalUser(c)
	if w.Code != http.StatusUnauthorized || !c.IsAborted() {
		t.Fatalf("缺少身份应返回 401，实际 %d", w.Code)
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/sessions/x", nil)
	c.Request.Header.Set(core.HeaderPortalUser, "  Doctor@Example.com ")
	s.requirePortalUser(c)
	if c.IsAborted() {
		t.Fatal("带身份的请求不应中断")
	}
	if got := ownerOf(c); got != "doctor@example.com" {
		t.Errorf("身份应规范化为小写，实际 %q", got)
	}
}

func TestRateLimiter_PerIP(t *testing.T) {
	rl := newRateLimiter(2)
	defer rl.stop()

	if !rl.allow("1.1.1.1") || !rl.allow("1.1.1.1") {
		t.Fatal("突发额度内应放行")
	}
	if rl.allow("1.1.1.1") {
		t.Error("超出突发额度应拒绝")
	}
	if !rl.allow("2.2.2.2") {
		t.Error("不同 IP 应独立计数")
	}
}

func TestRateLimiter_SweepAndStop(t *testing.T) {
	rl := newRateLimiter(10)
	rl.allow("1.1.1.1")
	rl.sweep(time.Now().Add(2 * limiterIdleAfter))

	rl.mu.Lock()
	n := len(rl.visitors)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("空闲访客应被清理，剩余 %d", n)
	}

	rl.stop()
	rl.stop()
}
