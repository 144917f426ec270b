package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/husainf4l/ravoxai/internal/config"
)

func testRouter(m *Manager, roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	chain := []gin.HandlerFunc{RequireAccessToken(m)}
	if len(roles) > 0 {
		chain = append(chain, RequireAnyRole(roles...))
	}
	chain = append(chain, func(c *gin.Context) {
		subject, _ := Subject(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"subject": subject})
	})
	r.GET("/protected", chain...)
	return r
}

func doGet(t *testing.T, r *gin.Engine, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAccessToken(t *testing.T) {
	m, err := NewManager(config.AuthConfig{JWTSecret: "s", AccessTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	r := testRouter(m)

	if w := doGet(t, r, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", w.Code)
	}
	if w := doGet(t, r, "garbage"); w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status = %d, want 401", w.Code)
	}

	tok, err := m.IssueAccess(time.Now(), "ops", RoleOperator)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	w := doGet(t, r, tok)
	if w.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d, want 200: %s", w.Code, w.Body.String())
	}
	// The middleware must make the verified subject visible downstream.
	if got := w.Body.String(); !strings.Contains(got, `"subject":"ops"`) {
		t.Fatalf("subject not propagated: %s", got)
	}
}

func TestRequireAnyRole(t *testing.T) {
	m, err := NewManager(config.AuthConfig{JWTSecret: "s", AccessTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	r := testRouter(m, RoleService)

	operator, _ := m.IssueAccess(time.Now(), "ops", RoleOperator)
	service, _ := m.IssueAccess(time.Now(), "hook", RoleService)
	admin, _ := m.IssueAccess(time.Now(), "root", RoleAdmin)

	if w := doGet(t, r, operator); w.Code != http.StatusForbidden {
		t.Fatalf("operator on service route: status = %d, want 403", w.Code)
	}
	if w := doGet(t, r, service); w.Code != http.StatusOK {
		t.Fatalf("service on service route: status = %d, want 200", w.Code)
	}
	// admin bypasses role checks
	if w := doGet(t, r, admin); w.Code != http.StatusOK {
		t.Fatalf("admin on service route: status = %d, want 200", w.Code)
	}
}
