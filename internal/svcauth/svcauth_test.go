package svcauth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestServiceDisabledWithEmptySecret(t *testing.T) {
	s := New("", nil)
	if s.Enabled() {
		t.Fatal("expected Enabled() to be false for empty secret")
	}
}

func TestGinMiddlewareNoopWhenDisabled(t *testing.T) {
	s := New("", nil)
	router := gin.New()
	router.Use(s.GinMiddleware())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestGinMiddlewareRejectsMissingToken(t *testing.T) {
	s := New("sekret", nil)
	router := gin.New()
	router.Use(s.GinMiddleware())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestGinMiddlewareAcceptsValidToken(t *testing.T) {
	s := New("sekret", nil)
	router := gin.New()
	router.Use(s.GinMiddleware())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer sekret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestGinMiddlewareRejectsWrongToken(t *testing.T) {
	s := New("sekret", nil)
	router := gin.New()
	router.Use(s.GinMiddleware())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestSetBearerNoopWhenDisabled(t *testing.T) {
	s := New("", nil)
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	s.SetBearer(req)
	if req.Header.Get("Authorization") != "" {
		t.Fatal("expected no Authorization header set when disabled")
	}
}

func TestSetBearerSetsHeaderWhenEnabled(t *testing.T) {
	s := New("sekret", nil)
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	s.SetBearer(req)
	if req.Header.Get("Authorization") != "Bearer sekret" {
		t.Fatalf("expected Bearer sekret, got %q", req.Header.Get("Authorization"))
	}
}
