package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/infrastructure/storage/postgres"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery())
	r.Use(Trace())
	r.Use(ErrorHandler())
	return r
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func TestIsFinancialRoute(t *testing.T) {
	tests := []struct {
		route string
		want  bool
	}{
		{"/api/v1/sales/checkout", true},
		{"/api/v1/sales/:id/checkout", true},
		{"/api/v1/tabs/:id/close", true},
		{"/api/v1/deliveries/:id/receive", true},
		{"/api/v1/stock-takes/:id/complete", true},
		{"/api/v1/tabs/:id/items", false},
		{"/api/v1/catalog/products", false},
		{"/api/v1/sales", false},
	}
	for _, tc := range tests {
		if got := isFinancialRoute(tc.route); got != tc.want {
			t.Errorf("isFinancialRoute(%q) = %v, want %v", tc.route, got, tc.want)
		}
	}
}

func TestFinancialRouteRequiresKey(t *testing.T) {
	store := postgres.NewIdempotencyStore(nil, postgres.IdempotencyConfig{})
	r := newTestRouter()
	r.POST("/tabs/:id/close", Idempotency(store), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "closed"})
	})

	req := httptest.NewRequest(http.MethodPost, "/tabs/42/close", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	body := decodeBody(t, w)
	if body["code"] != apperror.CodeValidation {
		t.Errorf("code = %v, want %v", body["code"], apperror.CodeValidation)
	}
}

func TestNonFinancialWriteWithoutKeyPassesThrough(t *testing.T) {
	store := postgres.NewIdempotencyStore(nil, postgres.IdempotencyConfig{})
	r := newTestRouter()
	called := false
	r.POST("/tabs/:id/items", Idempotency(store), func(c *gin.Context) {
		called = true
		c.JSON(http.StatusOK, gin.H{})
	})

	req := httptest.NewRequest(http.MethodPost, "/tabs/42/items", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if !called {
		t.Error("handler was not reached")
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestReadsBypassIdempotency(t *testing.T) {
	store := postgres.NewIdempotencyStore(nil, postgres.IdempotencyConfig{})
	r := newTestRouter()
	r.GET("/tabs/:id/close", Idempotency(store), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})

	// Even with a key header, a GET never touches the store.
	req := httptest.NewRequest(http.MethodGet, "/tabs/42/close", nil)
	req.Header.Set(HeaderIdempotencyKey, "k-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestErrorHandlerBusinessOutcome(t *testing.T) {
	r := newTestRouter()
	r.POST("/tabs/:id/close", func(c *gin.Context) {
		_ = c.Error(apperror.NewTabClosed(c.Param("id")))
		c.Abort()
	})

	req := httptest.NewRequest(http.MethodPost, "/tabs/42/close", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	body := decodeBody(t, w)
	if body["code"] != apperror.CodeTabClosed {
		t.Errorf("code = %v, want %v", body["code"], apperror.CodeTabClosed)
	}
}

func TestErrorHandlerHidesInternalDetails(t *testing.T) {
	r := newTestRouter()
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errors.New("pq: connection refused on 10.0.0.7"))
		c.Abort()
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	body := decodeBody(t, w)
	if body["code"] != apperror.CodeInternal {
		t.Errorf("code = %v", body["code"])
	}
	if body["message"] != "Internal server error" {
		t.Errorf("message %q leaks internals", body["message"])
	}
	details, _ := body["details"].(map[string]any)
	if details["request_id"] == "" || details["request_id"] == nil {
		t.Error("response carries no request_id for support")
	}
}

func TestRecoveryRendersInternalError(t *testing.T) {
	r := newTestRouter()
	r.GET("/panic", func(c *gin.Context) {
		panic("nil till drawer")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	body := decodeBody(t, w)
	if body["code"] != apperror.CodeInternal {
		t.Errorf("code = %v", body["code"])
	}
}

func TestTraceHonorsInboundRequestID(t *testing.T) {
	r := newTestRouter()
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": c.GetString(CtxRequestID)})
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-from-gateway")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get(HeaderRequestID); got != "req-from-gateway" {
		t.Errorf("echoed request id = %q", got)
	}
	body := decodeBody(t, w)
	if body["request_id"] != "req-from-gateway" {
		t.Errorf("context request id = %v", body["request_id"])
	}

	// Without a header both IDs are generated.
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get(HeaderRequestID) == "" || w.Header().Get(HeaderTraceID) == "" {
		t.Error("missing generated trace headers")
	}
}
