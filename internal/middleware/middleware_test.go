package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "dtindex/internal/errors"
	"dtindex/internal/infrastructure"
	"dtindex/internal/shared/testutil"
	api "dtindex/pkg/contracts/api/v1"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
})

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetReqID(r.Context())
	}))

	t.Run("generates an ID", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Len(t, seen, 36)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("keeps the client ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	})
}

func TestStructuredLogger(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	handler := RequestID(StructuredLogger(logger)(okHandler))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dataset", nil))

	assert.True(t, logs.ContainsMessage("request completed"))
	assert.True(t, logs.ContainsAttr("status", int64(http.StatusOK)))
}

func TestRecoverer(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	handler := RequestID(Recoverer(apierrors.NewErrorHandler(logger, false))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, logs.ContainsMessage("panic recovered"))
}

func TestRateLimiter(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	handler := NewRateLimiter(1, 2, logger).Handler(okHandler)

	codes := make([]int, 3)
	for i := range codes {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes[i] = rec.Code
		if rec.Code == http.StatusTooManyRequests {
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			assert.Equal(t, "1", rec.Header().Get("Retry-After"))
		}
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.True(t, logs.ContainsMessage("rate limit exceeded"))
}

func TestRateLimiter_PerClient(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	rl := NewRateLimiter(1, 1, logger)
	handler := rl.Handler(okHandler)

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:5000"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:5001"), "same host, other port")
	assert.Equal(t, http.StatusOK, send("10.0.0.2:5000"))
	assert.Equal(t, http.StatusOK, send("10.0.0.3"), "address without port")
	assert.Equal(t, 3, rl.Clients())
}

func TestRateLimiter_DropsIdleClients(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	rl := NewRateLimiter(1, 1, logger)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.limiter("10.0.0.1")
	rl.limiter("10.0.0.2")
	require.Equal(t, 2, rl.Clients())

	now = now.Add(clientIdleTTL + time.Minute)
	rl.limiter("10.0.0.2")
	assert.Equal(t, 1, rl.Clients())
}

func TestTimeout(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)

	t.Run("answers when the handler wrote nothing", func(t *testing.T) {
		handler := Timeout(10*time.Millisecond, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	})

	t.Run("leaves fast handlers alone", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Timeout(time.Second, logger)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", rec.Body.String())
	})
}

func TestCORS(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}})(okHandler)

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("foreign origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://evil.example")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PUT")
	})
}

func TestSecureHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	DefaultSecureHeaders().Handler(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestAuditLog(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	rec := httptest.NewRecorder()
	AuditLog(logger)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/dataset/reload", nil))

	assert.True(t, logs.ContainsMessage("audit log"))
	assert.True(t, logs.ContainsAttr("event_type", "dataset_change"))
}

func TestOTelMiddleware_RoutePattern(t *testing.T) {
	var route string
	r := chi.NewRouter()
	r.Use(NewOTelMiddleware(nil, infrastructure.NoopMetrics()).Handler)
	r.Get("/api/groups/{group}/average", func(w http.ResponseWriter, r *http.Request) {
		route = chi.RouteContext(r.Context()).RoutePattern()
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/groups/J66/average", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/api/groups/{group}/average", route)
}

func newValidation(t *testing.T) *ValidationMiddleware {
	logger, _ := testutil.NewTestLogger(t)
	return NewValidationMiddleware(logger, apierrors.NewErrorHandler(logger, false))
}

func TestValidateStruct(t *testing.T) {
	v := newValidation(t)

	assert.NoError(t, v.ValidateStruct(&api.CompareRequest{Entity: "600036", Peer: "600000", Format: "csv"}))

	err := v.ValidateStruct(&api.CompareRequest{Entity: "600036", Peer: "600036", Format: "xml"})
	require.Error(t, err)
	apiErr, ok := err.(*apierrors.APIError)
	require.True(t, ok)
	details := apiErr.Details.([]apierrors.ValidationError)
	fields := make([]string, len(details))
	for i, d := range details {
		fields[i] = d.Field
	}
	assert.ElementsMatch(t, []string{"peer", "format"}, fields)
}

func TestValidateStruct_Window(t *testing.T) {
	v := newValidation(t)

	err := v.ValidateStruct(&api.EntityQueryRequest{Query: "600036", WindowRequest: api.WindowRequest{From: 12}})
	require.Error(t, err)
	assert.Contains(t, err.(*apierrors.APIError).Details.([]apierrors.ValidationError)[0].Message, "greater than or equal")
}

func TestDecodeJSON(t *testing.T) {
	v := newValidation(t)

	t.Run("valid mapping", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/dataset/schema",
			strings.NewReader(`{"identifier":"ticker","period":"fy","metric":"score"}`))
		var body api.SchemaOverrideRequest
		require.NoError(t, v.DecodeJSON(req, &body))
		assert.Equal(t, "score", body.Metric)
	})

	t.Run("blank column", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/dataset/schema",
			strings.NewReader(`{"identifier":"ticker","period":"  ","metric":"score"}`))
		var body api.SchemaOverrideRequest
		err := v.DecodeJSON(req, &body)
		require.Error(t, err)
		assert.Equal(t, "VALIDATION_FAILED", err.(*apierrors.APIError).ErrorCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/dataset/schema", strings.NewReader(`{`))
		var body api.SchemaOverrideRequest
		err := v.DecodeJSON(req, &body)
		require.Error(t, err)
		assert.Equal(t, "INVALID_REQUEST", err.(*apierrors.APIError).ErrorCode)
	})
}

func TestValidateRequest(t *testing.T) {
	v := newValidation(t)
	handler := v.ValidateRequest(okHandler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_JSON", body["error_code"])

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/", strings.NewReader(strings.Repeat(" ", DefaultMaxBodySize+1))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestContentTypeValidator(t *testing.T) {
	handler := ContentTypeValidator("application/json")(okHandler)

	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQueryParamValidator(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	v := NewQueryParamValidator(logger, apierrors.NewErrorHandler(logger, false))

	rec := httptest.NewRecorder()
	n, ok := v.ValidateInt(rec, httptest.NewRequest(http.MethodGet, "/?from=2019", nil), "from", 0)
	assert.True(t, ok)
	assert.Equal(t, 2019, n)

	rec = httptest.NewRecorder()
	_, ok = v.ValidateInt(rec, httptest.NewRequest(http.MethodGet, "/?from=abc", nil), "from", 0)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	by, ok := v.ValidateEnum(rec, httptest.NewRequest(http.MethodGet, "/", nil), "by", []string{"auto", "id", "name"}, "auto")
	assert.True(t, ok)
	assert.Equal(t, "auto", by)
}
