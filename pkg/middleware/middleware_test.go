package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"smarter-store/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestIdentity(t *testing.T) {
	var gotUser uuid.UUID
	var gotRole string
	h := Identity(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = utils.GetUserIDFromContext(r.Context())
		gotRole, _ = utils.GetRoleFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		userID   string
		role     string
		wantCode int
	}{
		{name: "missing header", wantCode: http.StatusUnauthorized},
		{name: "malformed id", userID: "42", wantCode: http.StatusUnauthorized},
		{name: "customer by default", userID: uuid.NewString(), wantCode: http.StatusNoContent},
		{name: "explicit role", userID: uuid.NewString(), role: "Admin", wantCode: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser, gotRole = uuid.Nil, ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.userID != "" {
				req.Header.Set(HeaderUserID, tt.userID)
			}
			if tt.role != "" {
				req.Header.Set(HeaderUserRole, tt.role)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode != http.StatusNoContent {
				assert.Equal(t, uuid.Nil, gotUser)
				return
			}
			assert.Equal(t, tt.userID, gotUser.String())
			if tt.role == "" {
				assert.Equal(t, RoleCustomer, gotRole)
			} else {
				assert.Equal(t, RoleAdmin, gotRole)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := Identity(zap.NewNop())(RequireRole(zap.NewNop(), RolePayment)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(HeaderUserID, uuid.NewString())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req.Header.Set(HeaderUserRole, RolePayment)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRecover(t *testing.T) {
	h := Recover(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"status":false,"message":"Internal server error"}`, w.Body.String())
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	h := CORS()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/bookings", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), HeaderUserID)
	assert.False(t, called)
}

func TestRateLimit_DisabledIsPassthrough(t *testing.T) {
	h := RateLimit(utils.RateLimitConfig{Enabled: false}, nil, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
}

func TestRateKey(t *testing.T) {
	userID := uuid.New()
	var key string
	r := chi.NewRouter()
	r.Post("/api/bookings/{id}/extend", func(w http.ResponseWriter, req *http.Request) {
		key = rateKey("rl:extend", req)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/bookings/abc/extend", nil)
	req = req.WithContext(utils.SetUserContext(req.Context(), userID, RoleCustomer))
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "rl:extend:user:"+userID.String()+":booking:abc", key)
}

func TestLogger_PassesFlush(t *testing.T) {
	h := Logger(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := w.(http.Flusher)
		assert.True(t, ok)
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}
