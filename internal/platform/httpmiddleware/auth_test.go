package httpmiddleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"pix.local/internal/platform/auth"
	"pix.local/internal/platform/httpmiddleware"
)

func newAuthRouter(t *testing.T) (*chi.Mux, auth.TokenService) {
	t.Helper()
	ts, err := auth.NewHS256Service("secret", "issuer", time.Hour)
	if err != nil {
		t.Fatalf("NewHS256Service: %v", err)
	}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(httpmiddleware.AuthRequired(ts))
		r.Get("/me", func(w http.ResponseWriter, req *http.Request) {
			id, ok := auth.GetIdentity(req.Context())
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(id.UserID + ":" + id.Role))
		})
	})
	r.Group(func(r chi.Router) {
		r.Use(httpmiddleware.AuthRequired(ts), httpmiddleware.RequireRole("admin"))
		r.Get("/admin", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})
	return r, ts
}

func TestAuthRequiredWithoutToken(t *testing.T) {
	r, _ := newAuthRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestAuthRequiredWithToken(t *testing.T) {
	r, ts := newAuthRouter(t)
	token, err := ts.Sign("2", "user")
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%q", w.Code, w.Body.String())
	}
	if w.Body.String() != "2:user" {
		t.Fatalf("identity = %q, want 2:user", w.Body.String())
	}
}

func TestRequireRoleBlocksNonAdmin(t *testing.T) {
	r, ts := newAuthRouter(t)

	userToken, _ := ts.Sign("2", "user")
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("user role: status = %d, want 403", w.Code)
	}

	adminToken, _ := ts.Sign("1", "admin")
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("admin role: status = %d, want 200", w.Code)
	}
}

func TestAuthRequiredRejectsGarbageToken(t *testing.T) {
	r, _ := newAuthRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func newOptionalAuthRouter(t *testing.T) (*chi.Mux, auth.TokenService) {
	t.Helper()
	ts, err := auth.NewHS256Service("secret", "issuer", time.Hour)
	if err != nil {
		t.Fatalf("NewHS256Service: %v", err)
	}

	r := chi.NewRouter()
	r.Use(httpmiddleware.AuthOptional(ts))
	r.Get("/whoami", func(w http.ResponseWriter, req *http.Request) {
		if id, ok := auth.GetIdentity(req.Context()); ok {
			w.Write([]byte(id.UserID + ":" + id.Role))
			return
		}
		w.Write([]byte("anonymous"))
	})
	return r, ts
}

func TestAuthOptionalWithoutToken(t *testing.T) {
	r, _ := newOptionalAuthRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "anonymous" {
		t.Fatalf("body = %q, want anonymous", w.Body.String())
	}
}

func TestAuthOptionalWithToken(t *testing.T) {
	r, ts := newOptionalAuthRouter(t)
	token, _ := ts.Sign("7", "user")

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Body.String() != "7:user" {
		t.Fatalf("body = %q, want 7:user", w.Body.String())
	}
}

// 无效 token 不拦截请求，只是不带身份
func TestAuthOptionalIgnoresBadToken(t *testing.T) {
	r, _ := newOptionalAuthRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "anonymous" {
		t.Fatalf("body = %q, want anonymous", w.Body.String())
	}
}
