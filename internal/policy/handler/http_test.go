package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap/zaptest"

	"github.com/itsfredrick/vayva-platform-sub007/internal/db"
	"github.com/itsfredrick/vayva-platform-sub007/internal/db/migrate"
	"github.com/itsfredrick/vayva-platform-sub007/internal/policy/domain"
	"github.com/itsfredrick/vayva-platform-sub007/internal/policy/engine"
	"github.com/itsfredrick/vayva-platform-sub007/internal/policy/repository"
	"github.com/itsfredrick/vayva-platform-sub007/internal/server/middleware"
)

const validRules = `package consent.send_policy

default allow := true

allow := false if input.channel == "SMS"
`

func newRouter(t *testing.T, merchantID string, repo repository.Repository) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithMerchant(r.Context(), merchantID, "")))
		})
	})
	NewHandler(repo, engine.NewOPAEvaluator(repo, nil), zaptest.NewLogger(t)).Routes(r)
	return r
}

func openRepo(t *testing.T) repository.Repository {
	t.Helper()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "policy.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := migrate.RunSQLite(conn, "up"); err != nil {
		t.Fatalf("RunSQLite: %v", err)
	}
	return repository.NewSQLiteRepository(conn)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

func TestHandler_Lifecycle(t *testing.T) {
	repo := openRepo(t)
	h := newRouter(t, "m1", repo)

	body, _ := json.Marshal(map[string]any{"name": "no sms", "rules": validRules})
	w := do(t, h, http.MethodPost, "/send-policies", string(body))
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body)
	}
	var created domain.SendPolicy
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.MerchantID != "m1" || !created.Enabled {
		t.Errorf("created = %+v", created)
	}

	w = do(t, h, http.MethodPatch, "/send-policies/"+created.ID, `{"enabled":false,"name":"paused"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", w.Code, w.Body)
	}

	w = do(t, h, http.MethodGet, "/send-policies", "")
	var list listResponse
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Policies) != 1 || list.Policies[0].Enabled || list.Policies[0].Name != "paused" {
		t.Errorf("list = %+v", list.Policies)
	}

	other := newRouter(t, "m2", repo)
	if w := do(t, other, http.MethodGet, "/send-policies/"+created.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("other merchant get status = %d, want 404", w.Code)
	}
	if w := do(t, other, http.MethodPatch, "/send-policies/"+created.ID, `{"enabled":true}`); w.Code != http.StatusNotFound {
		t.Errorf("other merchant patch status = %d, want 404", w.Code)
	}
}

func TestHandler_RejectsInvalidRules(t *testing.T) {
	repo := openRepo(t)
	h := newRouter(t, "m1", repo)
	tests := []struct {
		name string
		body string
	}{
		{"syntax", `{"name":"x","rules":"package consent.send_policy\n\nallow := "}`},
		{"wrong package", `{"name":"x","rules":"package other\n\ndefault allow := true\n"}`},
		{"missing name", `{"rules":"package consent.send_policy\n"}`},
		{"bad json", `{"name":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, h, http.MethodPost, "/send-policies", tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", w.Code, w.Body)
			}
		})
	}

	w := do(t, h, http.MethodGet, "/send-policies", "")
	if !strings.Contains(w.Body.String(), `"policies":[]`) {
		t.Errorf("list after rejected creates = %s", w.Body)
	}
}
