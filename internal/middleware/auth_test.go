package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/dukerupert/tally/internal/auth"
	"github.com/dukerupert/tally/internal/database"
	"github.com/dukerupert/tally/internal/model"
	"github.com/dukerupert/tally/internal/store"
)

func setupMembers(t *testing.T) (*store.MemberStore, *model.Member) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	family, err := store.NewFamilyStore(db).Create("Smith")
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	ms := store.NewMemberStore(db)
	member, err := ms.Create(family.ID, "Dana", model.RoleParent)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	return ms, member
}

func TestRequireActor(t *testing.T) {
	ms, member := setupMembers(t)
	const key = "gateway-secret"

	var gotActor auth.Actor
	var called bool
	handler := RequireActor(key, ms)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor, _ = auth.FromContext(r.Context())
		called = true
	}))

	t.Run("valid headers", func(t *testing.T) {
		called = false
		req := httptest.NewRequest("GET", "/api/members", nil)
		req.Header.Set("X-Tally-Gateway-Key", key)
		req.Header.Set("X-Tally-Member", strconv.FormatInt(member.ID, 10))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if !called {
			t.Fatal("handler not called")
		}
		if gotActor.MemberID != member.ID {
			t.Errorf("actor member = %d, want %d", gotActor.MemberID, member.ID)
		}
		if gotActor.Role != model.RoleParent {
			t.Errorf("actor role = %q, want parent", gotActor.Role)
		}
	})

	t.Run("missing gateway key", func(t *testing.T) {
		called = false
		req := httptest.NewRequest("GET", "/api/members", nil)
		req.Header.Set("X-Tally-Member", strconv.FormatInt(member.ID, 10))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
		if called {
			t.Error("handler called without gateway key")
		}
	})

	t.Run("wrong gateway key", func(t *testing.T) {
		called = false
		req := httptest.NewRequest("GET", "/api/members", nil)
		req.Header.Set("X-Tally-Gateway-Key", "nope")
		req.Header.Set("X-Tally-Member", strconv.FormatInt(member.ID, 10))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("unknown member", func(t *testing.T) {
		called = false
		req := httptest.NewRequest("GET", "/api/members", nil)
		req.Header.Set("X-Tally-Gateway-Key", key)
		req.Header.Set("X-Tally-Member", "9999")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestRequireParent(t *testing.T) {
	handler := RequireParent(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("parent allowed", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/rewards", nil)
		req = req.WithContext(auth.WithActor(req.Context(), auth.Actor{MemberID: 1, FamilyID: 1, Role: model.RoleParent}))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("child forbidden", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/rewards", nil)
		req = req.WithContext(auth.WithActor(req.Context(), auth.Actor{MemberID: 2, FamilyID: 1, Role: model.RoleChild}))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("no actor forbidden", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/rewards", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})
}
