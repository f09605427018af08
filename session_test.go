package siteapi

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestSessionStore(t *testing.T) *SessionStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := NewSessionStore(path, "test-secret", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// saveSession creates a session holding principal and returns the
// Set-Cookie value a browser would replay.
func saveSession(t *testing.T, store *SessionStore, principal *Principal) (id, cookie string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := store.New(req, SessionName)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sess.Values[sessionKeyPrincipal] = principal
	rec := httptest.NewRecorder()
	if err := store.Save(req, rec, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	return sess.ID, cookies[0].Value
}

func TestSessionRoundtrip(t *testing.T) {
	store := newTestSessionStore(t)
	principal := &Principal{
		ID:          "108",
		DisplayName: "Test Admin",
		Emails:      []ValueRef{{Value: "admin@example.com"}},
		Photos:      []ValueRef{{Value: "https://lh3.example/photo.jpg"}},
	}
	_, cookie := saveSession(t, store, principal)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionName, Value: cookie})
	sess, err := store.New(req, SessionName)
	if err != nil {
		t.Fatalf("New with cookie: %v", err)
	}
	if sess.IsNew {
		t.Fatal("expected existing session, got a new one")
	}
	got, ok := sess.Values[sessionKeyPrincipal].(*Principal)
	if !ok {
		t.Fatal("principal missing from loaded session")
	}
	if got.PrimaryEmail() != "admin@example.com" {
		t.Fatalf("PrimaryEmail = %q, want admin@example.com", got.PrimaryEmail())
	}
	if got.DisplayName != "Test Admin" {
		t.Fatalf("DisplayName = %q, want Test Admin", got.DisplayName)
	}
	if got.PrimaryPhoto() != "https://lh3.example/photo.jpg" {
		t.Fatalf("PrimaryPhoto = %q", got.PrimaryPhoto())
	}
}

func TestSessionCookieCarriesOnlyOpaqueID(t *testing.T) {
	store := newTestSessionStore(t)
	_, cookie := saveSession(t, store, &Principal{
		ID:     "108",
		Emails: []ValueRef{{Value: "admin@example.com"}},
	})

	// The principal lives server-side; the cookie must not leak it.
	if len(cookie) == 0 {
		t.Fatal("empty cookie value")
	}
	for _, fragment := range []string{"admin@example.com", "principal"} {
		if strings.Contains(strings.ToLower(cookie), fragment) {
			t.Fatalf("cookie value contains %q", fragment)
		}
	}
}

func TestSessionExpiredRowIgnored(t *testing.T) {
	store := newTestSessionStore(t)
	id, cookie := saveSession(t, store, &Principal{ID: "108"})

	if _, err := store.db.Exec(`UPDATE sessions SET expires_at = ? WHERE id = ?`,
		time.Now().Add(-time.Minute).Unix(), id); err != nil {
		t.Fatalf("expire row: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionName, Value: cookie})
	sess, err := store.New(req, SessionName)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !sess.IsNew {
		t.Fatal("expired session should present as new")
	}
}

func TestSessionTouchSlidesExpiry(t *testing.T) {
	store := newTestSessionStore(t)
	id, _ := saveSession(t, store, &Principal{ID: "108"})

	if _, err := store.db.Exec(`UPDATE sessions SET expires_at = ? WHERE id = ?`,
		time.Now().Add(time.Minute).Unix(), id); err != nil {
		t.Fatalf("shrink expiry: %v", err)
	}
	if err := store.Touch(id); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	var expiresAt int64
	if err := store.db.QueryRow(`SELECT expires_at FROM sessions WHERE id = ?`, id).
		Scan(&expiresAt); err != nil {
		t.Fatalf("read expiry: %v", err)
	}
	if remaining := time.Until(time.Unix(expiresAt, 0)); remaining < 30*time.Minute {
		t.Fatalf("expiry not slid forward, %v remaining", remaining)
	}
}

func TestSessionDestroy(t *testing.T) {
	store := newTestSessionStore(t)
	id, cookie := saveSession(t, store, &Principal{ID: "108"})

	if err := store.Destroy(id); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionName, Value: cookie})
	sess, err := store.New(req, SessionName)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !sess.IsNew {
		t.Fatal("destroyed session should present as new")
	}
}

func TestSessionNegativeMaxAgeDeletesRow(t *testing.T) {
	store := newTestSessionStore(t)
	id, cookie := saveSession(t, store, &Principal{ID: "108"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionName, Value: cookie})
	sess, err := store.New(req, SessionName)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sess.Options.MaxAge = -1
	rec := httptest.NewRecorder()
	if err := store.Save(req, rec, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var count int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE id = ?`, id).
		Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected session row deleted, found %d", count)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatal("expected an expiring cookie in the response")
	}
}

func TestSessionDeleteExpired(t *testing.T) {
	store := newTestSessionStore(t)
	liveID, _ := saveSession(t, store, &Principal{ID: "live"})
	deadID, _ := saveSession(t, store, &Principal{ID: "dead"})

	if _, err := store.db.Exec(`UPDATE sessions SET expires_at = ? WHERE id = ?`,
		time.Now().Add(-time.Minute).Unix(), deadID); err != nil {
		t.Fatalf("expire row: %v", err)
	}
	if err := store.DeleteExpired(); err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}

	var count int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one surviving row, got %d", count)
	}
	var survivor string
	if err := store.db.QueryRow(`SELECT id FROM sessions`).Scan(&survivor); err != nil {
		t.Fatalf("read survivor: %v", err)
	}
	if survivor != liveID {
		t.Fatalf("survivor = %q, want %q", survivor, liveID)
	}
}
