package siteapi

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SessionName is the cookie name. Deliberately generic.
const SessionName = "sid"

// Session value keys recognized by the store's serializer.
const (
	sessionKeyPrincipal  = "principal"
	sessionKeyOAuthState = "oauth_state"
)

// sessionData is the server-side representation of a session row. The
// cookie itself carries only the opaque session id.
type sessionData struct {
	Principal  *Principal `json:"principal,omitempty"`
	OAuthState string     `json:"oauth_state,omitempty"`
}

// SessionStore implements gorilla's sessions.Store on top of SQLite.
// Rows hold the authenticated principal and a wall-clock expiry; Touch
// extends the expiry without re-authenticating.
type SessionStore struct {
	db      *sql.DB
	codecs  []securecookie.Codec
	options *sessions.Options
	ttl     time.Duration
	logger  *zap.Logger
}

// NewSessionStore opens (or creates) the session database at path and
// ensures the schema.
func NewSessionStore(path, secret string, ttl time.Duration, secure bool, logger *zap.Logger) (*SessionStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create session data dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	// WAL plus a busy timeout so concurrent requests wait instead of
	// getting SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		return nil, fmt.Errorf("configure session db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	s := &SessionStore{
		db:     db,
		codecs: securecookie.CodecsFromPairs([]byte(secret)),
		options: &sessions.Options{
			Path:     "/",
			HttpOnly: true,
			MaxAge:   int(ttl / time.Second),
			SameSite: http.SameSiteLaxMode,
			Secure:   secure,
		},
		ttl:    ttl,
		logger: logger,
	}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SessionStore) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    data TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
`)
	if err != nil {
		return fmt.Errorf("ensure session schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

// Get returns a cached session from the request registry.
func (s *SessionStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session referenced by the request cookie, or returns a
// fresh one when the cookie is absent, invalid, or expired.
func (s *SessionStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.options
	session.Options = &opts
	session.IsNew = true

	cookie, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}
	var id string
	if err := securecookie.DecodeMulti(name, cookie.Value, &id, s.codecs...); err != nil {
		return session, nil
	}
	data, ok, err := s.load(id)
	if err != nil {
		return session, err
	}
	if !ok {
		return session, nil
	}
	session.ID = id
	session.IsNew = false
	if data.Principal != nil {
		session.Values[sessionKeyPrincipal] = data.Principal
	}
	if data.OAuthState != "" {
		session.Values[sessionKeyOAuthState] = data.OAuthState
	}
	return session, nil
}

// Save persists the session row and writes the id cookie. MaxAge < 0
// destroys the session. Every save slides the expiry forward by the TTL.
func (s *SessionStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.Destroy(session.ID); err != nil {
				return err
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	data := sessionData{}
	if p, ok := session.Values[sessionKeyPrincipal].(*Principal); ok {
		data.Principal = p
	}
	if st, ok := session.Values[sessionKeyOAuthState].(string); ok {
		data.OAuthState = st
	}
	blob, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO sessions (id, data, created_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at`,
		session.ID, string(blob), now.Unix(), now.Add(s.ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.codecs...)
	if err != nil {
		return fmt.Errorf("encode session cookie: %w", err)
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

func (s *SessionStore) load(id string) (sessionData, bool, error) {
	var blob string
	var expiresAt int64
	err := s.db.QueryRow(`SELECT data, expires_at FROM sessions WHERE id = ?`, id).
		Scan(&blob, &expiresAt)
	if err == sql.ErrNoRows {
		return sessionData{}, false, nil
	}
	if err != nil {
		return sessionData{}, false, fmt.Errorf("load session: %w", err)
	}
	if time.Now().Unix() >= expiresAt {
		_ = s.Destroy(id)
		return sessionData{}, false, nil
	}
	var data sessionData
	if err := json.Unmarshal([]byte(blob), &data); err != nil {
		// Corrupt row: drop it and start over rather than failing auth.
		_ = s.Destroy(id)
		return sessionData{}, false, nil
	}
	return data, true, nil
}

// Touch slides the session expiry forward by the TTL.
func (s *SessionStore) Touch(id string) error {
	_, err := s.db.Exec(`UPDATE sessions SET expires_at = ? WHERE id = ?`,
		time.Now().Add(s.ttl).Unix(), id)
	return err
}

// Destroy removes the session row.
func (s *SessionStore) Destroy(id string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// DeleteExpired removes every session whose expiry has passed.
func (s *SessionStore) DeleteExpired() error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at <= ?`, time.Now().Unix())
	return err
}

// StartSweeper runs periodic deletion of expired sessions. Returns a stop
// function.
func (s *SessionStore) StartSweeper(interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := s.DeleteExpired(); err != nil {
					s.logger.Warn("session sweep failed", zap.Error(err))
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}
