// Package session keeps server-side web sessions in the database. The
// cookie carries only the session id and its HMAC signature.
package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pysugar/outlook-relay/internal/db/models"
	"github.com/pysugar/outlook-relay/internal/logging"
)

const (
	CookieName    = "relay_session"
	DefaultMaxAge = 7 * 24 * time.Hour
)

// Session is one request's view of the session data.
type Session struct {
	id      string
	values  map[string]string
	changed bool
	rotate  bool
	cleared bool
}

func (s *Session) Get(key string) string {
	return s.values[key]
}

func (s *Session) Set(key, value string) {
	s.values[key] = value
	s.changed = true
}

func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.changed = true
	}
}

// Pop returns and removes key.
func (s *Session) Pop(key string) string {
	v := s.values[key]
	s.Delete(key)
	return v
}

// Clear drops all values and deletes the stored session.
func (s *Session) Clear() {
	s.values = map[string]string{}
	s.cleared = true
	s.changed = true
}

// RotateID issues a new session id on save. Call it on privilege changes.
func (s *Session) RotateID() {
	s.rotate = true
	s.changed = true
}

type Options struct {
	Secret string
	MaxAge time.Duration
	Secure bool
}

// Store loads and saves sessions.
type Store struct {
	db     *gorm.DB
	secret []byte
	maxAge time.Duration
	secure bool
	log    logging.Logger
	now    func() time.Time
}

// NewStore builds a session store. An empty secret is replaced by a random
// one, which invalidates every session on restart.
func NewStore(database *gorm.DB, opts Options, log logging.Logger) *Store {
	log = log.WithComponent("session")
	secret := []byte(opts.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
		log.Warn("SESSION_SECRET is not set; using a random secret, sessions will not survive a restart")
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	return &Store{
		db:     database,
		secret: secret,
		maxAge: opts.MaxAge,
		secure: opts.Secure,
		log:    log,
		now:    time.Now,
	}
}

func (st *Store) sign(id string) string {
	mac := hmac.New(sha256.New, st.secret)
	mac.Write([]byte(id))
	return id + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (st *Store) verify(value string) (string, bool) {
	id, _, ok := strings.Cut(value, ".")
	if !ok || id == "" {
		return "", false
	}
	if !hmac.Equal([]byte(st.sign(id)), []byte(value)) {
		return "", false
	}
	return id, true
}

// Load returns the request's session, or an empty one when the cookie is
// missing, tampered or expired.
func (st *Store) Load(r *http.Request) *Session {
	sess := &Session{values: map[string]string{}}
	c, err := r.Cookie(CookieName)
	if err != nil {
		return sess
	}
	id, ok := st.verify(c.Value)
	if !ok {
		return sess
	}

	var row models.Session
	if err := st.db.WithContext(r.Context()).First(&row, "id = ?", id).Error; err != nil {
		return sess
	}
	if !st.now().Before(row.ExpiresAt) {
		st.db.Delete(&models.Session{}, "id = ?", id)
		return sess
	}
	sess.id = row.ID
	for k, v := range row.Data {
		sess.values[k] = v
	}
	return sess
}

// Save persists sess and writes the cookie. It must run before the response
// headers are sent.
func (st *Store) Save(w http.ResponseWriter, r *http.Request, sess *Session) error {
	if !sess.changed {
		return nil
	}
	database := st.db.WithContext(r.Context())

	if sess.id != "" && (sess.cleared || sess.rotate) {
		if err := database.Delete(&models.Session{}, "id = ?", sess.id).Error; err != nil {
			return err
		}
		if sess.cleared && len(sess.values) == 0 {
			sess.id = ""
			st.expireCookie(w)
			return nil
		}
		sess.id = ""
	}
	if len(sess.values) == 0 {
		if sess.id != "" {
			if err := database.Delete(&models.Session{}, "id = ?", sess.id).Error; err != nil {
				return err
			}
			sess.id = ""
		}
		st.expireCookie(w)
		return nil
	}

	if sess.id == "" {
		sess.id = uuid.NewString()
	}
	row := models.Session{
		ID:        sess.id,
		Data:      sess.values,
		ExpiresAt: st.now().Add(st.maxAge).UTC(),
	}
	if err := database.Save(&row).Error; err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    st.sign(sess.id),
		Path:     "/",
		MaxAge:   int(st.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   st.secure,
		SameSite: http.SameSiteLaxMode,
	})
	sess.changed, sess.rotate, sess.cleared = false, false, false
	return nil
}

func (st *Store) expireCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   st.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// PurgeExpired deletes expired session rows.
func (st *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res := st.db.WithContext(ctx).Where("expires_at <= ?", st.now().UTC()).Delete(&models.Session{})
	return res.RowsAffected, res.Error
}

type contextKey struct{}

// FromContext returns the session loaded by Middleware. Outside the
// middleware it returns a detached empty session.
func FromContext(ctx context.Context) *Session {
	if s, ok := ctx.Value(contextKey{}).(*Session); ok {
		return s
	}
	return &Session{values: map[string]string{}}
}

// WithSession stores sess in ctx.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// Middleware loads the session for each request and saves changes just
// before the response is first written.
func (st *Store) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := st.Load(r)
		sw := &savingWriter{ResponseWriter: w}
		sw.save = func() {
			if err := st.Save(w, r, sess); err != nil {
				logging.FromContext(r.Context()).Error("Failed to save session", err)
			}
		}
		next.ServeHTTP(sw, r.WithContext(WithSession(r.Context(), sess)))
		sw.once.Do(sw.save)
	})
}

type savingWriter struct {
	http.ResponseWriter
	save func()
	once sync.Once
}

func (w *savingWriter) WriteHeader(code int) {
	w.once.Do(w.save)
	w.ResponseWriter.WriteHeader(code)
}

func (w *savingWriter) Write(b []byte) (int, error) {
	w.once.Do(w.save)
	return w.ResponseWriter.Write(b)
}

func (w *savingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
