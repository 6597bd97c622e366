// Package session manages cookie plus crumb sessions for providers that require
// a handshake before data requests, and the provider-wide block cooldown that
// follows an authorization failure.
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/syncx"

	"eodprices/pkg/httpx"
)

const (
	DefaultTTL      = 30 * time.Minute
	DefaultCooldown = 6 * time.Hour

	maxCrumbLen  = 64
	handshakeKey = "handshake"
)

// ErrBlocked is reported while the provider is in its cooldown window.
var ErrBlocked = errors.New("session: provider blocked")

// Session is a cookie plus crumb pair obtained from the handshake.
type Session struct {
	Cookies   []*http.Cookie
	Crumb     string
	FetchedAt time.Time
}

// RequestOptions returns the request options presenting this session's cookies.
func (s *Session) RequestOptions() []httpx.RequestOption {
	if s == nil {
		return nil
	}
	opts := make([]httpx.RequestOption, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		opts = append(opts, httpx.WithCookie(&http.Cookie{Name: c.Name, Value: c.Value}))
	}
	return opts
}

// Getter is the subset of the HTTP client used by the manager.
type Getter interface {
	Get(ctx context.Context, url string, opts ...httpx.RequestOption) (*httpx.Response, error)
}

// Config holds the handshake endpoints and timings.
type Config struct {
	CookieURL string
	CrumbURL  string
	TTL       time.Duration
	Cooldown  time.Duration
}

// Manager owns one provider's session and block state.
type Manager struct {
	client Getter
	cfg    Config
	now    func() time.Time
	flight syncx.SingleFlight

	mu           sync.Mutex
	current      *Session
	blockedUntil time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs a Manager.
func NewManager(client Getter, cfg Config, opts ...Option) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	m := &Manager{client: client, cfg: cfg, now: time.Now, flight: syncx.NewSingleFlight()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a usable session or nil. It never returns an error: nil means the
// provider cannot be used right now. The handshake runs outside the manager's
// lock and concurrent callers share one handshake.
func (m *Manager) Get(ctx context.Context) *Session {
	if sess, done := m.cached(); done {
		return sess
	}
	v, _ := m.flight.Do(handshakeKey, func() (any, error) {
		if sess, done := m.cached(); done {
			return sess, nil
		}
		sess, err := m.handshake(ctx)

		m.mu.Lock()
		defer m.mu.Unlock()
		if err != nil {
			if httpx.IsStatus(err, http.StatusUnauthorized) {
				m.blockLocked(ctx)
			} else {
				logx.WithContext(ctx).Errorf("session: handshake failed: %v", err)
			}
			return (*Session)(nil), nil
		}
		// A data request may have reported a 401 while the handshake ran.
		if m.now().Before(m.blockedUntil) {
			return (*Session)(nil), nil
		}
		m.current = sess
		return sess, nil
	})
	sess, _ := v.(*Session)
	return sess
}

// cached reports the session to use without a handshake. done is true when the
// provider is blocked or the current session is still within its TTL.
func (m *Manager) cached() (sess *Session, done bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if now.Before(m.blockedUntil) {
		return nil, true
	}
	if m.current != nil && now.Sub(m.current.FetchedAt) < m.cfg.TTL {
		return m.current, true
	}
	m.current = nil
	return nil, false
}

func (m *Manager) handshake(ctx context.Context) (*Session, error) {
	var cookies []*http.Cookie
	resp, err := m.client.Get(ctx, m.cfg.CookieURL)
	switch {
	case err == nil:
		cookies = resp.Cookies()
	default:
		// The cookie endpoint may answer with an error page that still sets the cookie.
		var httpErr *httpx.HTTPError
		if !errors.As(err, &httpErr) || httpErr.Status == http.StatusUnauthorized {
			return nil, err
		}
		cookies = (&http.Response{Header: httpErr.Header}).Cookies()
	}
	if len(cookies) == 0 {
		return nil, errors.New("session: cookie endpoint set no cookie")
	}

	sess := &Session{Cookies: cookies}
	crumbResp, err := m.client.Get(ctx, m.cfg.CrumbURL, sess.RequestOptions()...)
	if err != nil {
		return nil, err
	}
	crumb := strings.TrimSpace(string(crumbResp.Body))
	if crumb == "" || len(crumb) > maxCrumbLen || strings.ContainsAny(crumb, "<> \n") {
		return nil, errors.New("session: invalid crumb")
	}
	sess.Crumb = crumb
	sess.FetchedAt = m.now()
	return sess, nil
}

// ReportUnauthorized records a 401 seen by a data request and starts the cooldown.
func (m *Manager) ReportUnauthorized(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockLocked(ctx)
}

func (m *Manager) blockLocked(ctx context.Context) {
	m.current = nil
	m.blockedUntil = m.now().Add(m.cfg.Cooldown)
	logx.WithContext(ctx).Errorf("session: unauthorized, provider blocked until %s", m.blockedUntil.Format(time.RFC3339))
}

// Invalidate drops the cached session without touching the block state.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
}

// Blocked reports whether the provider is in its cooldown window.
func (m *Manager) Blocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Before(m.blockedUntil)
}

// BlockedUntil returns the end of the current or last cooldown window.
func (m *Manager) BlockedUntil() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blockedUntil
}

// State is a point-in-time view for status reporting.
type State struct {
	HasSession   bool
	FetchedAt    time.Time
	Blocked      bool
	BlockedUntil time.Time
}

// Snapshot returns the manager's state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := State{
		Blocked:      m.now().Before(m.blockedUntil),
		BlockedUntil: m.blockedUntil,
	}
	if m.current != nil {
		st.HasSession = true
		st.FetchedAt = m.current.FetchedAt
	}
	return st
}
