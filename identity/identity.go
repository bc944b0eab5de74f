// Package identity resolves admin bearer tokens against an OAuth token-info
// endpoint and an email allow-list.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// DefaultTokenInfoURL is Google's ID-token introspection endpoint.
const DefaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// Config holds the verifier's process-wide settings.
type Config struct {
	// AllowList holds the admin emails. Empty denies everyone.
	AllowList []string
	// TokenInfoURL is queried with ?id_token=<token>. Defaults to
	// DefaultTokenInfoURL.
	TokenInfoURL string
	// Timeout bounds a single token-info request. Defaults to 5s.
	Timeout time.Duration
}

// Verifier checks tokens. It is safe for concurrent use and holds no
// per-token state.
type Verifier struct {
	allow    map[string]struct{}
	endpoint string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithHTTPClient replaces the outbound client.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.client = c }
}

// WithLogger sets the logger (default: no-op).
func WithLogger(l *zap.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

// errRejected marks a definitive "this token is not valid" answer from the
// provider. It does not count against the breaker.
var errRejected = errors.New("token rejected")

// NewVerifier builds a Verifier from cfg.
func NewVerifier(cfg Config, opts ...Option) *Verifier {
	if cfg.TokenInfoURL == "" {
		cfg.TokenInfoURL = DefaultTokenInfoURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	v := &Verifier{
		allow:    make(map[string]struct{}, len(cfg.AllowList)),
		endpoint: cfg.TokenInfoURL,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   zap.NewNop(),
	}
	for _, email := range cfg.AllowList {
		if email = normalize(email); email != "" {
			v.allow[email] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(v)
	}
	v.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "tokeninfo",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			v.logger.Warn("identity breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errRejected)
		},
	})
	return v
}

// Enabled reports whether any email is allow-listed.
func (v *Verifier) Enabled() bool { return len(v.allow) > 0 }

// Verify returns the token's email when the provider vouches for it and the
// email is allow-listed. Every failure is reported as ok=false.
func (v *Verifier) Verify(ctx context.Context, token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" || len(v.allow) == 0 {
		return "", false
	}
	res, err := v.breaker.Execute(func() (any, error) {
		return v.lookup(ctx, token)
	})
	if err != nil {
		if !errors.Is(err, errRejected) {
			v.logger.Warn("token verification failed", zap.Error(err))
		}
		return "", false
	}
	email := res.(string)
	if _, ok := v.allow[normalize(email)]; !ok {
		return "", false
	}
	return email, true
}

type tokenInfo struct {
	Email string `json:"email"`
}

func (v *Verifier) lookup(ctx context.Context, token string) (string, error) {
	u := v.endpoint + "?id_token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("tokeninfo status %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", errRejected
	}
	var info tokenInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&info); err != nil {
		return "", errRejected
	}
	if strings.TrimSpace(info.Email) == "" {
		return "", errRejected
	}
	return info.Email, nil
}

// ParseAllowList splits a comma-separated list of emails, trimming
// whitespace and dropping empties.
func ParseAllowList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
