package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

type contextKey string

// ContextKeySubject holds the authenticated wallet address for the request.
const ContextKeySubject contextKey = "gateway.subject"

// Authenticator validates HS256 bearer tokens minted by the wallet onboarding
// flow. The token subject is the caller's wallet address.
type Authenticator struct {
	secret   []byte
	issuer   string
	audience string
	skew     time.Duration
}

// NewAuthenticator builds an authenticator for the given shared secret.
func NewAuthenticator(secret, issuer, audience string, skew time.Duration) *Authenticator {
	if skew <= 0 {
		skew = 2 * time.Minute
	}
	return &Authenticator{
		secret:   []byte(strings.TrimSpace(secret)),
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
		skew:     skew,
	}
}

// Middleware enforces a valid token and stashes the subject in the request
// context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		raw := strings.TrimSpace(strings.TrimPrefix(header, prefix))
		subject, err := a.verify(raw)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ContextKeySubject, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) verify(raw string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithAudience(a.audience),
		jwt.WithLeeway(a.skew),
	)
	claims := &jwt.RegisteredClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}); err != nil {
		return "", err
	}
	return TranslateWalletAddress(claims.Subject)
}

// Subject extracts the authenticated wallet party id from a request context.
func Subject(ctx context.Context) string {
	subject, _ := ctx.Value(ContextKeySubject).(string)
	return subject
}

// MintToken issues a token for the given wallet address. Exposed for the CLI
// and tests; production tokens come from the wallet onboarding service.
func (a *Authenticator) MintToken(walletAddress string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   walletAddress,
		Issuer:    a.issuer,
		Audience:  jwt.ClaimStrings{a.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

type rateEntry struct {
	limiter *rate.Limiter
}

// RateLimiter throttles requests per authenticated subject.
type RateLimiter struct {
	mu                sync.Mutex
	visitors          map[string]*rateEntry
	requestsPerMinute float64
	burst             int
}

// NewRateLimiter builds a per-subject limiter.
func NewRateLimiter(requestsPerMinute float64, burst int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		visitors:          make(map[string]*rateEntry),
		requestsPerMinute: requestsPerMinute,
		burst:             burst,
	}
}

// Middleware rejects requests exceeding the per-subject budget.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := Subject(r.Context())
		if subject == "" {
			subject = r.RemoteAddr
		}
		if !l.obtain(subject).Allow() {
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) obtain(id string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.visitors[id]
	if ok {
		return entry.limiter
	}
	limiter := rate.NewLimiter(rate.Limit(l.requestsPerMinute/60.0), l.burst)
	l.visitors[id] = &rateEntry{limiter: limiter}
	return limiter
}
