package auth

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

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the verified principal behind an accepted Google ID token.
// Sub is Google's stable account identifier; emails can change, sub cannot.
type Identity struct {
	Sub   string
	Email string
	Name  string
}

// Verifier checks an externally issued ID token and returns the identity it
// asserts. Implementations must reject expired or audience-mismatched tokens.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (Identity, error)
}

var (
	ErrMissingToken = errors.New("auth: missing token")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// GoogleVerifier validates ID tokens against Google's tokeninfo endpoint.
// When Audience is set, the token's aud claim must match it exactly.
type GoogleVerifier struct {
	HTTPClient *http.Client
	BaseURL    string
	Audience   string

	// sleep is replaced in tests.
	sleep func(time.Duration)
}

const (
	googleTokeninfoURL = "https://oauth2.googleapis.com/tokeninfo"
	clockSkewWait      = 2 * time.Second
)

func (g *GoogleVerifier) Verify(ctx context.Context, idToken string) (Identity, error) {
	if strings.TrimSpace(idToken) == "" {
		return Identity{}, ErrMissingToken
	}
	id, err := g.verifyOnce(ctx, idToken)
	if err != nil && isClockSkew(err) {
		// Freshly minted tokens can arrive before their iat on a skewed
		// clock. Wait once and retry.
		sleep := g.sleep
		if sleep == nil {
			sleep = time.Sleep
		}
		sleep(clockSkewWait)
		id, err = g.verifyOnce(ctx, idToken)
	}
	return id, err
}

func (g *GoogleVerifier) verifyOnce(ctx context.Context, idToken string) (Identity, error) {
	base := g.BaseURL
	if base == "" {
		base = googleTokeninfoURL
	}
	endpoint := base + "?id_token=" + url.QueryEscape(idToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Identity{}, err
	}
	client := g.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("tokeninfo request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Identity{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("%w: tokeninfo status %d: %s", ErrInvalidToken, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info struct {
		Aud           string `json:"aud"`
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified string `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return Identity{}, fmt.Errorf("%w: decode tokeninfo: %v", ErrInvalidToken, err)
	}
	if g.Audience != "" && info.Aud != g.Audience {
		return Identity{}, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}
	if info.Email == "" {
		return Identity{}, fmt.Errorf("%w: no email claim", ErrInvalidToken)
	}
	return Identity{Sub: info.Sub, Email: info.Email, Name: info.Name}, nil
}

func isClockSkew(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "token used too early")
}

// Claims is the session token payload issued after a successful Google
// verification.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Sessions signs and parses the service's own bearer tokens.
type Sessions struct {
	Secret []byte
	TTL    time.Duration

	// now is replaced in tests.
	now func() time.Time
}

const defaultSessionTTL = 12 * time.Hour

// Issue mints a session token for a verified identity.
func (s *Sessions) Issue(id Identity) (string, error) {
	if len(s.Secret) == 0 {
		return "", errors.New("auth: empty signing secret")
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	subject := id.Sub
	if subject == "" {
		subject = id.Email
	}
	issued := now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
		},
		Email: id.Email,
		Name:  id.Name,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.Secret)
}

// Parse validates a session token and returns its claims. The signing method
// is pinned to HS256.
func (s *Sessions) Parse(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// FromRequest extracts a bearer token from an Authorization header. It
// distinguishes a missing header from a malformed one.
func FromRequest(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", fmt.Errorf("%w: expected bearer scheme", ErrInvalidToken)
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
