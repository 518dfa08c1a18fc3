// Package auth verifies who is calling: Firebase session cookies and ID
// tokens in production, a static token table for local deployments.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// SessionTTL is the lifetime of an exchanged session cookie
const SessionTTL = 5 * 24 * time.Hour

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrInvalidToken    = errors.New("invalid or expired credentials")
)

// Identity is an authenticated user
type Identity struct {
	UserID string `json:"uid"`
	Email  string `json:"email,omitempty"`
}

// Verifier authenticates requests
type Verifier interface {
	// VerifySession validates a session cookie value
	VerifySession(ctx context.Context, cookie string) (*Identity, error)
	// VerifyToken validates a bearer ID token
	VerifyToken(ctx context.Context, token string) (*Identity, error)
	// CreateSession exchanges an ID token for a session cookie value
	CreateSession(ctx context.Context, idToken string, ttl time.Duration) (string, error)
}

// TokenClient is the subset of the Firebase Auth client used here
type TokenClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
	VerifySessionCookie(ctx context.Context, sessionCookie string) (*fbauth.Token, error)
	SessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error)
}

// NewFirebaseApp initializes a Firebase app from a service-account file.
// An empty path falls back to application default credentials.
func NewFirebaseApp(ctx context.Context, credentialsFile, projectID string) (*firebase.App, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	var cfg *firebase.Config
	if projectID != "" {
		cfg = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}
	return app, nil
}

// FirebaseVerifier verifies credentials with Firebase Auth
type FirebaseVerifier struct {
	client TokenClient
}

// NewFirebaseVerifier creates a verifier backed by a Firebase Auth client
func NewFirebaseVerifier(client TokenClient) *FirebaseVerifier {
	return &FirebaseVerifier{client: client}
}

// VerifySession validates a session cookie
func (v *FirebaseVerifier) VerifySession(ctx context.Context, cookie string) (*Identity, error) {
	if cookie == "" {
		return nil, ErrUnauthenticated
	}
	token, err := v.client.VerifySessionCookie(ctx, cookie)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return identityFromToken(token), nil
}

// VerifyToken validates an ID token
func (v *FirebaseVerifier) VerifyToken(ctx context.Context, idToken string) (*Identity, error) {
	if idToken == "" {
		return nil, ErrUnauthenticated
	}
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return identityFromToken(token), nil
}

// CreateSession exchanges a verified ID token for a session cookie
func (v *FirebaseVerifier) CreateSession(ctx context.Context, idToken string, ttl time.Duration) (string, error) {
	if idToken == "" {
		return "", ErrUnauthenticated
	}
	if ttl <= 0 {
		ttl = SessionTTL
	}
	cookie, err := v.client.SessionCookie(ctx, idToken, ttl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return cookie, nil
}

func identityFromToken(token *fbauth.Token) *Identity {
	id := &Identity{UserID: token.UID}
	if email, ok := token.Claims["email"].(string); ok {
		id.Email = email
	}
	return id
}

// StaticVerifier accepts a fixed token-to-user table. The token doubles as
// the session cookie value.
type StaticVerifier struct {
	tokens map[string]string
}

// NewStaticVerifier creates a verifier from token -> user ID pairs
func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	copied := make(map[string]string, len(tokens))
	for token, uid := range tokens {
		copied[token] = uid
	}
	return &StaticVerifier{tokens: copied}
}

func (v *StaticVerifier) lookup(token string) (*Identity, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	uid, ok := v.tokens[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	return &Identity{UserID: uid}, nil
}

// VerifySession validates a session cookie
func (v *StaticVerifier) VerifySession(ctx context.Context, cookie string) (*Identity, error) {
	return v.lookup(cookie)
}

// VerifyToken validates a bearer token
func (v *StaticVerifier) VerifyToken(ctx context.Context, token string) (*Identity, error) {
	return v.lookup(token)
}

// CreateSession returns the token itself once it is known
func (v *StaticVerifier) CreateSession(ctx context.Context, idToken string, ttl time.Duration) (string, error) {
	if _, err := v.lookup(idToken); err != nil {
		return "", err
	}
	return idToken, nil
}

var (
	_ Verifier    = (*FirebaseVerifier)(nil)
	_ Verifier    = (*StaticVerifier)(nil)
	_ TokenClient = (*fbauth.Client)(nil)
)
