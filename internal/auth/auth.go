// Package auth owns client identity, math challenges, and bearer tokens.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	mathrand "math/rand"
	"strings"
	"time"

	"github.com/herta-labs/vibechecker/internal/model"
	"github.com/herta-labs/vibechecker/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid client credentials")
	ErrInvalidChallenge   = errors.New("invalid or expired challenge")
	ErrInvalidToken       = errors.New("invalid token")
)

// TokenScope is the fixed scope granted to every issued token.
const TokenScope = "vibe.read vibe.write"

type Service struct {
	store        store.Store
	signingKey   []byte
	tokenTTL     time.Duration
	challengeTTL time.Duration
}

// Registration is returned from RegisterClient. ClientSecret is the only
// copy of the plaintext secret that will ever exist.
type Registration struct {
	ClientID     string
	ClientSecret string
}

// Token is an issued bearer credential plus its declared metadata.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int
	Scope       string
}

type tokenClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

func NewService(st store.Store, signingKey []byte, tokenTTL, challengeTTL time.Duration) *Service {
	return &Service{
		store:        st,
		signingKey:   signingKey,
		tokenTTL:     tokenTTL,
		challengeTTL: challengeTTL,
	}
}

func (s *Service) RegisterClient(ctx context.Context, name, email, uri string) (Registration, error) {
	secret, err := randomSecret(32)
	if err != nil {
		return Registration{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return Registration{}, err
	}
	client := &model.Client{
		ClientID:     "app_" + shortID(),
		SecretHash:   string(hash),
		AppName:      name,
		ContactEmail: email,
		HomepageURI:  uri,
		CreatedAt:    time.Now(),
	}
	if _, err := s.store.CreateClient(ctx, client); err != nil {
		return Registration{}, err
	}
	return Registration{ClientID: client.ClientID, ClientSecret: secret}, nil
}

func (s *Service) VerifyClient(ctx context.Context, clientID, secret string) (model.Client, error) {
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Client{}, ErrInvalidCredentials
		}
		return model.Client{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(secret)); err != nil {
		return model.Client{}, ErrInvalidCredentials
	}
	return client, nil
}

// EnsureDemoClient idempotently provisions a well-known client so the API
// is usable out of the box.
func (s *Service) EnsureDemoClient(ctx context.Context, clientID, secret string) error {
	if clientID == "" {
		return nil
	}
	if _, err := s.store.GetClient(ctx, clientID); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	client := &model.Client{
		ClientID:   clientID,
		SecretHash: string(hash),
		AppName:    "Demo App",
		CreatedAt:  time.Now(),
	}
	if _, err := s.store.CreateClient(ctx, client); err != nil && !errors.Is(err, store.ErrDuplicateClient) {
		return err
	}
	return nil
}

// CreateChallenge issues an addition puzzle. The answer stays server-side.
func (s *Service) CreateChallenge(ctx context.Context) (model.Challenge, error) {
	a := 6 + mathrand.Intn(45)
	b := 1 + mathrand.Intn(25)
	c := model.Challenge{
		ChallengeID: shortID(),
		Question:    fmt.Sprintf("%d+%d=?", a, b),
		Answer:      a + b,
		ExpiresAt:   time.Now().Add(s.challengeTTL),
	}
	if err := s.store.CreateChallenge(ctx, c); err != nil {
		return model.Challenge{}, err
	}
	return c, nil
}

// ConsumeChallenge verifies and burns a challenge. A challenge can succeed
// at most once; expired or unknown ids fail regardless of the answer.
func (s *Service) ConsumeChallenge(ctx context.Context, challengeID string, answer int) error {
	err := s.store.ConsumeChallenge(ctx, challengeID, answer)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidChallenge
	}
	return err
}

// IssueToken signs a self-contained bearer token for the client. Validity
// is determined by the signature and embedded expiry alone; there is no
// server-side session row.
func (s *Service) IssueToken(clientID string) (Token, error) {
	now := time.Now()
	claims := tokenClaims{
		Scope: TokenScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return Token{}, err
	}
	return Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokenTTL.Seconds()),
		Scope:       TokenScope,
	}, nil
}

// Authenticate validates a bearer token and resolves its client. A token
// whose client no longer exists is rejected even with a valid signature.
func (s *Service) Authenticate(ctx context.Context, bearer string) (model.Client, error) {
	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(bearer, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return model.Client{}, ErrInvalidToken
	}
	client, err := s.store.GetClient(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Client{}, ErrInvalidToken
		}
		return model.Client{}, err
	}
	return client, nil
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func randomSecret(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
