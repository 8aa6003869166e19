package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tradedocs/tradedocs/internal/shared"
)

const secretBytes = 24

// Service mints and verifies API keys.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Mint issues a new API key. The returned token has the form "keyID.secret"
// and is the only time the secret leaves the service in plaintext.
func (s *Service) Mint(ctx context.Context, name string) (*MintedKey, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("auth: generate secret: %w", err)
	}
	secret := hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash secret: %w", err)
	}

	key := APIKey{
		KeyID:      uuid.NewString(),
		Name:       name,
		SecretHash: string(hash),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, key); err != nil {
		return nil, err
	}
	return &MintedKey{APIKey: key, Token: key.KeyID + "." + secret}, nil
}

// Verify checks a "keyID.secret" token against the stored hash. Revoked or
// unknown keys fail with ErrUnauthorized.
func (s *Service) Verify(ctx context.Context, token string) (*APIKey, error) {
	keyID, secret, ok := strings.Cut(token, ".")
	if !ok || keyID == "" || secret == "" {
		return nil, shared.ErrUnauthorized
	}

	key, err := s.repo.FindByKeyID(ctx, keyID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrUnauthorized
		}
		return nil, err
	}
	if key.RevokedAt != nil {
		return nil, shared.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)); err != nil {
		return nil, shared.ErrUnauthorized
	}

	_ = s.repo.TouchLastUsed(ctx, keyID, time.Now().UTC())
	return key, nil
}

// Revoke disables a key.
func (s *Service) Revoke(ctx context.Context, keyID string) error {
	return s.repo.Revoke(ctx, keyID, time.Now().UTC())
}

// List returns all keys, hashes omitted via the JSON tags.
func (s *Service) List(ctx context.Context) ([]APIKey, error) {
	return s.repo.List(ctx)
}
