package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradedocs/tradedocs/internal/shared"
)

type memRepo struct {
	keys map[string]APIKey
}

func newMemRepo() *memRepo {
	return &memRepo{keys: make(map[string]APIKey)}
}

func (r *memRepo) Insert(_ context.Context, key APIKey) error {
	r.keys[key.KeyID] = key
	return nil
}

func (r *memRepo) FindByKeyID(_ context.Context, keyID string) (*APIKey, error) {
	key, ok := r.keys[keyID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &key, nil
}

func (r *memRepo) TouchLastUsed(_ context.Context, keyID string, at time.Time) error {
	key, ok := r.keys[keyID]
	if !ok {
		return shared.ErrNotFound
	}
	key.LastUsedAt = &at
	r.keys[keyID] = key
	return nil
}

func (r *memRepo) Revoke(_ context.Context, keyID string, at time.Time) error {
	key, ok := r.keys[keyID]
	if !ok || key.RevokedAt != nil {
		return shared.ErrNotFound
	}
	key.RevokedAt = &at
	r.keys[keyID] = key
	return nil
}

func (r *memRepo) List(_ context.Context) ([]APIKey, error) {
	out := make([]APIKey, 0, len(r.keys))
	for _, key := range r.keys {
		out = append(out, key)
	}
	return out, nil
}

func TestMintAndVerify(t *testing.T) {
	svc := NewService(newMemRepo())

	minted, err := svc.Mint(context.Background(), "ci")
	require.NoError(t, err)
	assert.Equal(t, "ci", minted.Name)
	assert.Contains(t, minted.Token, ".")
	assert.NotContains(t, minted.Token, minted.SecretHash)

	key, err := svc.Verify(context.Background(), minted.Token)
	require.NoError(t, err)
	assert.Equal(t, minted.KeyID, key.KeyID)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	svc := NewService(newMemRepo())
	minted, err := svc.Mint(context.Background(), "ci")
	require.NoError(t, err)

	cases := []string{
		"",
		"no-dot-here",
		minted.KeyID + ".wrong-secret",
		"unknown-key." + strings.SplitN(minted.Token, ".", 2)[1],
	}
	for _, token := range cases {
		_, err := svc.Verify(context.Background(), token)
		assert.ErrorIs(t, err, shared.ErrUnauthorized, "token %q", token)
	}
}

func TestVerifyRejectsRevokedKey(t *testing.T) {
	svc := NewService(newMemRepo())
	minted, err := svc.Mint(context.Background(), "ci")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(context.Background(), minted.KeyID))

	_, err = svc.Verify(context.Background(), minted.Token)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}
