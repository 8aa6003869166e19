package companies

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	Repository

	companies map[int64]Company
	taken     map[string]bool
	nextID    int64
	getCalls  int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		companies: make(map[int64]Company),
		taken:     make(map[string]bool),
		nextID:    1,
	}
}

func (r *stubRepo) Create(_ context.Context, c Company) (Company, error) {
	if r.taken[c.Code] {
		return Company{}, ErrDuplicateCode
	}
	c.ID = r.nextID
	r.nextID++
	r.companies[c.ID] = c
	r.taken[c.Code] = true
	return c, nil
}

func (r *stubRepo) Get(_ context.Context, id int64) (Company, error) {
	r.getCalls++
	c, ok := r.companies[id]
	if !ok {
		return Company{}, ErrNotFound
	}
	return c, nil
}

func (r *stubRepo) CodeExists(_ context.Context, code string) (bool, error) {
	return r.taken[code], nil
}

func TestDeriveCode(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Anderson Plumbing Co", "APC"},
		{"acme", "A"},
		{"Four Word Company Name Extra", "FWCN"},
		{"  spaced   out  ", "SO"},
		{"42 North Builders", "4NB"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DeriveCode(tc.name), "name %q", tc.name)
	}
}

func TestCreateDerivesCode(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil, slog.New(slog.DiscardHandler))

	c, err := svc.Create(context.Background(), CreateCompanyRequest{Name: "Anderson Plumbing Co"})
	require.NoError(t, err)
	assert.Equal(t, "APC", c.Code)

	// Same initials collide; the second company gets a suffixed code.
	c2, err := svc.Create(context.Background(), CreateCompanyRequest{Name: "Atlantic Paint Crew"})
	require.NoError(t, err)
	assert.Equal(t, "APC2", c2.Code)
}

func TestCreateUppercasesExplicitCode(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil, slog.New(slog.DiscardHandler))

	c, err := svc.Create(context.Background(), CreateCompanyRequest{Name: "Acme", Code: "acme"})
	require.NoError(t, err)
	assert.Equal(t, "ACME", c.Code)
}

func TestCompanyRefCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	repo := newStubRepo()
	svc := NewService(repo, rdb, slog.New(slog.DiscardHandler))

	created, err := svc.Create(context.Background(), CreateCompanyRequest{Name: "Anderson Plumbing Co"})
	require.NoError(t, err)

	code, name, err := svc.CompanyRef(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "APC", code)
	assert.Equal(t, "Anderson Plumbing Co", name)
	firstCalls := repo.getCalls

	code, name, err = svc.CompanyRef(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "APC", code)
	assert.Equal(t, "Anderson Plumbing Co", name)
	assert.Equal(t, firstCalls, repo.getCalls, "second lookup should be served from cache")
}

func TestCompanyRefMissingCompany(t *testing.T) {
	svc := NewService(newStubRepo(), nil, slog.New(slog.DiscardHandler))

	_, _, err := svc.CompanyRef(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}
