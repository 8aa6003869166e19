package companies

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	refCacheTTL = time.Hour
	maxCodeTry  = 10
)

// Service manages companies and serves code lookups to the documents service.
type Service struct {
	repo   Repository
	rdb    *redis.Client
	logger *slog.Logger
}

// NewService creates a company service. rdb may be nil; lookups then always
// hit the database.
func NewService(repo Repository, rdb *redis.Client, logger *slog.Logger) *Service {
	return &Service{repo: repo, rdb: rdb, logger: logger}
}

// Create inserts a company. A blank code is derived from the name initials;
// collisions get a numeric suffix.
func (s *Service) Create(ctx context.Context, req CreateCompanyRequest) (Company, error) {
	code := strings.ToUpper(req.Code)
	if code == "" {
		derived, err := s.availableCode(ctx, DeriveCode(req.Name))
		if err != nil {
			return Company{}, err
		}
		code = derived
	}
	return s.repo.Create(ctx, Company{
		Name:    req.Name,
		Code:    code,
		Address: req.Address,
		Email:   req.Email,
		Phone:   req.Phone,
	})
}

func (s *Service) availableCode(ctx context.Context, base string) (string, error) {
	if base == "" {
		base = "CO"
	}
	taken, err := s.repo.CodeExists(ctx, base)
	if err != nil {
		return "", err
	}
	if !taken {
		return base, nil
	}
	for i := 2; i < maxCodeTry; i++ {
		candidate := fmt.Sprintf("%s%d", base, i)
		taken, err := s.repo.CodeExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrDuplicateCode
}

func (s *Service) Get(ctx context.Context, id int64) (Company, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Company, error) {
	return s.repo.List(ctx)
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateCompanyRequest) (Company, error) {
	if err := s.repo.Update(ctx, id, Company{
		Name:    req.Name,
		Address: req.Address,
		Email:   req.Email,
		Phone:   req.Phone,
	}); err != nil {
		return Company{}, err
	}
	s.invalidateRef(ctx, id)
	return s.repo.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateRef(ctx, id)
	return nil
}

// CompanyRef resolves a company's code and name, caching the pair in Redis.
// Document creation is the hot caller; every generated number embeds the code.
func (s *Service) CompanyRef(ctx context.Context, id int64) (string, string, error) {
	key := refCacheKey(id)
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, key).Result(); err == nil {
			if code, name, ok := strings.Cut(cached, "\x00"); ok {
				return code, name, nil
			}
		}
	}

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", "", err
	}
	if s.rdb != nil {
		if err := s.rdb.Set(ctx, key, c.Code+"\x00"+c.Name, refCacheTTL).Err(); err != nil {
			s.logger.Warn("cache company ref", slog.Int64("company_id", id), slog.Any("error", err))
		}
	}
	return c.Code, c.Name, nil
}

func (s *Service) invalidateRef(ctx context.Context, id int64) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, refCacheKey(id)).Err(); err != nil {
		s.logger.Warn("invalidate company ref", slog.Int64("company_id", id), slog.Any("error", err))
	}
}

func refCacheKey(id int64) string {
	return fmt.Sprintf("company:ref:%d", id)
}
