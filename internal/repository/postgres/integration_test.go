package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aifraenkel/artist-finance-manager-sub002/internal/domain/entity"
	"github.com/aifraenkel/artist-finance-manager-sub002/internal/domain/repository"
	apperrors "github.com/aifraenkel/artist-finance-manager-sub002/internal/pkg/errors"
	"github.com/aifraenkel/artist-finance-manager-sub002/pkg/database"
)

// PostgresRepoSuite runs the repositories against a throwaway postgres container.
type PostgresRepoSuite struct {
	suite.Suite
	pool     *dockertest.Pool
	resource *dockertest.Resource
	db       *gorm.DB
	pending  *PendingRegistrationRepo
	users    *UserRepo
}

func TestPostgresRepoSuite(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run postgres integration tests (requires docker)")
	}
	suite.Run(t, new(PostgresRepoSuite))
}

func (s *PostgresRepoSuite) SetupSuite() {
	pool, err := dockertest.NewPool("")
	s.Require().NoError(err)
	s.Require().NoError(pool.Client.Ping(), "docker is not reachable")
	pool.MaxWait = 2 * time.Minute
	s.pool = pool

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=test",
			"POSTGRES_PASSWORD=test",
			"POSTGRES_DB=registrations",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	s.Require().NoError(err)
	s.Require().NoError(resource.Expire(300))
	s.resource = resource

	dsn := fmt.Sprintf("host=localhost port=%s user=test password=test dbname=registrations sslmode=disable",
		resource.GetPort("5432/tcp"))
	s.Require().NoError(pool.Retry(func() error {
		db, err := database.NewPostgresDB(dsn, logger.Silent)
		if err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.Ping(); err != nil {
			return err
		}
		s.db = db
		return nil
	}))

	s.Require().NoError(database.MigrateDB(s.db, "file://../../../migrations"))

	s.pending, err = NewPendingRegistrationRepo(s.db)
	s.Require().NoError(err)
	s.users = NewUserRepo(s.db)
}

func (s *PostgresRepoSuite) TearDownSuite() {
	if s.resource != nil {
		if err := s.pool.Purge(s.resource); err != nil {
			s.T().Logf("failed to purge postgres container: %v", err)
		}
	}
}

func (s *PostgresRepoSuite) SetupTest() {
	s.Require().NoError(s.db.Exec(`TRUNCATE TABLE pending_registrations, users`).Error)
}

func (s *PostgresRepoSuite) newRecord(token, email string, createdAt time.Time, ttl time.Duration) *entity.PendingRegistration {
	rec := entity.NewPendingRegistration(token, email, "Ann", "https://app", createdAt, ttl)
	s.Require().NoError(s.pending.Create(context.Background(), rec))
	return rec
}

func (s *PostgresRepoSuite) TestCreate_OnePendingPerEmail() {
	ctx := context.Background()
	now := time.Now().UTC()
	s.newRecord("tok-1", "a@x.com", now, time.Hour)

	err := s.pending.Create(ctx, entity.NewPendingRegistration("tok-2", "a@x.com", "Ann", "https://app", now, time.Hour))
	s.ErrorIs(err, apperrors.ErrConflict)

	// once the first token is consumed a new one may be issued
	ok, err := s.pending.CompleteIfPending(ctx, "tok-1", now, nil)
	s.Require().NoError(err)
	s.True(ok)
	s.NoError(s.pending.Create(ctx, entity.NewPendingRegistration("tok-3", "a@x.com", "Ann", "https://app", now, time.Hour)))
}

func (s *PostgresRepoSuite) TestGetByToken_NotFound() {
	_, err := s.pending.GetByToken(context.Background(), "missing")
	s.ErrorIs(err, apperrors.ErrNotFound)
}

func (s *PostgresRepoSuite) TestCompleteIfPending_IsCompareAndSwap() {
	ctx := context.Background()
	now := time.Now().UTC()
	s.newRecord("tok-cas", "a@x.com", now, time.Hour)

	const callers = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.pending.CompleteIfPending(ctx, "tok-cas", time.Now().UTC(), nil)
			s.NoError(err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(1, wins)

	rec, err := s.pending.GetByToken(ctx, "tok-cas")
	s.Require().NoError(err)
	s.Equal(entity.RegistrationStatusCompleted, rec.Status)
	s.NotNil(rec.VerifiedAt)
}

func (s *PostgresRepoSuite) TestCompleteIfPending_RejectsExpired() {
	ctx := context.Background()
	now := time.Now().UTC()
	s.newRecord("tok-old", "a@x.com", now.Add(-2*time.Hour), time.Hour)

	ok, err := s.pending.CompleteIfPending(ctx, "tok-old", now, nil)
	s.Require().NoError(err)
	s.False(ok)

	ok, err = s.pending.ExpireIfPending(ctx, "tok-old")
	s.Require().NoError(err)
	s.True(ok)

	rec, err := s.pending.GetByToken(ctx, "tok-old")
	s.Require().NoError(err)
	s.Equal(entity.RegistrationStatusExpired, rec.Status)
}

func (s *PostgresRepoSuite) TestDeletePendingByTokens_SkipsNonPending() {
	ctx := context.Background()
	now := time.Now().UTC()
	s.newRecord("p1", "a@x.com", now, time.Hour)
	s.newRecord("p2", "b@x.com", now, time.Hour)
	s.newRecord("done", "c@x.com", now, time.Hour)
	_, err := s.pending.CompleteIfPending(ctx, "done", now, nil)
	s.Require().NoError(err)

	deleted, err := s.pending.DeletePendingByTokens(ctx, []string{"p1", "p2", "done"})
	s.Require().NoError(err)
	s.Equal(int64(2), deleted)

	_, err = s.pending.GetByToken(ctx, "done")
	s.NoError(err)

	deleted, err = s.pending.DeletePendingByTokens(ctx, nil)
	s.NoError(err)
	s.Zero(deleted)
}

func (s *PostgresRepoSuite) TestListings() {
	ctx := context.Background()
	now := time.Now().UTC()
	s.newRecord("l1", "a@x.com", now.Add(-time.Minute), time.Hour)
	s.newRecord("l2", "b@x.com", now, time.Hour)

	exists, err := s.pending.ExistsPendingByEmail(ctx, "a@x.com")
	s.Require().NoError(err)
	s.True(exists)

	byEmail, err := s.pending.ListPendingByEmail(ctx, "a@x.com")
	s.Require().NoError(err)
	s.Len(byEmail, 1)

	all, err := s.pending.ListPending(ctx)
	s.Require().NoError(err)
	s.Len(all, 2)

	listed, err := s.pending.List(ctx, repository.PendingRegistrationFilter{Status: entity.RegistrationStatusPending, Limit: 10})
	s.Require().NoError(err)
	s.Require().Len(listed, 2)
	s.Equal("l2", listed[0].Token, "newest first")
}

func (s *PostgresRepoSuite) TestUserRepo() {
	ctx := context.Background()
	user := &entity.User{UID: "5b0c7c1e-2d0b-4f7e-9d1c-0a7e4d2f9b11", Email: "a@x.com", DisplayName: "Ann"}
	s.Require().NoError(s.users.Create(ctx, user))
	s.ErrorIs(s.users.Create(ctx, &entity.User{UID: "other", Email: "a@x.com"}), apperrors.ErrConflict)

	got, err := s.users.GetByEmail(ctx, "a@x.com")
	s.Require().NoError(err)
	s.Equal(user.UID, got.UID)

	s.Require().NoError(s.users.RecordLogin(ctx, user.UID, time.Now().UTC()))
	s.Require().NoError(s.users.RecordLogin(ctx, user.UID, time.Now().UTC()))
	got, err = s.users.GetByUID(ctx, user.UID)
	s.Require().NoError(err)
	s.Equal(int64(2), got.LoginCount)
	s.NotNil(got.LastLoginAt)

	s.ErrorIs(s.users.RecordLogin(ctx, "unknown", time.Now().UTC()), apperrors.ErrNotFound)
	_, err = s.users.GetByEmail(ctx, "ghost@x.com")
	s.ErrorIs(err, apperrors.ErrNotFound)
}
