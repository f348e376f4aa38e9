package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/skyguide-inc/skyguide/internal/domain/session"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/persistence/models"
	"github.com/skyguide-inc/skyguide/internal/shared/errors"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.SessionModel{}, &models.UserModel{}, &models.ProfileModel{}))
	return db
}

type capturePublisher struct {
	mu     sync.Mutex
	events []session.ChangeEvent
}

func (p *capturePublisher) Publish(_ context.Context, ev session.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) updates() []session.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []session.ChangeEvent
	for _, ev := range p.events {
		if ev.Type == session.ChangeTypeUpdate {
			out = append(out, ev)
		}
	}
	return out
}

func createRecord(t *testing.T, repo *SessionRepository, userID, token string, at time.Time) *session.Record {
	t.Helper()
	rec, err := session.NewRecord(userID, token, session.DeviceInfo{UserAgent: "ua", Platform: "macOS"}, "198.51.99.1", 2*time.Hour, at)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), rec))
	return rec
}

func TestSessionRepository_CreateAndGet(t *testing.T) {
	repo := NewSessionRepository(setupTestDB(t), nil, logger.Nop())
	ctx := context.Background()

	rec := createRecord(t, repo, "user-1", "tok-a", baseTime)

	found, err := repo.GetByToken(ctx, "tok-a")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, found.ID)
	assert.Equal(t, session.StatusActive, found.Status)
	assert.Equal(t, "macOS", found.DeviceInfo.Platform)
	assert.True(t, found.ExpiresAt.Equal(baseTime.Add(2*time.Hour)))

	_, err = repo.GetByToken(ctx, "missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestSessionRepository_InvalidateOthers(t *testing.T) {
	pub := &capturePublisher{}
	repo := NewSessionRepository(setupTestDB(t), pub, logger.Nop())
	ctx := context.Background()

	a := createRecord(t, repo, "user-1", "tok-a", baseTime)
	createRecord(t, repo, "user-1", "tok-b", baseTime)
	other := createRecord(t, repo, "user-2", "tok-c", baseTime)

	n, err := repo.InvalidateOthers(ctx, "user-1", "tok-b", baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	gotA, err := repo.GetByToken(ctx, "tok-a")
	require.NoError(t, err)
	assert.Equal(t, session.StatusInvalidated, gotA.Status)
	require.NotNil(t, gotA.InvalidatedAt)

	valid, err := repo.IsValid(ctx, "tok-b", baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, valid, "the excepted token stays active")

	valid, err = repo.IsValid(ctx, "tok-c", baseTime)
	require.NoError(t, err)
	assert.True(t, valid, "other users are untouched")
	assert.Equal(t, "user-2", other.UserID)

	updates := pub.updates()
	require.Len(t, updates, 1)
	assert.Equal(t, a.ID, updates[0].RecordID)
	assert.True(t, updates[0].InvalidatesToken("tok-a"))
}

func TestSessionRepository_InvalidateOthers_NoPriorRecord(t *testing.T) {
	repo := NewSessionRepository(setupTestDB(t), nil, logger.Nop())

	n, err := repo.InvalidateOthers(context.Background(), "nobody", "", baseTime)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionRepository_InvalidateOthers_EmptyExceptInvalidatesAll(t *testing.T) {
	repo := NewSessionRepository(setupTestDB(t), nil, logger.Nop())
	ctx := context.Background()

	createRecord(t, repo, "user-1", "tok-a", baseTime)
	createRecord(t, repo, "user-1", "tok-b", baseTime)

	n, err := repo.InvalidateOthers(ctx, "user-1", "", baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	active, err := repo.ListActiveByUserID(ctx, "user-1", baseTime)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSessionRepository_IsValidHonoursExpiry(t *testing.T) {
	repo := NewSessionRepository(setupTestDB(t), nil, logger.Nop())
	ctx := context.Background()
	createRecord(t, repo, "user-1", "tok-a", baseTime)

	valid, err := repo.IsValid(ctx, "tok-a", baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = repo.IsValid(ctx, "tok-a", baseTime.Add(3*time.Hour))
	require.NoError(t, err)
	assert.False(t, valid)

	valid, err = repo.IsValid(ctx, "", baseTime)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestSessionRepository_IsValidRejectsSupersededRecord(t *testing.T) {
	repo := NewSessionRepository(setupTestDB(t), nil, logger.Nop())
	ctx := context.Background()

	// Two concurrent sign-ins both commit before either invalidates the other.
	createRecord(t, repo, "user-1", "tok-old", baseTime)
	createRecord(t, repo, "user-1", "tok-new", baseTime.Add(time.Minute))
	createRecord(t, repo, "user-2", "tok-other", baseTime)

	now := baseTime.Add(2 * time.Minute)
	valid, err := repo.IsValid(ctx, "tok-old", now)
	require.NoError(t, err)
	assert.False(t, valid, "the older record loses")

	valid, err = repo.IsValid(ctx, "tok-new", now)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = repo.IsValid(ctx, "tok-other", now)
	require.NoError(t, err)
	assert.True(t, valid, "other users are untouched")

	require.NoError(t, repo.Invalidate(ctx, "tok-new", now))
	valid, err = repo.IsValid(ctx, "tok-old", now)
	require.NoError(t, err)
	assert.True(t, valid, "an ended newer record no longer supersedes")
}

func TestSessionRepository_UpdateActivity(t *testing.T) {
	repo := NewSessionRepository(setupTestDB(t), nil, logger.Nop())
	ctx := context.Background()
	createRecord(t, repo, "user-1", "tok-a", baseTime)

	later := baseTime.Add(10 * time.Minute)
	require.NoError(t, repo.UpdateActivity(ctx, "tok-a", later))

	got, err := repo.GetByToken(ctx, "tok-a")
	require.NoError(t, err)
	assert.True(t, got.LastActivity.Equal(later))
	assert.True(t, got.ExpiresAt.Equal(baseTime.Add(2*time.Hour)), "activity never extends expiry")

	require.NoError(t, repo.Invalidate(ctx, "tok-a", later))
	err = repo.UpdateActivity(ctx, "tok-a", later)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestSessionRepository_InvalidateIsIdempotent(t *testing.T) {
	pub := &capturePublisher{}
	repo := NewSessionRepository(setupTestDB(t), pub, logger.Nop())
	ctx := context.Background()
	createRecord(t, repo, "user-1", "tok-a", baseTime)

	first := baseTime.Add(time.Minute)
	require.NoError(t, repo.Invalidate(ctx, "tok-a", first))
	require.NoError(t, repo.Invalidate(ctx, "tok-a", first.Add(time.Hour)))

	got, err := repo.GetByToken(ctx, "tok-a")
	require.NoError(t, err)
	require.NotNil(t, got.InvalidatedAt)
	assert.True(t, got.InvalidatedAt.Equal(first))
	assert.Len(t, pub.updates(), 1)
}

func TestSessionRepository_InvalidateExpired(t *testing.T) {
	pub := &capturePublisher{}
	repo := NewSessionRepository(setupTestDB(t), pub, logger.Nop())
	ctx := context.Background()

	createRecord(t, repo, "user-1", "old", baseTime)
	createRecord(t, repo, "user-2", "fresh", baseTime.Add(90*time.Minute))

	n, err := repo.InvalidateExpired(ctx, baseTime.Add(2*time.Hour+time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	old, err := repo.GetByToken(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, session.StatusInvalidated, old.Status)

	fresh, err := repo.GetByToken(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, fresh.Status)

	require.Len(t, pub.updates(), 1)
	assert.Equal(t, "user-1", pub.updates()[0].UserID)
}

func TestSessionRepository_InvalidateRowsSkipsConcurrentlyEnded(t *testing.T) {
	gdb := setupTestDB(t)
	pub := &capturePublisher{}
	repo := NewSessionRepository(gdb, pub, logger.Nop())
	ctx := context.Background()

	createRecord(t, repo, "user-1", "tok-a", baseTime)
	createRecord(t, repo, "user-1", "tok-b", baseTime)

	var rows []models.SessionModel
	require.NoError(t, gdb.Where("user_id = ?", "user-1").Order("token_hash").Find(&rows).Error)
	require.Len(t, rows, 2)

	first := baseTime.Add(time.Minute)
	require.NoError(t, repo.Invalidate(ctx, "tok-a", first))

	changed, err := repo.invalidateRows(gdb, rows, first.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.True(t, changed[0].MatchesToken("tok-b"))

	gotA, err := repo.GetByToken(ctx, "tok-a")
	require.NoError(t, err)
	require.NotNil(t, gotA.InvalidatedAt)
	assert.True(t, gotA.InvalidatedAt.Equal(first), "an ended row keeps its first stamp")
}

func TestSessionRepository_DuplicateTokenConflicts(t *testing.T) {
	repo := NewSessionRepository(setupTestDB(t), nil, logger.Nop())
	createRecord(t, repo, "user-1", "tok-a", baseTime)

	dup, err := session.NewRecord("user-2", "tok-a", session.DeviceInfo{}, "", time.Hour, baseTime)
	require.NoError(t, err)
	err = repo.Create(context.Background(), dup)
	assert.True(t, errors.IsConflictError(err))
}
