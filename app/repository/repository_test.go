package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/IntegrationGate/app/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Integration{}, &models.IntegrationSecret{}, &models.AuditLog{}))
	return db
}

func seedIntegration(t *testing.T, repo IntegrationRepository, userID uint, name string) *models.Integration {
	t.Helper()
	i := &models.Integration{
		Name:         name,
		ClientID:     fmt.Sprintf("client-%s", name),
		ClientSecret: "legacy-" + name,
		Status:       models.STATUS_ACTIVE,
		UserID:       userID,
	}
	require.NoError(t, repo.Create(context.Background(), i))
	return i
}

func TestIntegrationRepositoryLookup(t *testing.T) {
	ctx := context.Background()
	repo := NewIntegrationRepository(setupTestDB(t))

	created := seedIntegration(t, repo, 1, "crm")
	created.GrantPermission("posts", "read")
	created.AddScope("read")
	require.NoError(t, repo.Update(ctx, created))

	got, err := repo.GetByClientID(ctx, "client-crm")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "legacy-crm", got.ClientSecret)
	assert.True(t, got.HasPermission("posts", "read"))
	assert.True(t, got.HasScope("read"))

	_, err = repo.GetByClientID(ctx, "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = repo.GetByClientID(ctx, "  ")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	exists, err := repo.ClientIDExists(ctx, "client-crm")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestIntegrationRepositoryDeleteCascadesSecrets(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	integrations := NewIntegrationRepository(db)
	secrets := NewSecretRepository(db)

	i := seedIntegration(t, integrations, 1, "crm")
	require.NoError(t, secrets.Create(ctx, &models.IntegrationSecret{IntegrationID: i.ID, Name: "one", SecretKey: "k1", Status: models.STATUS_ACTIVE}))

	require.NoError(t, integrations.Delete(ctx, i.ID))

	_, err := integrations.GetByClientID(ctx, "client-crm")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	count, err := secrets.CountByIntegration(ctx, i.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	exists, err := integrations.ClientIDExists(ctx, "client-crm")
	require.NoError(t, err)
	assert.True(t, exists, "soft deleted client ids stay reserved")

	assert.ErrorIs(t, integrations.Delete(ctx, i.ID), gorm.ErrRecordNotFound)
}

func TestIntegrationRepositoryList(t *testing.T) {
	ctx := context.Background()
	repo := NewIntegrationRepository(setupTestDB(t))

	seedIntegration(t, repo, 1, "alpha")
	seedIntegration(t, repo, 1, "beta")
	other := seedIntegration(t, repo, 2, "gamma")
	inactive := seedIntegration(t, repo, 1, "delta")
	inactive.Status = models.STATUS_INACTIVE
	require.NoError(t, repo.Update(ctx, inactive))

	list, total, err := repo.List(ctx, IntegrationFilter{UserID: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, list, 3)
	for _, i := range list {
		assert.NotEqual(t, other.ID, i.ID)
	}

	_, total, err = repo.List(ctx, IntegrationFilter{UserID: 1, Status: models.STATUS_ACTIVE})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	list, total, err = repo.List(ctx, IntegrationFilter{UserID: 1, Search: "bet"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "beta", list[0].Name)

	list, total, err = repo.List(ctx, IntegrationFilter{UserID: 1, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, list, 2)
}

func TestSecretRepositoryRotate(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	i := seedIntegration(t, NewIntegrationRepository(db), 1, "crm")
	secrets := NewSecretRepository(db)

	for _, key := range []string{"k1", "k2"} {
		require.NoError(t, secrets.Create(ctx, &models.IntegrationSecret{IntegrationID: i.ID, Name: key, SecretKey: key, Status: models.STATUS_ACTIVE}))
	}

	rotated := &models.IntegrationSecret{Name: "X", SecretKey: "k3"}
	require.NoError(t, secrets.Rotate(ctx, i.ID, rotated))
	assert.NotZero(t, rotated.ID)

	all, err := secrets.ListByIntegration(ctx, i.ID, SecretFilter{IncludeExpired: true})
	require.NoError(t, err)
	require.Len(t, all, 3)

	active := 0
	for _, s := range all {
		if s.IsActive() {
			active++
			assert.Equal(t, "X", s.Name)
		}
	}
	assert.Equal(t, 1, active)

	err = secrets.Rotate(ctx, 9999, &models.IntegrationSecret{Name: "Y", SecretKey: "k4"})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSecretRepositoryDeleteExpired(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	i := seedIntegration(t, NewIntegrationRepository(db), 1, "crm")
	secrets := NewSecretRepository(db)

	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	fixtures := []*models.IntegrationSecret{
		{Name: "expired", SecretKey: "a", ExpiresAt: &past},
		{Name: "boundary", SecretKey: "b", ExpiresAt: &now},
		{Name: "future", SecretKey: "c", ExpiresAt: &future},
		{Name: "forever", SecretKey: "d"},
	}
	for _, s := range fixtures {
		s.IntegrationID = i.ID
		s.Status = models.STATUS_ACTIVE
		require.NoError(t, secrets.Create(ctx, s))
	}

	removed, err := secrets.DeleteExpired(ctx, i.ID, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	left, err := secrets.ListByIntegration(ctx, i.ID, SecretFilter{IncludeExpired: true})
	require.NoError(t, err)
	names := []string{}
	for _, s := range left {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"future", "forever"}, names)

	current, err := secrets.ListByIntegration(ctx, i.ID, SecretFilter{Now: now.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, "forever", current[0].Name)
}

func TestSecretRepositoryGetByKeyPrefersActiveRow(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	i := seedIntegration(t, NewIntegrationRepository(db), 1, "a")
	secrets := NewSecretRepository(db)

	old := &models.IntegrationSecret{IntegrationID: i.ID, Name: "old", SecretKey: "dup", Status: models.STATUS_INACTIVE}
	require.NoError(t, secrets.Create(ctx, old))
	current := &models.IntegrationSecret{IntegrationID: i.ID, Name: "current", SecretKey: "dup", Status: models.STATUS_ACTIVE}
	require.NoError(t, secrets.Create(ctx, current))
	newer := &models.IntegrationSecret{IntegrationID: i.ID, Name: "newer", SecretKey: "dup", Status: models.STATUS_INACTIVE}
	require.NoError(t, secrets.Create(ctx, newer))

	got, err := secrets.GetByKey(ctx, i.ID, "dup")
	require.NoError(t, err)
	assert.Equal(t, current.ID, got.ID)
}

func TestSecretRepositoryLookupAndMarkUsed(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	integrations := NewIntegrationRepository(db)
	a := seedIntegration(t, integrations, 1, "a")
	b := seedIntegration(t, integrations, 1, "b")
	secrets := NewSecretRepository(db)

	s := &models.IntegrationSecret{IntegrationID: a.ID, Name: "one", SecretKey: "shared", Status: models.STATUS_ACTIVE}
	require.NoError(t, secrets.Create(ctx, s))

	got, err := secrets.GetByKey(ctx, a.ID, "shared")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	_, err = secrets.GetByKey(ctx, b.ID, "shared")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound, "secret of another integration")

	_, err = secrets.GetForIntegration(ctx, b.ID, s.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	used := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, secrets.MarkUsed(ctx, s.ID, used))
	got, err = secrets.GetForIntegration(ctx, a.ID, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)
	assert.True(t, used.Equal(*got.LastUsedAt))

	count, err := secrets.CountByIntegration(ctx, a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestAuditLogRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditLogRepository(setupTestDB(t))

	base := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	for n, event := range []string{"integration.created", "secret.created"} {
		require.NoError(t, repo.Create(ctx, &models.AuditLog{
			EventID:       fmt.Sprintf("00000000-0000-0000-0000-00000000000%d", n),
			Event:         event,
			EntityType:    models.AuditEntityIntegration,
			EntityID:      7,
			IntegrationID: 7,
			ActorType:     models.AuditActorSystem,
			ActorID:       "system",
			OccurredAt:    base.Add(time.Duration(n) * time.Minute),
		}))
	}

	logs, err := repo.ListByIntegration(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "secret.created", logs[0].Event)
}
