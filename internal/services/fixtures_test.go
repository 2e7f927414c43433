package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/SatyamPandey-07/lms--3/internal/database"
	"github.com/SatyamPandey-07/lms--3/internal/models"
	"github.com/SatyamPandey-07/lms--3/internal/repositories"
)

type fixture struct {
	db     *gorm.DB
	svc    LibraryService
	admin  models.Actor
	patron models.Actor
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), database.GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the in-memory database alive and shared
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	return newFixtureOn(t, db, repositories.NewTitleRepository(db))
}

// newFixtureOn builds the service over db with the given catalog store.
func newFixtureOn(t *testing.T, db *gorm.DB, titles repositories.TitleRepository) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewLibraryService(db, log,
		titles,
		repositories.NewRentalRepository(db),
		repositories.NewPatronRepository(db),
	)
	f := &fixture{
		db:    db,
		svc:   svc,
		admin: models.Actor{ID: uuid.New(), Role: models.RoleAdmin},
	}
	f.patron = f.newPatron(t, true)
	return f
}

func (f *fixture) ctx() context.Context { return context.Background() }

func (f *fixture) newPatron(t *testing.T, verified bool) models.Actor {
	t.Helper()
	p, err := f.svc.RegisterPatron(f.ctx(), f.admin, NewPatron{
		FullName: "Ada",
		Surname:  "Lovelace",
		Email:    uuid.NewString() + "@library.test",
		Verified: verified,
	})
	require.NoError(t, err)
	return models.Actor{ID: p.ID, Role: models.RolePatron}
}

func (f *fixture) newTitle(t *testing.T, copies int) *models.Title {
	t.Helper()
	title, err := f.svc.AddTitle(f.ctx(), f.admin, NewTitle{
		Title:  "The Left Hand of Darkness",
		Author: "Ursula K. Le Guin",
		ISBN:   uuid.NewString()[:13],
		Copies: copies,
	})
	require.NoError(t, err)
	return title
}

func (f *fixture) request(t *testing.T, titleID uuid.UUID) *models.Rental {
	t.Helper()
	r, err := f.svc.CreateRental(f.ctx(), f.patron, titleID)
	require.NoError(t, err)
	return r
}

func (f *fixture) approved(t *testing.T, titleID uuid.UUID) *models.Rental {
	t.Helper()
	r := f.request(t, titleID)
	r, err := f.svc.ApproveRental(f.ctx(), f.admin, r.ID)
	require.NoError(t, err)
	return r
}

func (f *fixture) collected(t *testing.T, titleID uuid.UUID) *models.Rental {
	t.Helper()
	r := f.approved(t, titleID)
	r, err := f.svc.CollectRental(f.ctx(), f.admin, r.ID)
	require.NoError(t, err)
	return r
}

func (f *fixture) title(t *testing.T, id uuid.UUID) *models.Title {
	t.Helper()
	title, err := f.svc.GetTitle(f.ctx(), id)
	require.NoError(t, err)
	return title
}

func (f *fixture) rental(t *testing.T, id uuid.UUID) *models.Rental {
	t.Helper()
	r, err := repositories.NewRentalRepository(f.db).GetByID(nil, id)
	require.NoError(t, err)
	return r
}

// assertInvariants checks 0 <= available <= owned and
// available == owned - collected for the title.
func (f *fixture) assertInvariants(t *testing.T, titleID uuid.UUID) {
	t.Helper()
	audit, err := f.svc.AuditTitle(f.ctx(), titleID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, audit.AvailableCopies, 0)
	assert.LessOrEqual(t, audit.AvailableCopies, audit.OwnedCopies)
	assert.True(t, audit.Consistent(), "audit: %+v", audit)
}

func sameTime(t *testing.T, want, got *time.Time) {
	t.Helper()
	require.NotNil(t, want)
	require.NotNil(t, got)
	assert.True(t, want.Equal(*got), "want %s got %s", want, got)
}
