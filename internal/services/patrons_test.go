package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/SatyamPandey-07/lms--3/internal/models"
	"github.com/SatyamPandey-07/lms--3/internal/repositories"
)

func TestRegisterPatron_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	in := NewPatron{FullName: "Ada", Surname: "Lovelace", Email: "ada@library.test"}

	_, err := f.svc.RegisterPatron(f.ctx(), f.admin, in)
	require.NoError(t, err)

	in.Email = "  ADA@Library.test "
	_, err = f.svc.RegisterPatron(f.ctx(), f.admin, in)
	assert.ErrorIs(t, err, ErrDuplicatePatron)
}

// staleISBNCheck reports every ISBN as free, like an AddTitle whose
// duplicate check ran before a concurrent insert committed.
type staleISBNCheck struct {
	repositories.TitleRepository
}

func (staleISBNCheck) GetByISBN(*gorm.DB, string) (*models.Title, error) {
	return nil, gorm.ErrRecordNotFound
}

func TestAddTitle_UniqueIndexCatchesLateDuplicate(t *testing.T) {
	db := setupTestDB(t)
	f := newFixtureOn(t, db, staleISBNCheck{repositories.NewTitleRepository(db)})

	in := NewTitle{Title: "Solaris", Author: "Stanislaw Lem", ISBN: "9780156027601", Copies: 1}
	_, err := f.svc.AddTitle(f.ctx(), f.admin, in)
	require.NoError(t, err)

	_, err = f.svc.AddTitle(f.ctx(), f.admin, in)
	assert.ErrorIs(t, err, ErrDuplicateISBN)

	titles, err := f.svc.ListTitles(f.ctx())
	require.NoError(t, err)
	assert.Len(t, titles, 1)
}

func TestVerifyPatron(t *testing.T) {
	f := newFixture(t)
	title := f.newTitle(t, 1)
	pending := f.newPatron(t, false)

	_, err := f.svc.CreateRental(f.ctx(), pending, title.ID)
	assert.ErrorIs(t, err, ErrPatronNotVerified)

	waiting, err := f.svc.ListUnverifiedPatrons(f.ctx(), f.admin)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, pending.ID, waiting[0].ID)

	_, err = f.svc.VerifyPatron(f.ctx(), f.patron, pending.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.ListUnverifiedPatrons(f.ctx(), f.patron)
	assert.ErrorIs(t, err, ErrForbidden)

	p, err := f.svc.VerifyPatron(f.ctx(), f.admin, pending.ID)
	require.NoError(t, err)
	assert.True(t, p.IsVerified)

	_, err = f.svc.VerifyPatron(f.ctx(), f.admin, pending.ID)
	assert.ErrorIs(t, err, ErrPatronAlreadyVerified)
	_, err = f.svc.VerifyPatron(f.ctx(), f.admin, uuid.New())
	assert.ErrorIs(t, err, ErrPatronNotFound)

	waiting, err = f.svc.ListUnverifiedPatrons(f.ctx(), f.admin)
	require.NoError(t, err)
	assert.Empty(t, waiting)

	r, err := f.svc.CreateRental(f.ctx(), pending, title.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RentalStatusRequested, r.Status)
}
