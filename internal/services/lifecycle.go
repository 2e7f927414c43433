package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/SatyamPandey-07/lms--3/internal/models"
	"github.com/SatyamPandey-07/lms--3/internal/repositories"
)

// Event names an admin-driven rental transition.
type Event string

const (
	EventApprove Event = "approve"
	EventCollect Event = "collect"
	EventClose   Event = "close"
)

// counterAction is the catalog-store call applied in the same transaction as
// the status change. nil means the counters are untouched.
type counterAction func(titles repositories.TitleRepository, tx *gorm.DB, titleID uuid.UUID) error

type transition struct {
	from    models.RentalStatus
	to      models.RentalStatus
	counter counterAction
}

// transitions is the whole lifecycle after creation:
//
//	REQUESTED -approve-> APPROVED -collect-> COLLECTED -close-> RETURNED
//
// A copy leaves the shelf on collect and comes back on close.
var transitions = map[Event]transition{
	EventApprove: {
		from: models.RentalStatusRequested,
		to:   models.RentalStatusApproved,
	},
	EventCollect: {
		from:    models.RentalStatusApproved,
		to:      models.RentalStatusCollected,
		counter: repositories.TitleRepository.TryReserveCopy,
	},
	EventClose: {
		from:    models.RentalStatusCollected,
		to:      models.RentalStatusReturned,
		counter: repositories.TitleRepository.ReleaseCopy,
	},
}

// ─── Create ───────────────────────────────────────────────────────────────────

// CreateRental records a patron's borrow request in REQUESTED.
//
// Availability is only advisory here: a title that owns copies accepts
// requests even when every copy is out, because the copy is reserved at
// collect. A title that owns no copies at all is rejected with ErrOutOfStock.
func (s *libraryService) CreateRental(ctx context.Context, actor models.Actor, titleID uuid.UUID) (*models.Rental, error) {
	if !actor.IsPatron() {
		return nil, ErrForbidden
	}

	var created *models.Rental
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		patron, err := s.patronRepo.GetByID(tx, actor.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPatronNotFound
			}
			return err
		}
		if !patron.IsVerified {
			return ErrPatronNotVerified
		}

		title, err := s.titleRepo.GetByID(tx, titleID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTitleNotFound
			}
			return err
		}
		if title.OwnedCopies == 0 {
			return fmt.Errorf("%w: title %s owns no copies", ErrOutOfStock, titleID)
		}
		if title.AvailableCopies == 0 {
			s.log.Warn("rental requested while every copy is out",
				"op", "CreateRental", "title_id", titleID, "patron_id", actor.ID)
		}

		rental := &models.Rental{
			TitleID:     title.ID,
			PatronID:    patron.ID,
			Status:      models.RentalStatusRequested,
			RequestedAt: s.now(),
		}
		if err := s.rentalRepo.Create(tx, rental); err != nil {
			return err
		}
		rental.Title = title
		rental.Patron = patron
		created = rental
		return nil
	})
	if err != nil {
		s.log.Info("rental request rejected", "op", "CreateRental", "title_id", titleID, "patron_id", actor.ID, "err", err)
		return nil, err
	}
	s.log.Info("rental requested", "op", "CreateRental", "rental_id", created.ID, "title_id", titleID, "patron_id", actor.ID)
	return created, nil
}

// CreateRentalByISBN resolves the title by ISBN and then behaves like CreateRental.
func (s *libraryService) CreateRentalByISBN(ctx context.Context, actor models.Actor, isbn string) (*models.Rental, error) {
	if !actor.IsPatron() {
		return nil, ErrForbidden
	}
	isbn = strings.TrimSpace(isbn)
	if isbn == "" {
		return nil, fmt.Errorf("%w: isbn is required", ErrInvalidInput)
	}
	title, err := s.titleRepo.GetByISBN(s.db.WithContext(ctx), isbn)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTitleNotFound
		}
		return nil, err
	}
	return s.CreateRental(ctx, actor, title.ID)
}

// ─── Admin transitions ────────────────────────────────────────────────────────

func (s *libraryService) ApproveRental(ctx context.Context, actor models.Actor, rentalID uuid.UUID) (*models.Rental, error) {
	return s.advance(ctx, actor, rentalID, EventApprove)
}

// CollectRental hands the copy to the patron; this is where a copy is reserved.
func (s *libraryService) CollectRental(ctx context.Context, actor models.Actor, rentalID uuid.UUID) (*models.Rental, error) {
	return s.advance(ctx, actor, rentalID, EventCollect)
}

// CloseRental records the copy's return and puts it back on the shelf.
func (s *libraryService) CloseRental(ctx context.Context, actor models.Actor, rentalID uuid.UUID) (*models.Rental, error) {
	return s.advance(ctx, actor, rentalID, EventClose)
}

// advance applies one entry of the transition table.
//
// Steps (all in one transaction):
//  1. Lock the rental row (FOR UPDATE).
//  2. Require the exact from-status.
//  3. Apply the counter action, if any.
//  4. Conditionally update status and timestamp (WHERE status = from).
//  5. Reload the rental.
//
// Any failure rolls back both the counter and the status.
func (s *libraryService) advance(ctx context.Context, actor models.Actor, rentalID uuid.UUID, ev Event) (*models.Rental, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	t, ok := transitions[ev]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev)
	}

	var updated *models.Rental
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rental, err := s.rentalRepo.GetByIDForUpdate(tx, rentalID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRentalNotFound
			}
			return err
		}

		if rental.Status != t.from {
			return fmt.Errorf("%w: cannot %s a %s rental", ErrInvalidTransition, ev, rental.Status)
		}

		if t.counter != nil {
			if err := t.counter(s.titleRepo, tx, rental.TitleID); err != nil {
				return s.counterError(ev, rental, err)
			}
		}

		if err := s.rentalRepo.Transition(tx, rental.ID, t.from, t.to, s.now()); err != nil {
			if errors.Is(err, repositories.ErrStatusChanged) {
				return fmt.Errorf("%w: rental %s left %s concurrently", ErrInvalidTransition, rental.ID, t.from)
			}
			return err
		}

		reloaded, err := s.rentalRepo.GetByID(tx, rental.ID)
		if err != nil {
			return err
		}
		updated = reloaded
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrConsistencyViolation) {
			s.log.Info("rental transition rejected", "op", string(ev), "rental_id", rentalID, "err", err)
		}
		return nil, err
	}

	s.log.Info("rental transitioned", "op", string(ev), "rental_id", rentalID,
		"title_id", updated.TitleID, "from", t.from, "to", t.to, "admin_id", actor.ID)
	return updated, nil
}

// counterError translates catalog-store failures into engine errors.
func (s *libraryService) counterError(ev Event, rental *models.Rental, err error) error {
	switch {
	case errors.Is(err, repositories.ErrNoCopyAvailable):
		return fmt.Errorf("%w: title %s has no copy on the shelf", ErrOutOfStock, rental.TitleID)
	case errors.Is(err, repositories.ErrReleaseExceedsOwned):
		s.log.Error("release would exceed owned copies",
			"op", string(ev), "rental_id", rental.ID, "title_id", rental.TitleID)
		return fmt.Errorf("%w: release of title %s exceeds owned copies", ErrConsistencyViolation, rental.TitleID)
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.log.Error("rental references a missing title",
			"op", string(ev), "rental_id", rental.ID, "title_id", rental.TitleID)
		return fmt.Errorf("%w: title %s of rental %s is missing", ErrConsistencyViolation, rental.TitleID, rental.ID)
	}
	return err
}
