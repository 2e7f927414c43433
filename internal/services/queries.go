package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/SatyamPandey-07/lms--3/internal/models"
	"github.com/SatyamPandey-07/lms--3/internal/repositories"
)

// Summary backs the admin dashboard.
type Summary struct {
	ByStatus map[models.RentalStatus]int64 `json:"by_status"`
	Catalog  repositories.CatalogTotals    `json:"catalog"`
}

// TitleAudit compares a title's stored counter with the rental ledger.
type TitleAudit struct {
	TitleID          uuid.UUID `json:"title_id"`
	OwnedCopies      int       `json:"owned_copies"`
	AvailableCopies  int       `json:"available_copies"`
	CollectedRentals int64     `json:"collected_rentals"`
}

// Consistent reports whether available == owned - collected.
func (a TitleAudit) Consistent() bool {
	return int64(a.AvailableCopies) == int64(a.OwnedCopies)-a.CollectedRentals
}

// ListPatronRentals returns the patron's history, newest first. With
// activeOnly it keeps only APPROVED and COLLECTED rentals.
func (s *libraryService) ListPatronRentals(ctx context.Context, patronID uuid.UUID, activeOnly bool) ([]models.Rental, error) {
	db := s.db.WithContext(ctx)
	if activeOnly {
		return s.rentalRepo.ListByPatron(db, patronID, models.RentalStatusApproved, models.RentalStatusCollected)
	}
	return s.rentalRepo.ListByPatron(db, patronID)
}

// ListPendingRentals is the admin triage queue, oldest request first.
func (s *libraryService) ListPendingRentals(ctx context.Context) ([]models.Rental, error) {
	return s.rentalRepo.ListByStatus(s.db.WithContext(ctx), "requested_at ASC, id ASC",
		models.RentalStatusRequested, models.RentalStatusApproved)
}

// ListCollectedRentals is the closure queue, longest-out first.
func (s *libraryService) ListCollectedRentals(ctx context.Context) ([]models.Rental, error) {
	return s.rentalRepo.ListByStatus(s.db.WithContext(ctx), "collected_at ASC, id ASC",
		models.RentalStatusCollected)
}

func (s *libraryService) ListPatronsWithIssuedCount(ctx context.Context) ([]repositories.PatronIssuedCount, error) {
	return s.patronRepo.ListVerifiedWithIssuedCount(s.db.WithContext(ctx))
}

// RentalSummary reads the per-status counts and catalogue totals from one
// transaction so the numbers describe the same moment.
func (s *libraryService) RentalSummary(ctx context.Context) (*Summary, error) {
	summary := &Summary{ByStatus: map[models.RentalStatus]int64{
		models.RentalStatusRequested: 0,
		models.RentalStatusApproved:  0,
		models.RentalStatusCollected: 0,
		models.RentalStatusReturned:  0,
	}}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		counts, err := s.rentalRepo.CountByStatus(tx)
		if err != nil {
			return err
		}
		for status, n := range counts {
			summary.ByStatus[status] = n
		}
		totals, err := s.titleRepo.Totals(tx)
		if err != nil {
			return err
		}
		summary.Catalog = totals
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// AuditTitle reconciles a title's counter with its COLLECTED rentals. A
// mismatch is logged and returned as ErrConsistencyViolation along with the
// audit itself.
func (s *libraryService) AuditTitle(ctx context.Context, titleID uuid.UUID) (*TitleAudit, error) {
	var audit *TitleAudit
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		title, err := s.titleRepo.GetByID(tx, titleID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTitleNotFound
			}
			return err
		}
		collected, err := s.rentalRepo.CountByTitleAndStatus(tx, titleID, models.RentalStatusCollected)
		if err != nil {
			return err
		}
		audit = &TitleAudit{
			TitleID:          title.ID,
			OwnedCopies:      title.OwnedCopies,
			AvailableCopies:  title.AvailableCopies,
			CollectedRentals: collected,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !audit.Consistent() {
		s.log.Error("title counter disagrees with rental ledger", "op", "AuditTitle",
			"title_id", titleID, "owned", audit.OwnedCopies, "available", audit.AvailableCopies,
			"collected", audit.CollectedRentals)
		return audit, fmt.Errorf("%w: title %s", ErrConsistencyViolation, titleID)
	}
	return audit, nil
}
