package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/SatyamPandey-07/lms--3/internal/models"
	"github.com/SatyamPandey-07/lms--3/internal/repositories"
)

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	// ErrTitleNotFound is returned when the referenced title does not exist.
	ErrTitleNotFound = errors.New("title not found")

	// ErrRentalNotFound is returned when the referenced rental does not exist.
	ErrRentalNotFound = errors.New("rental not found")

	// ErrPatronNotFound is returned when the acting patron has no patron record.
	ErrPatronNotFound = errors.New("patron not found")

	// ErrPatronNotVerified is returned when an unverified patron tries to borrow.
	ErrPatronNotVerified = errors.New("patron is not verified")

	// ErrOutOfStock is returned when no copy can be taken off the shelf.
	ErrOutOfStock = errors.New("out of stock")

	// ErrInvalidTransition is returned when the rental is not in the status the
	// requested transition starts from. Nothing is written.
	ErrInvalidTransition = errors.New("invalid rental status transition")

	// ErrConsistencyViolation signals that stored counters disagree with the
	// rental ledger. It always points at an earlier bug and is never corrected
	// silently.
	ErrConsistencyViolation = errors.New("inventory consistency violation")

	// ErrForbidden is returned when the actor's role may not perform the operation.
	ErrForbidden = errors.New("actor is not allowed to perform this operation")

	// ErrInvalidInput is returned for malformed catalogue or patron input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateISBN is returned when a title with the same ISBN already exists.
	ErrDuplicateISBN = errors.New("a title with this ISBN already exists")

	// ErrDuplicatePatron is returned when a patron with the same email already exists.
	ErrDuplicatePatron = errors.New("a patron with this email already exists")

	// ErrPatronAlreadyVerified is returned when verifying a patron twice.
	ErrPatronAlreadyVerified = errors.New("patron is already verified")
)

// ─── Service Interface ────────────────────────────────────────────────────────

// LibraryService is the rental lifecycle engine plus the catalogue and the
// read-only views built on top of it.
type LibraryService interface {
	AddTitle(ctx context.Context, actor models.Actor, in NewTitle) (*models.Title, error)
	AddTitleCopies(ctx context.Context, actor models.Actor, titleID uuid.UUID, n int) (*models.Title, error)
	GetTitle(ctx context.Context, titleID uuid.UUID) (*models.Title, error)
	ListTitles(ctx context.Context) ([]models.Title, error)
	AuditTitle(ctx context.Context, titleID uuid.UUID) (*TitleAudit, error)

	RegisterPatron(ctx context.Context, actor models.Actor, in NewPatron) (*models.Patron, error)
	VerifyPatron(ctx context.Context, actor models.Actor, patronID uuid.UUID) (*models.Patron, error)
	ListUnverifiedPatrons(ctx context.Context, actor models.Actor) ([]models.Patron, error)

	CreateRental(ctx context.Context, actor models.Actor, titleID uuid.UUID) (*models.Rental, error)
	CreateRentalByISBN(ctx context.Context, actor models.Actor, isbn string) (*models.Rental, error)
	ApproveRental(ctx context.Context, actor models.Actor, rentalID uuid.UUID) (*models.Rental, error)
	CollectRental(ctx context.Context, actor models.Actor, rentalID uuid.UUID) (*models.Rental, error)
	CloseRental(ctx context.Context, actor models.Actor, rentalID uuid.UUID) (*models.Rental, error)

	ListPatronRentals(ctx context.Context, patronID uuid.UUID, activeOnly bool) ([]models.Rental, error)
	ListPendingRentals(ctx context.Context) ([]models.Rental, error)
	ListCollectedRentals(ctx context.Context) ([]models.Rental, error)
	ListPatronsWithIssuedCount(ctx context.Context) ([]repositories.PatronIssuedCount, error)
	RentalSummary(ctx context.Context) (*Summary, error)
}

// NewTitle is the catalogue input for AddTitle. Copies may be zero.
type NewTitle struct {
	Title       string
	Author      string
	ISBN        string
	Description string
	CoverURL    string
	Copies      int
}

// NewPatron records an identity that the external verifier has already checked.
type NewPatron struct {
	FullName string
	Surname  string
	Email    string
	Verified bool
}

// ─── Implementation ───────────────────────────────────────────────────────────

type libraryService struct {
	db         *gorm.DB
	log        *slog.Logger
	now        func() time.Time
	titleRepo  repositories.TitleRepository
	rentalRepo repositories.RentalRepository
	patronRepo repositories.PatronRepository
}

// NewLibraryService wires up all dependencies and returns a LibraryService.
func NewLibraryService(
	db *gorm.DB,
	log *slog.Logger,
	titleRepo repositories.TitleRepository,
	rentalRepo repositories.RentalRepository,
	patronRepo repositories.PatronRepository,
) LibraryService {
	if log == nil {
		log = slog.Default()
	}
	return &libraryService{
		db:         db,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
		titleRepo:  titleRepo,
		rentalRepo: rentalRepo,
		patronRepo: patronRepo,
	}
}

// ─── Catalogue ────────────────────────────────────────────────────────────────

// AddTitle creates a title whose owned and available counters both start at
// in.Copies.
func (s *libraryService) AddTitle(ctx context.Context, actor models.Actor, in NewTitle) (*models.Title, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.ISBN = strings.TrimSpace(in.ISBN)
	if in.Title == "" || in.Author == "" || in.ISBN == "" {
		return nil, fmt.Errorf("%w: title, author and isbn are required", ErrInvalidInput)
	}
	if in.Copies < 0 {
		return nil, fmt.Errorf("%w: copies must not be negative", ErrInvalidInput)
	}

	title := &models.Title{
		Title:           in.Title,
		Author:          in.Author,
		ISBN:            in.ISBN,
		Description:     in.Description,
		CoverURL:        in.CoverURL,
		OwnedCopies:     in.Copies,
		AvailableCopies: in.Copies,
		CreatedAt:       s.now(),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.titleRepo.GetByISBN(tx, in.ISBN)
		if err == nil {
			return ErrDuplicateISBN
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := s.titleRepo.Create(tx, title); err != nil {
			// a concurrent AddTitle won the unique index
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateISBN
			}
			return err
		}
		return nil
	})
	if err != nil {
		s.log.Error("add title failed", "op", "AddTitle", "isbn", in.ISBN, "err", err)
		return nil, err
	}
	s.log.Info("title added", "op", "AddTitle", "title_id", title.ID, "isbn", title.ISBN, "copies", title.OwnedCopies)
	return title, nil
}

// AddTitleCopies brings n more physical copies of an existing title into circulation.
func (s *libraryService) AddTitleCopies(ctx context.Context, actor models.Actor, titleID uuid.UUID, n int) (*models.Title, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: copies must be at least 1", ErrInvalidInput)
	}

	var updated *models.Title
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.titleRepo.AddCopies(tx, titleID, n); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTitleNotFound
			}
			return err
		}
		t, err := s.titleRepo.GetByID(tx, titleID)
		if err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("copies added", "op", "AddTitleCopies", "title_id", titleID, "added", n, "owned", updated.OwnedCopies)
	return updated, nil
}

func (s *libraryService) GetTitle(ctx context.Context, titleID uuid.UUID) (*models.Title, error) {
	t, err := s.titleRepo.GetByID(s.db.WithContext(ctx), titleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTitleNotFound
		}
		return nil, err
	}
	return t, nil
}

// ListTitles returns the whole catalogue ordered by title.
func (s *libraryService) ListTitles(ctx context.Context) ([]models.Title, error) {
	return s.titleRepo.List(s.db.WithContext(ctx))
}

// ─── Patrons ──────────────────────────────────────────────────────────────────

// RegisterPatron stores a patron record. Identity checks happen upstream.
func (s *libraryService) RegisterPatron(ctx context.Context, actor models.Actor, in NewPatron) (*models.Patron, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	in.FullName = strings.TrimSpace(in.FullName)
	in.Surname = strings.TrimSpace(in.Surname)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.FullName == "" || in.Surname == "" || in.Email == "" {
		return nil, fmt.Errorf("%w: fullname, surname and email are required", ErrInvalidInput)
	}

	patron := &models.Patron{
		FullName:   in.FullName,
		Surname:    in.Surname,
		Email:      in.Email,
		IsVerified: in.Verified,
		CreatedAt:  s.now(),
	}
	if err := s.patronRepo.Create(s.db.WithContext(ctx), patron); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePatron, in.Email)
		}
		s.log.Error("register patron failed", "op", "RegisterPatron", "err", err)
		return nil, err
	}
	s.log.Info("patron registered", "op", "RegisterPatron", "patron_id", patron.ID, "verified", patron.IsVerified)
	return patron, nil
}

// VerifyPatron marks a signed-up patron as verified so they can borrow.
func (s *libraryService) VerifyPatron(ctx context.Context, actor models.Actor, patronID uuid.UUID) (*models.Patron, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	var patron *models.Patron
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.patronRepo.Verify(tx, patronID); err != nil {
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				return ErrPatronNotFound
			case errors.Is(err, repositories.ErrAlreadyVerified):
				return ErrPatronAlreadyVerified
			}
			return err
		}
		p, err := s.patronRepo.GetByID(tx, patronID)
		if err != nil {
			return err
		}
		patron = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("patron verified", "op", "VerifyPatron", "patron_id", patronID, "admin_id", actor.ID)
	return patron, nil
}

func (s *libraryService) ListUnverifiedPatrons(ctx context.Context, actor models.Actor) ([]models.Patron, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.patronRepo.ListUnverified(s.db.WithContext(ctx))
}
