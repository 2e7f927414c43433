package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SatyamPandey-07/lms--3/internal/models"
)

var (
	// ErrNoCopyAvailable is returned by TryReserveCopy when available_copies is already 0.
	ErrNoCopyAvailable = errors.New("no copy available")

	// ErrReleaseExceedsOwned is returned by ReleaseCopy when every owned copy is
	// already on the shelf, i.e. the release would be a double release.
	ErrReleaseExceedsOwned = errors.New("release would exceed owned copies")

	// ErrStatusChanged is returned by RentalRepository.Transition when the row
	// no longer holds the expected status.
	ErrStatusChanged = errors.New("rental status changed concurrently")

	// ErrAlreadyVerified is returned by PatronRepository.Verify when the flag is already set.
	ErrAlreadyVerified = errors.New("patron already verified")
)

// TitleRepository is the catalog store. The copy counters can only be moved
// through TryReserveCopy, ReleaseCopy and AddCopies.
type TitleRepository interface {
	Create(db *gorm.DB, title *models.Title) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Title, error)
	GetByISBN(db *gorm.DB, isbn string) (*models.Title, error)
	List(db *gorm.DB) ([]models.Title, error)
	TryReserveCopy(db *gorm.DB, id uuid.UUID) error
	ReleaseCopy(db *gorm.DB, id uuid.UUID) error
	AddCopies(db *gorm.DB, id uuid.UUID, n int) error
	Totals(db *gorm.DB) (CatalogTotals, error)
}

type RentalRepository interface {
	Create(db *gorm.DB, rental *models.Rental) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Rental, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Rental, error)
	Transition(db *gorm.DB, id uuid.UUID, from, to models.RentalStatus, at time.Time) error
	ListByPatron(db *gorm.DB, patronID uuid.UUID, statuses ...models.RentalStatus) ([]models.Rental, error)
	ListByStatus(db *gorm.DB, orderBy string, statuses ...models.RentalStatus) ([]models.Rental, error)
	CountByStatus(db *gorm.DB) (map[models.RentalStatus]int64, error)
	CountByTitleAndStatus(db *gorm.DB, titleID uuid.UUID, status models.RentalStatus) (int64, error)
}

type PatronRepository interface {
	Create(db *gorm.DB, patron *models.Patron) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Patron, error)
	Verify(db *gorm.DB, id uuid.UUID) error
	ListUnverified(db *gorm.DB) ([]models.Patron, error)
	ListVerifiedWithIssuedCount(db *gorm.DB) ([]PatronIssuedCount, error)
}

type AdminRepository interface {
	Create(db *gorm.DB, admin *models.Admin) error
	GetByEmail(db *gorm.DB, email string) (*models.Admin, error)
}

// CatalogTotals aggregates copy counters across every title.
type CatalogTotals struct {
	Titles          int64 `json:"titles"`
	OwnedCopies     int64 `json:"owned_copies"`
	AvailableCopies int64 `json:"available_copies"`
}

// PatronIssuedCount is a verified patron with the number of rentals that
// currently count as issued (APPROVED or COLLECTED).
type PatronIssuedCount struct {
	models.Patron `gorm:"embedded"`
	IssuedCount   int64 `json:"issued_count"`
}

// concrete implementations

type titleRepository struct {
	db *gorm.DB
}

func NewTitleRepository(db *gorm.DB) TitleRepository {
	return &titleRepository{db: db}
}

func (r *titleRepository) Create(db *gorm.DB, title *models.Title) error {
	if db == nil {
		db = r.db
	}
	return db.Create(title).Error
}

func (r *titleRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Title, error) {
	if db == nil {
		db = r.db
	}
	var title models.Title
	if err := db.First(&title, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &title, nil
}

func (r *titleRepository) GetByISBN(db *gorm.DB, isbn string) (*models.Title, error) {
	if db == nil {
		db = r.db
	}
	var title models.Title
	if err := db.First(&title, "isbn = ?", isbn).Error; err != nil {
		return nil, err
	}
	return &title, nil
}

func (r *titleRepository) List(db *gorm.DB) ([]models.Title, error) {
	if db == nil {
		db = r.db
	}
	var titles []models.Title
	if err := db.Order("title ASC").Find(&titles).Error; err != nil {
		return nil, err
	}
	return titles, nil
}

// TryReserveCopy takes one copy off the shelf. The floor check and the
// decrement are a single statement, so concurrent callers cannot both take
// the last copy.
func (r *titleRepository) TryReserveCopy(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Title{}).
		Where("id = ? AND available_copies > 0", id).
		UpdateColumn("available_copies", gorm.Expr("available_copies - 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.missOrErr(db, id, ErrNoCopyAvailable)
	}
	return nil
}

// ReleaseCopy puts one copy back, never above owned_copies.
func (r *titleRepository) ReleaseCopy(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Title{}).
		Where("id = ? AND available_copies < owned_copies", id).
		UpdateColumn("available_copies", gorm.Expr("available_copies + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.missOrErr(db, id, ErrReleaseExceedsOwned)
	}
	return nil
}

// AddCopies brings n new physical copies into circulation.
func (r *titleRepository) AddCopies(db *gorm.DB, id uuid.UUID, n int) error {
	if db == nil {
		db = r.db
	}
	if n < 1 {
		return fmt.Errorf("add copies: n must be positive, got %d", n)
	}
	res := db.Model(&models.Title{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"owned_copies":     gorm.Expr("owned_copies + ?", n),
			"available_copies": gorm.Expr("available_copies + ?", n),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *titleRepository) Totals(db *gorm.DB) (CatalogTotals, error) {
	if db == nil {
		db = r.db
	}
	var totals CatalogTotals
	err := db.Model(&models.Title{}).
		Select("COUNT(*) AS titles, COALESCE(SUM(owned_copies), 0) AS owned_copies, COALESCE(SUM(available_copies), 0) AS available_copies").
		Scan(&totals).Error
	return totals, err
}

// missOrErr distinguishes "row absent" from "guard rejected" after an update
// touched no rows.
func (r *titleRepository) missOrErr(db *gorm.DB, id uuid.UUID, guardErr error) error {
	var count int64
	if err := db.Model(&models.Title{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return guardErr
}

type rentalRepository struct {
	db *gorm.DB
}

func NewRentalRepository(db *gorm.DB) RentalRepository {
	return &rentalRepository{db: db}
}

func (r *rentalRepository) Create(db *gorm.DB, rental *models.Rental) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(rental).Error
}

func (r *rentalRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Rental, error) {
	if db == nil {
		db = r.db
	}
	var rental models.Rental
	err := db.
		Preload("Title").
		Preload("Patron").
		First(&rental, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &rental, nil
}

func (r *rentalRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Rental, error) {
	if db == nil {
		db = r.db
	}
	var rental models.Rental
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&rental, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &rental, nil
}

// stampColumn is the once-only timestamp written when a rental enters a status.
var stampColumn = map[models.RentalStatus]string{
	models.RentalStatusApproved:  "approved_at",
	models.RentalStatusCollected: "collected_at",
	models.RentalStatusReturned:  "returned_at",
}

// Transition moves a rental from one status to the next. The update only
// matches while the row still holds `from` and the target timestamp is unset.
func (r *rentalRepository) Transition(db *gorm.DB, id uuid.UUID, from, to models.RentalStatus, at time.Time) error {
	if db == nil {
		db = r.db
	}
	col, ok := stampColumn[to]
	if !ok {
		return fmt.Errorf("transition: no timestamp column for status %s", to)
	}
	res := db.Model(&models.Rental{}).
		Where("id = ? AND status = ?", id, from).
		Where(col + " IS NULL").
		UpdateColumns(map[string]interface{}{
			"status": to,
			col:      at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (r *rentalRepository) ListByPatron(db *gorm.DB, patronID uuid.UUID, statuses ...models.RentalStatus) ([]models.Rental, error) {
	if db == nil {
		db = r.db
	}
	q := db.Preload("Title").Where("patron_id = ?", patronID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var rentals []models.Rental
	if err := q.Order("requested_at DESC, id DESC").Find(&rentals).Error; err != nil {
		return nil, err
	}
	return rentals, nil
}

func (r *rentalRepository) ListByStatus(db *gorm.DB, orderBy string, statuses ...models.RentalStatus) ([]models.Rental, error) {
	if db == nil {
		db = r.db
	}
	var rentals []models.Rental
	err := db.
		Preload("Title").
		Preload("Patron").
		Where("status IN ?", statuses).
		Order(orderBy).
		Find(&rentals).Error
	if err != nil {
		return nil, err
	}
	return rentals, nil
}

func (r *rentalRepository) CountByStatus(db *gorm.DB) (map[models.RentalStatus]int64, error) {
	if db == nil {
		db = r.db
	}
	var rows []struct {
		Status models.RentalStatus
		Count  int64
	}
	err := db.Model(&models.Rental{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[models.RentalStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *rentalRepository) CountByTitleAndStatus(db *gorm.DB, titleID uuid.UUID, status models.RentalStatus) (int64, error) {
	if db == nil {
		db = r.db
	}
	var count int64
	err := db.Model(&models.Rental{}).
		Where("title_id = ? AND status = ?", titleID, status).
		Count(&count).Error
	return count, err
}

type patronRepository struct {
	db *gorm.DB
}

func NewPatronRepository(db *gorm.DB) PatronRepository {
	return &patronRepository{db: db}
}

func (r *patronRepository) Create(db *gorm.DB, patron *models.Patron) error {
	if db == nil {
		db = r.db
	}
	return db.Create(patron).Error
}

func (r *patronRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Patron, error) {
	if db == nil {
		db = r.db
	}
	var patron models.Patron
	if err := db.First(&patron, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &patron, nil
}

// Verify flips is_verified from false to true. It never un-verifies.
func (r *patronRepository) Verify(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Patron{}).
		Where("id = ? AND is_verified = ?", id, false).
		UpdateColumn("is_verified", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := db.Model(&models.Patron{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return ErrAlreadyVerified
}

// ListUnverified returns patrons awaiting verification, oldest sign-up first.
func (r *patronRepository) ListUnverified(db *gorm.DB) ([]models.Patron, error) {
	if db == nil {
		db = r.db
	}
	var patrons []models.Patron
	err := db.Where("is_verified = ?", false).
		Order("created_at ASC, id ASC").
		Find(&patrons).Error
	if err != nil {
		return nil, err
	}
	return patrons, nil
}

// ListVerifiedWithIssuedCount runs one grouped query instead of a count per patron.
func (r *patronRepository) ListVerifiedWithIssuedCount(db *gorm.DB) ([]PatronIssuedCount, error) {
	if db == nil {
		db = r.db
	}
	var out []PatronIssuedCount
	err := db.Model(&models.Patron{}).
		Select("patrons.*, COUNT(rentals.id) AS issued_count").
		Joins("LEFT JOIN rentals ON rentals.patron_id = patrons.id AND rentals.status IN ?",
			[]models.RentalStatus{models.RentalStatusApproved, models.RentalStatusCollected}).
		Where("patrons.is_verified = ?", true).
		Group("patrons.id").
		Order("patrons.surname ASC, patrons.full_name ASC").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

type adminRepository struct {
	db *gorm.DB
}

func NewAdminRepository(db *gorm.DB) AdminRepository {
	return &adminRepository{db: db}
}

func (r *adminRepository) Create(db *gorm.DB, admin *models.Admin) error {
	if db == nil {
		db = r.db
	}
	return db.Create(admin).Error
}

func (r *adminRepository) GetByEmail(db *gorm.DB, email string) (*models.Admin, error) {
	if db == nil {
		db = r.db
	}
	var admin models.Admin
	if err := db.First(&admin, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &admin, nil
}
