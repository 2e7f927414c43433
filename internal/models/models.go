package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RolePatron Role = "PATRON"
	RoleAdmin  Role = "ADMIN"
)

// ParseRole converts a claim value into a Role. Unknown roles are rejected.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePatron, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Actor is an already-authenticated caller.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) IsAdmin() bool  { return a.Role == RoleAdmin }
func (a Actor) IsPatron() bool { return a.Role == RolePatron }

type RentalStatus string

const (
	RentalStatusRequested RentalStatus = "REQUESTED"
	RentalStatusApproved  RentalStatus = "APPROVED"
	RentalStatusCollected RentalStatus = "COLLECTED"
	RentalStatusReturned  RentalStatus = "RETURNED"
)

// ParseRentalStatus rejects anything outside the four lifecycle states.
func ParseRentalStatus(s string) (RentalStatus, error) {
	switch RentalStatus(s) {
	case RentalStatusRequested, RentalStatusApproved, RentalStatusCollected, RentalStatusReturned:
		return RentalStatus(s), nil
	}
	return "", fmt.Errorf("unknown rental status %q", s)
}

// Active reports whether the rental counts against the patron's issued books.
func (s RentalStatus) Active() bool {
	return s == RentalStatusApproved || s == RentalStatusCollected
}

// Terminal reports whether no further transition can leave this status.
func (s RentalStatus) Terminal() bool { return s == RentalStatusReturned }

// Title is one book edition. AvailableCopies is only ever moved by the
// guarded counter methods of TitleRepository.
type Title struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title           string    `gorm:"size:255;not null" json:"title"`
	Author          string    `gorm:"size:255;not null" json:"author"`
	ISBN            string    `gorm:"size:32;not null;uniqueIndex" json:"isbn"`
	Description     string    `gorm:"type:text" json:"description"`
	CoverURL        string    `gorm:"size:512" json:"cover_url"`
	OwnedCopies     int       `gorm:"not null;check:chk_titles_owned,owned_copies >= 0" json:"owned_copies"`
	AvailableCopies int       `gorm:"not null;check:chk_titles_available,available_copies >= 0 AND available_copies <= owned_copies" json:"available_copies"`
	CreatedAt       time.Time `gorm:"not null" json:"created_at"`
}

func (t *Title) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

type Patron struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FullName   string    `gorm:"size:255;not null" json:"fullname"`
	Surname    string    `gorm:"size:255;not null" json:"surname"`
	Email      string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	IsVerified bool      `gorm:"not null;default:false" json:"is_verified"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (p *Patron) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

type Admin struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FullName     string    `gorm:"size:255;not null" json:"fullname"`
	Surname      string    `gorm:"size:255;not null" json:"surname"`
	Username     string    `gorm:"size:80;not null;uniqueIndex" json:"username"`
	Email        string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	OrgNumber    string    `gorm:"size:64;not null" json:"org_number"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
}

func (a *Admin) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Rental is one borrow request. Rows are never deleted; each timestamp is
// written once by the transition that owns it.
type Rental struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	TitleID     uuid.UUID    `gorm:"type:uuid;not null;index" json:"title_id"`
	Title       *Title       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"title,omitempty"`
	PatronID    uuid.UUID    `gorm:"type:uuid;not null;index" json:"patron_id"`
	Patron      *Patron      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"patron,omitempty"`
	Status      RentalStatus `gorm:"size:16;not null;index" json:"status"`
	RequestedAt time.Time    `gorm:"not null" json:"requested_at"`
	ApprovedAt  *time.Time   `json:"approved_at,omitempty"`
	CollectedAt *time.Time   `json:"collected_at,omitempty"`
	ReturnedAt  *time.Time   `json:"returned_at,omitempty"`
}

func (r *Rental) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// All lists every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{&Title{}, &Patron{}, &Admin{}, &Rental{}}
}
