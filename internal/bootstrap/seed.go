// Package bootstrap holds one-off startup routines that run outside the
// rental engine.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/SatyamPandey-07/lms--3/internal/config"
	"github.com/SatyamPandey-07/lms--3/internal/models"
	"github.com/SatyamPandey-07/lms--3/internal/repositories"
)

// SeedAdmin makes sure the configured admin account exists. Running it again
// is a no-op; the stored password is never overwritten. The returned bool
// reports whether a row was inserted.
func SeedAdmin(ctx context.Context, db *gorm.DB, admins repositories.AdminRepository, seed config.AdminSeed, log *slog.Logger) (*models.Admin, bool, error) {
	if !seed.Enabled() {
		return nil, false, nil
	}
	email := strings.ToLower(strings.TrimSpace(seed.Email))

	var (
		admin   *models.Admin
		created bool
	)
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := admins.GetByEmail(tx, email)
		if err == nil {
			admin = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(seed.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash admin password: %w", err)
		}
		admin = &models.Admin{
			FullName:     seed.FullName,
			Surname:      seed.Surname,
			Username:     seed.Username,
			Email:        email,
			OrgNumber:    seed.OrgNumber,
			PasswordHash: string(hash),
			CreatedAt:    time.Now().UTC(),
		}
		if err := admins.Create(tx, admin); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("seed admin: %w", err)
	}

	if created {
		log.Info("admin seeded", "admin_id", admin.ID, "email", admin.Email)
	} else {
		log.Debug("admin already present", "admin_id", admin.ID)
	}
	return admin, created, nil
}
