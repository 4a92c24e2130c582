package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/learnhub/learnhub/internal/models"
	"github.com/learnhub/learnhub/pkg/crypto"
)

// SeedOptions describes the accounts created on first start.
type SeedOptions struct {
	Admin *AdminSeed
}

// AdminSeed is the bootstrap administrator account.
type AdminSeed struct {
	Username string
	Email    string
	Password string
}

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.AuditLog{},
		&models.CacheEntry{},
	)
}

// SeedData creates the bootstrap administrator when configured and not yet present.
func SeedData(db *gorm.DB, opts SeedOptions) error {
	if opts.Admin == nil {
		return nil
	}

	admin := opts.Admin
	username := strings.TrimSpace(admin.Username)
	if username == "" || admin.Password == "" {
		return errors.New("bootstrap admin requires username and password")
	}
	email := strings.ToLower(strings.TrimSpace(admin.Email))
	if email == "" {
		email = username + "@localhost"
	}

	var count int64
	if err := db.Model(&models.User{}).
		Where("LOWER(username) = ? OR LOWER(email) = ?", strings.ToLower(username), email).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := crypto.HashPassword(admin.Password)
	if err != nil {
		return fmt.Errorf("hash bootstrap admin password: %w", err)
	}

	return db.Create(&models.User{
		Username: username,
		Email:    email,
		Password: hash,
		FullName: "Administrator",
		Role:     models.RoleAdmin,
	}).Error
}
