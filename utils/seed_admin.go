package utils

import (
	"context"
	"fmt"
	"strings"

	"github.com/princinho/studyspark/auth"
	"github.com/princinho/studyspark/database"
	"github.com/princinho/studyspark/models"
	"go.uber.org/zap"
)

// SeedAdminUser makes sure an admin account exists. Missing credentials skip
// seeding instead of failing start-up.
func SeedAdminUser(ctx context.Context, users database.UserStore, email, password string, hashCost int, log *zap.Logger) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		log.Warn("admin seed skipped: admin.email or admin.password not set")
		return nil
	}

	hash, err := HashPassword(password, hashCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	created, err := users.EnsureAdmin(ctx, &models.User{
		Name:         "Administrator",
		Email:        email,
		PasswordHash: hash,
		Role:         auth.RoleAdmin,
		IsActive:     true,
	})
	if err != nil {
		return fmt.Errorf("seed admin upsert failed: %w", err)
	}

	if created {
		log.Info("admin user seeded", zap.String("email", email))
	} else {
		log.Info("admin user already exists", zap.String("email", email))
	}
	return nil
}
