package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aTrapDeer/portfolio-backend/internal/apperrors"
	"github.com/aTrapDeer/portfolio-backend/internal/auth"
	"github.com/aTrapDeer/portfolio-backend/internal/domain"
	"github.com/aTrapDeer/portfolio-backend/internal/store"
)

// SignIn checks an email and password against the admin_users table.
func (s *Store) SignIn(ctx context.Context, email, password string) (auth.Identity, error) {
	var user domain.AdminUser
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return auth.Identity{}, auth.ErrInvalidCredentials
		}
		return auth.Identity{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return auth.Identity{}, auth.ErrInvalidCredentials
	}
	return auth.Identity{ID: user.ID, Email: user.Email}, nil
}

// EnsureAdmin creates the admin user, or resets its password when it
// already exists.
func (s *Store) EnsureAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return fmt.Errorf("%w: admin email and password are required", apperrors.ErrInvalid)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	var user domain.AdminUser
	err = s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = domain.AdminUser{ID: uuid.NewString(), Email: email, PasswordHash: string(hash)}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return translate(err)
		}
		s.logger.Info("admin user created", zap.String("email", email))
	case err != nil:
		return err
	default:
		user.PasswordHash = string(hash)
		if err := s.db.WithContext(ctx).Save(&user).Error; err != nil {
			return translate(err)
		}
	}
	return nil
}

// EnsureProfile provisions the singleton profile row if the table is empty.
func (s *Store) EnsureProfile(ctx context.Context, p domain.Profile) error {
	_, err := s.Singleton(ctx, domain.TableProfile)
	if err == nil || !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	if p.AvailabilityStatus == "" {
		p.AvailabilityStatus = domain.Available
	}
	if err := p.Validate(); err != nil {
		return err
	}
	row, err := store.Encode(p, "id", "created_at", "updated_at")
	if err != nil {
		return err
	}
	_, err = s.Insert(ctx, domain.TableProfile, row)
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
