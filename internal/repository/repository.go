package repository

import (
	"errors"

	"gorm.io/gorm"

	apperrors "trade-confirmation-backend/internal/errors"
)

// notFound maps gorm's missing-row error onto the domain sentinel.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Wrap(apperrors.ErrNotFound, what)
	}
	return err
}
