package service

import (
	"errors"
	"fmt"

	"github.com/shinyyama/tripmatch-backend/internal/domainerr"
	"gorm.io/gorm"
)

var (
	ErrValidation        = domainerr.ErrValidation
	ErrNotFound          = domainerr.ErrNotFound
	ErrCapacityConflict  = domainerr.ErrCapacityConflict
	ErrInvalidTransition = domainerr.ErrInvalidTransition
	ErrForbidden         = domainerr.ErrForbidden
)

// notFound translates gorm's missing-row error into ErrNotFound and passes anything else through.
func notFound(err error, resource, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainerr.NotFound(resource, id)
	}
	return err
}

func forbidden(reason string) error {
	return domainerr.Forbidden(reason)
}

func capacityConflict(tripID string) error {
	return fmt.Errorf("trip %s has no room left: %w", tripID, ErrCapacityConflict)
}
