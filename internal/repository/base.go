// Package repository implements the data access layer for the application.
package repository

import (
	"errors"

	"tribune/internal/database"
	"tribune/internal/models"

	"gorm.io/gorm"
)

func readDB(primary *gorm.DB) *gorm.DB {
	if db := database.GetReadDB(); db != nil {
		return db
	}
	return primary
}

// notFoundOr maps gorm.ErrRecordNotFound to a NOT_FOUND AppError and anything
// else to INTERNAL_ERROR.
func notFoundOr(err error, resource string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	return models.NewInternalError(err)
}

func isAppError(err error) bool {
	var appErr *models.AppError
	return errors.As(err, &appErr)
}
