package repo

import (
	"errors"

	"gorm.io/gorm"

	pkgerrors "github.com/rentavacation/escrow-backend/pkg/errors"
)

// WrapNotFound maps gorm's missing-record sentinel to the shared NOT_FOUND
// code with a domain message; every other error passes through untouched.
func WrapNotFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	}
	return err
}
