package service

import (
	"errors"
	"net/http"

	domainerrors "github.com/quotevault/quotevault-server/internal/errors"
	"github.com/quotevault/quotevault-server/internal/store"
)

// fromStore maps persistence sentinels to domain errors. what names the
// record in not-found messages ("quote", "signature", ...).
func fromStore(err error, what string) error {
	if err == nil {
		return nil
	}

	var conflict *store.StateConflictError
	if errors.As(err, &conflict) {
		return domainerrors.AlreadyResolved(string(conflict.State))
	}
	if errors.Is(err, store.ErrNotFound) {
		return domainerrors.NotFoundf("%s not found", what)
	}

	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		switch storeErr.Code {
		case http.StatusBadRequest:
			return domainerrors.Validation(storeErr.Message)
		case http.StatusConflict:
			return domainerrors.Wrapf(err, domainerrors.CodeValidation, "%s already exists", what)
		}
	}
	return err
}
