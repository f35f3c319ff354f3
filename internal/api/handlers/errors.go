package handlers

import (
	"net/http"
	"sync"

	"github.com/tabletop-shop/shop-engine/internal/domain"
	apperrors "github.com/tabletop-shop/shop-engine/pkg/errors"
	"github.com/tabletop-shop/shop-engine/pkg/resilience"
)

var registerOnce sync.Once

// RegisterDomainErrors maps domain sentinels to API error codes and statuses
func RegisterDomainErrors() {
	registerOnce.Do(func() {
		mappings := []struct {
			err    error
			code   string
			status int
		}{
			{domain.ErrItemNotFound, apperrors.CodeItemNotFound, http.StatusNotFound},
			{domain.ErrItemNotInBasket, apperrors.CodeItemNotInBasket, http.StatusNotFound},
			{domain.ErrCharacterNotFound, apperrors.CodeNotFound, http.StatusNotFound},
			{domain.ErrInsufficientStock, apperrors.CodeInsufficientStock, http.StatusConflict},
			{domain.ErrBasketsLocked, apperrors.CodeBasketsLocked, http.StatusConflict},
			{domain.ErrCheckoutInProgress, apperrors.CodeCheckoutInProgress, http.StatusConflict},
			{domain.ErrConcurrentModification, apperrors.CodeConcurrentModification, http.StatusConflict},
			{domain.ErrCannotMerge, apperrors.CodeCannotMerge, http.StatusConflict},
			{domain.ErrNotMerged, apperrors.CodeNotMerged, http.StatusConflict},
			{domain.ErrShopMismatch, apperrors.CodeConflict, http.StatusConflict},
			{domain.ErrShopNotConfigured, apperrors.CodeShopNotConfigured, http.StatusUnprocessableEntity},
			{domain.ErrNoSellSource, apperrors.CodeUnprocessable, http.StatusUnprocessableEntity},
			{domain.ErrCatalogEmpty, apperrors.CodeUnprocessable, http.StatusUnprocessableEntity},
			{domain.ErrEmptyBaskets, apperrors.CodeUnprocessable, http.StatusUnprocessableEntity},
			{domain.ErrNoCharacter, apperrors.CodeUnprocessable, http.StatusUnprocessableEntity},
			{domain.ErrInsufficientFunds, apperrors.CodeUnprocessable, http.StatusUnprocessableEntity},
			{domain.ErrInvalidDiceNotation, apperrors.CodeValidationError, http.StatusBadRequest},
			{domain.ErrInvalidAmount, apperrors.CodeValidationError, http.StatusBadRequest},
			{domain.ErrInvalidQuantity, apperrors.CodeValidationError, http.StatusBadRequest},
			{domain.ErrInvalidShop, apperrors.CodeValidationError, http.StatusBadRequest},
			{domain.ErrInvalidHaggle, apperrors.CodeValidationError, http.StatusBadRequest},
			{domain.ErrPersistence, apperrors.CodePersistenceError, http.StatusInternalServerError},
			{resilience.ErrCircuitOpen, apperrors.CodeServiceUnavailable, http.StatusServiceUnavailable},
		}
		for _, m := range mappings {
			apperrors.RegisterDomainError(m.err, m.code, m.status)
		}
	})
}
