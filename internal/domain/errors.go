package domain

import (
	"errors"
	"net/http"

	apperrors "github.com/utafrali/cartstore/pkg/errors"
)

// Kind classifies a failed cart operation.
type Kind string

const (
	KindProductNotFound   Kind = "PRODUCT_NOT_FOUND"
	KindInsufficientStock Kind = "INSUFFICIENT_STOCK"
	KindProductNotInCart  Kind = "PRODUCT_NOT_IN_CART"
	KindAddFailed         Kind = "ADD_FAILED"
	KindUpdateFailed      Kind = "UPDATE_FAILED"
	KindPersistenceFailed Kind = "PERSISTENCE_FAILED"
)

// Sentinels matched with errors.Is against the errors returned by the store.
var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrProductNotInCart  = errors.New("product not in cart")
	ErrAddFailed         = errors.New("add product failed")
	ErrUpdateFailed      = errors.New("update product amount failed")
	ErrPersistenceFailed = errors.New("cart persistence failed")

	// ErrInvalidCart marks a persisted cart that breaks the cart invariants.
	ErrInvalidCart = errors.New("invalid cart")
)

// User-facing messages, one per kind.
const (
	MsgProductNotFound   = "Product not found"
	MsgInsufficientStock = "Requested quantity is out of stock"
	MsgRemoveFailed      = "Error removing product"
	MsgAddFailed         = "Error adding product"
	MsgUpdateFailed      = "Error updating product amount"
	MsgPersistenceFailed = "Cart could not be saved"
)

// ProductNotFound is reported when the catalog has no such product.
func ProductNotFound(cause error) *apperrors.AppError {
	return apperrors.New(string(KindProductNotFound), MsgProductNotFound, http.StatusNotFound, join(ErrProductNotFound, cause))
}

// InsufficientStock is reported when the requested amount exceeds stock.
func InsufficientStock() *apperrors.AppError {
	return apperrors.New(string(KindInsufficientStock), MsgInsufficientStock, http.StatusConflict, ErrInsufficientStock)
}

// ProductNotInCart is reported by remove and update for unknown entries. The
// message depends on which operation hit it.
func ProductNotInCart(message string) *apperrors.AppError {
	return apperrors.New(string(KindProductNotInCart), message, http.StatusNotFound, ErrProductNotInCart)
}

// AddFailed wraps a lookup failure during add.
func AddFailed(cause error) *apperrors.AppError {
	return apperrors.New(string(KindAddFailed), MsgAddFailed, http.StatusBadGateway, join(ErrAddFailed, cause))
}

// UpdateFailed wraps a lookup failure during update.
func UpdateFailed(cause error) *apperrors.AppError {
	return apperrors.New(string(KindUpdateFailed), MsgUpdateFailed, http.StatusBadGateway, join(ErrUpdateFailed, cause))
}

// PersistenceFailed wraps a failed write of the committed cart.
func PersistenceFailed(cause error) *apperrors.AppError {
	return apperrors.New(string(KindPersistenceFailed), MsgPersistenceFailed, http.StatusInternalServerError, join(ErrPersistenceFailed, cause))
}

// KindOf returns the cart error kind carried by err, or "" if there is none.
func KindOf(err error) Kind {
	if appErr, ok := apperrors.As(err); ok {
		return Kind(appErr.Code)
	}
	return ""
}

func join(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return errors.Join(sentinel, cause)
}
