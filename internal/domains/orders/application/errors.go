package application

import (
	"errors"
	"fmt"

	"github.com/payetonkawa/order-api/internal/domains/orders/domain"
)

// ErrInvalidInput signals the request violated a domain invariant.
var ErrInvalidInput = errors.New("invalid order input")

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrEmptyItems) ||
		errors.Is(err, domain.ErrMissingPrice) ||
		errors.Is(err, domain.ErrInvalidCustomerID) ||
		errors.Is(err, domain.ErrInvalidProductID) ||
		errors.Is(err, domain.ErrInvalidQuantity) ||
		errors.Is(err, domain.ErrInvalidStatus) ||
		errors.Is(err, domain.ErrInvalidTransition) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return err
}
