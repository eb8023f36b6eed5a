package storefront

import (
	"fmt"
	"reflect"
	"strings"

	pkgerrors "github.com/angelmondragon/cartsync/pkg/errors"
	"github.com/angelmondragon/cartsync/pkg/types"
	"github.com/go-playground/validator/v10"
)

// QuantityAction is the body of the update-quantity endpoint.
type QuantityAction string

const (
	ActionIncrease QuantityAction = "increase"
	ActionDecrease QuantityAction = "decrease"
)

func (a QuantityAction) Valid() bool {
	return a == ActionIncrease || a == ActionDecrease
}

// CartItemPayload is one entry of cart_items.
type CartItemPayload struct {
	ID       int         `json:"id" validate:"gt=0"`
	Name     string      `json:"name"`
	Brand    string      `json:"brand"`
	Price    types.Money `json:"price"`
	Quantity int         `json:"quantity" validate:"gte=1"`
	ImageURL string      `json:"image_url"`
}

// CartPayload is the body of the cart snapshot endpoint.
type CartPayload struct {
	Items      []CartItemPayload `json:"cart_items" validate:"required,dive"`
	TotalItems int               `json:"total_items" validate:"gte=0"`
	TotalPrice types.Money       `json:"total_price"`
}

// StatusPayload is the body every mutation endpoint answers with.
type StatusPayload struct {
	Status     string `json:"status"`
	TotalItems *int   `json:"total_items,omitempty"`
	Message    string `json:"message,omitempty"`
}

// AddResult carries the aggregate the add endpoint reports back.
type AddResult struct {
	TotalItems int
}

type quantityRequest struct {
	Action QuantityAction `json:"action"`
}

type chatRequest struct {
	Message string `json:"message"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		item := sl.Current().Interface().(CartItemPayload)
		if item.Price.IsNegative() {
			sl.ReportError(item.Price, "price", "Price", "nonnegative_money", "")
		}
	}, CartItemPayload{})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		cart := sl.Current().Interface().(CartPayload)
		if cart.TotalPrice.IsNegative() {
			sl.ReportError(cart.TotalPrice, "total_price", "TotalPrice", "nonnegative_money", "")
		}
	}, CartPayload{})
	return v
}

// validatePayload checks a decoded response against its shape rules.
func validatePayload(payload any, action string) error {
	if err := validate.Struct(payload); err != nil {
		return formatValidationErrors(err, action)
	}
	return nil
}

func formatValidationErrors(err error, action string) *pkgerrors.Error {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Namespace()] = validationMessage(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeMalformed, "invalid "+action+" response").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeMalformed, err, "invalid "+action+" response")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "nonnegative_money":
		return "must not be negative"
	}
	return "is invalid"
}
