package storefront

import (
	"context"
	"fmt"
	"net/http"

	pkgerrors "github.com/angelmondragon/cartsync/pkg/errors"
)

const (
	cartPath           = "/api/carrito/"
	addItemPathFmt     = "/carrito/agregar/%d/"
	removeLinePathFmt  = "/carrito/eliminar/%d/"
	updateLinePathFmt  = "/carrito/actualizar/%d/"
	toggleFavoritePath = "/favoritos/toggle/%d/"
	chatPath           = "/api/chatbot/"
)

// FetchCart returns the full cart snapshot held by the storefront.
func (c *Client) FetchCart(ctx context.Context) (*CartPayload, error) {
	var payload CartPayload
	if err := c.doJSON(ctx, http.MethodGet, cartPath, nil, &payload, "fetch cart"); err != nil {
		return nil, err
	}
	if err := validatePayload(&payload, "fetch cart"); err != nil {
		return nil, err
	}
	return &payload, nil
}

// AddItem adds one unit of the product and returns the new item count.
func (c *Client) AddItem(ctx context.Context, productID int) (AddResult, error) {
	if productID <= 0 {
		return AddResult{}, pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}
	var payload StatusPayload
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf(addItemPathFmt, productID), nil, &payload, "add item"); err != nil {
		return AddResult{}, err
	}
	if err := checkStatus(payload, "add item"); err != nil {
		return AddResult{}, err
	}
	if payload.TotalItems == nil {
		return AddResult{}, pkgerrors.New(pkgerrors.CodeMalformed, "add item response missing total_items")
	}
	if *payload.TotalItems < 0 {
		return AddResult{}, pkgerrors.New(pkgerrors.CodeMalformed, "add item response reported negative total_items")
	}
	return AddResult{TotalItems: *payload.TotalItems}, nil
}

// RemoveLine deletes a cart line regardless of its quantity.
func (c *Client) RemoveLine(ctx context.Context, lineID int) error {
	if lineID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "line id must be positive")
	}
	var payload StatusPayload
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf(removeLinePathFmt, lineID), nil, &payload, "remove line"); err != nil {
		return err
	}
	return checkStatus(payload, "remove line")
}

// UpdateQuantity moves a line's quantity by one unit. The storefront removes
// the line when a decrease would take it below one.
func (c *Client) UpdateQuantity(ctx context.Context, lineID int, action QuantityAction) error {
	if lineID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "line id must be positive")
	}
	if !action.Valid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown quantity action %q", action))
	}
	var payload StatusPayload
	body := quantityRequest{Action: action}
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf(updateLinePathFmt, lineID), body, &payload, "update quantity"); err != nil {
		return err
	}
	return checkStatus(payload, "update quantity")
}

func checkStatus(payload StatusPayload, action string) error {
	if payload.Status == StatusOK {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeRejected, action+" rejected").
		WithDetails(map[string]any{"status": payload.Status, "message": payload.Message})
}
