package storefront

import (
	"context"
	"fmt"
	"net/http"

	pkgerrors "github.com/angelmondragon/cartsync/pkg/errors"
)

// ToggleFavorite flips the product's favorite flag for the signed-in visitor.
func (c *Client) ToggleFavorite(ctx context.Context, productID int) error {
	if productID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}
	var payload StatusPayload
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf(toggleFavoritePath, productID), struct{}{}, &payload, "toggle favorite"); err != nil {
		return err
	}
	return checkStatus(payload, "toggle favorite")
}
