package storefront

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	pkgerrors "github.com/angelmondragon/cartsync/pkg/errors"
)

// StreamChat posts a chatbot message and returns the streamed reply body.
// The caller owns the returned reader and must close it.
func (c *Client) StreamChat(ctx context.Context, message string) (io.ReadCloser, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "chat message is required")
	}

	req, err := c.newRequest(ctx, http.MethodPost, chatPath, chatRequest{Message: trimmed})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransportError(err, "chat")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		_ = resp.Body.Close()
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"chat request failed").
			WithDetails(map[string]any{"http_status": resp.StatusCode})
	}
	return resp.Body, nil
}
