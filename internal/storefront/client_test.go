package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/cartsync/pkg/errors"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient("http://shop.test/", WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient("  "); !errors.Is(err, errBaseURLRequired) {
		t.Fatalf("expected errBaseURLRequired, got %v", err)
	}
}

func TestFetchCartDecodesSnapshot(t *testing.T) {
	respBody := `{"cart_items":[{"id":7,"name":"GMT-Master II","brand":"Rolex","price":"15200.00","quantity":2,"image_url":"watches/rolex-gmt.jpg"}],"total_items":2,"total_price":30400}`

	var capturedURL, capturedMethod string
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		capturedMethod = req.Method
		if req.Header.Get(RequestIDHeader) == "" {
			t.Fatalf("request id header missing")
		}
		if req.Header.Get(DefaultCSRFHeader) != "" {
			t.Fatalf("csrf header must not be sent on GET")
		}
		return jsonResponse(http.StatusOK, respBody), nil
	})

	cart, err := client.FetchCart(context.Background())
	if err != nil {
		t.Fatalf("fetch cart: %v", err)
	}
	if capturedMethod != http.MethodGet || capturedURL != "http://shop.test/api/carrito/" {
		t.Fatalf("unexpected request %s %s", capturedMethod, capturedURL)
	}
	if len(cart.Items) != 1 || cart.Items[0].ID != 7 || cart.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items %+v", cart.Items)
	}
	if cart.TotalItems != 2 || cart.TotalPrice.String() != "30400.00" {
		t.Fatalf("unexpected totals %d %s", cart.TotalItems, cart.TotalPrice)
	}
}

func TestFetchCartRejectsMalformedSnapshot(t *testing.T) {
	cases := map[string]string{
		"missing items":     `{"total_items":0,"total_price":0}`,
		"zero quantity":     `{"cart_items":[{"id":1,"price":10,"quantity":0}],"total_items":0,"total_price":0}`,
		"negative total":    `{"cart_items":[],"total_items":-1,"total_price":0}`,
		"negative price":    `{"cart_items":[{"id":1,"price":-10,"quantity":1}],"total_items":1,"total_price":0}`,
		"not json":          `<html>oops</html>`,
		"string for number": `{"cart_items":[],"total_items":"two","total_price":0}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, body), nil
			})
			_, err := client.FetchCart(context.Background())
			if !pkgerrors.IsCode(err, pkgerrors.CodeMalformed) {
				t.Fatalf("expected malformed error, got %v", err)
			}
		})
	}
}

func TestFetchCartMapsHTTPFailure(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, `{"status":"error"}`), nil
	})
	_, err := client.FetchCart(context.Background())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok || details["http_status"] != http.StatusInternalServerError {
		t.Fatalf("unexpected details %#v", typed.Details())
	}
}

func TestAddItemReportsTotal(t *testing.T) {
	var capturedURL string
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		if req.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", req.Method)
		}
		return jsonResponse(http.StatusOK, `{"status":"ok","total_items":4}`), nil
	})

	result, err := client.AddItem(context.Background(), 3)
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if capturedURL != "http://shop.test/carrito/agregar/3/" {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if result.TotalItems != 4 {
		t.Fatalf("unexpected total %d", result.TotalItems)
	}
}

func TestAddItemStatusHandling(t *testing.T) {
	cases := []struct {
		name string
		body string
		code pkgerrors.Code
	}{
		{name: "rejected", body: `{"status":"error","message":"agotado"}`, code: pkgerrors.CodeRejected},
		{name: "missing total", body: `{"status":"ok"}`, code: pkgerrors.CodeMalformed},
		{name: "negative total", body: `{"status":"ok","total_items":-2}`, code: pkgerrors.CodeMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, tc.body), nil
			})
			_, err := client.AddItem(context.Background(), 1)
			if !pkgerrors.IsCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestAddItemRejectsInvalidProduct(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	if _, err := client.AddItem(context.Background(), 0); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateQuantitySendsAction(t *testing.T) {
	var payload map[string]string
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/carrito/actualizar/9/" {
			t.Fatalf("unexpected path %q", req.URL.Path)
		}
		if req.Header.Get("Content-Type") != "application/json" {
			t.Fatalf("missing content type")
		}
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("unmarshal body: %v", err)
		}
		return jsonResponse(http.StatusOK, `{"status":"ok"}`), nil
	})

	if err := client.UpdateQuantity(context.Background(), 9, ActionDecrease); err != nil {
		t.Fatalf("update quantity: %v", err)
	}
	if payload["action"] != "decrease" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if err := client.UpdateQuantity(context.Background(), 9, QuantityAction("double")); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMutationsCarryCSRFToken(t *testing.T) {
	var seen string
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		seen = req.Header.Get(DefaultCSRFHeader)
		return jsonResponse(http.StatusOK, `{"status":"ok"}`), nil
	})
	base, _ := url.Parse("http://shop.test/")
	client.httpClient.Jar.SetCookies(base, []*http.Cookie{{Name: DefaultCSRFCookie, Value: "tok-123", Path: "/"}})

	if client.CSRFToken() != "tok-123" {
		t.Fatalf("unexpected token %q", client.CSRFToken())
	}
	if err := client.RemoveLine(context.Background(), 5); err != nil {
		t.Fatalf("remove line: %v", err)
	}
	if seen != "tok-123" {
		t.Fatalf("csrf header not sent, got %q", seen)
	}
}

func TestTransportTimeoutMapsToTimeoutCode(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return nil, context.DeadlineExceeded
	})
	err := client.ToggleFavorite(context.Background(), 2)
	if !pkgerrors.IsCode(err, pkgerrors.CodeTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestStreamChatValidatesMessage(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	if _, err := client.StreamChat(context.Background(), "   "); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
