package cartsync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/cartsync/internal/storefront"
	"github.com/angelmondragon/cartsync/internal/storefront/storefronttest"
	"github.com/angelmondragon/cartsync/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const (
	testWait = 2 * time.Second
	testTick = 5 * time.Millisecond
)

var testCatalog = []storefronttest.Product{
	{ID: 1, Name: "Submariner", Brand: "Rolex", Price: types.MoneyFromInt(100), ImageURL: "watches/sub.jpg"},
	{ID: 2, Name: "Speedmaster", Brand: "Omega", Price: types.MoneyFromInt(40), ImageURL: "watches/speedy.jpg"},
	{ID: 5, Name: "Royal Oak", Brand: "Audemars Piguet", Price: types.MoneyFromInt(250), ImageURL: "watches/ro.jpg"},
}

// newShopSync wires a Sync to a fresh fake storefront through the real client.
func newShopSync(t *testing.T, shop *storefronttest.Shop, params Params) *Sync {
	t.Helper()
	srv := shop.Start()
	t.Cleanup(srv.Close)

	client, err := storefront.NewClient(srv.URL)
	require.NoError(t, err)
	require.NoError(t, client.PrimeSession(context.Background()))

	params.API = client
	if params.AddConfirmHold == 0 {
		params.AddConfirmHold = 20 * time.Millisecond
	}
	s, err := New(params)
	require.NoError(t, err)
	return s
}

func newTestShop(opts ...storefronttest.Option) *storefronttest.Shop {
	return storefronttest.NewShop(append([]storefronttest.Option{storefronttest.WithCatalog(testCatalog)}, opts...)...)
}

// summarize renders the user-visible parts of a view as text for comparisons.
func summarize(v View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "open=%t status=%s badge=%d/%t checkout=%t total=%d/%s lines=[",
		v.Open, v.Status, v.Badge.Count, v.Badge.Hidden, v.CheckoutEnabled,
		v.Snapshot.TotalItems, v.Snapshot.TotalPrice)
	for _, l := range v.Lines {
		fmt.Fprintf(&b, " %dx%d@%s", l.ID, l.Quantity, l.Price)
		if l.Pending {
			b.WriteString("P")
		}
		if l.Dimmed {
			b.WriteString("D")
		}
	}
	b.WriteString(" ]")
	return b.String()
}

type frameRecorder struct {
	mu     sync.Mutex
	frames []Frame
}

func record(s *Sync) *frameRecorder {
	r := &frameRecorder{}
	s.Subscribe(func(f Frame) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.frames = append(r.frames, f)
	})
	return r
}

func (r *frameRecorder) kinds() []FrameKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]FrameKind, 0, len(r.frames))
	for _, f := range r.frames {
		out = append(out, f.Kind)
	}
	return out
}

func (r *frameRecorder) versions() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, 0, len(r.frames))
	for _, f := range r.frames {
		out = append(out, f.View.Version)
	}
	return out
}

func cartPayload(items ...storefront.CartItemPayload) storefront.CartPayload {
	payload := storefront.CartPayload{Items: append([]storefront.CartItemPayload{}, items...)}
	for _, item := range items {
		payload.TotalItems += item.Quantity
		payload.TotalPrice = payload.TotalPrice.Add(item.Price.Times(item.Quantity))
	}
	return payload
}

func item(id, qty int, price int64) storefront.CartItemPayload {
	return storefront.CartItemPayload{
		ID:       id,
		Name:     fmt.Sprintf("watch-%d", id),
		Brand:    "Rolex",
		Price:    types.MoneyFromInt(price),
		Quantity: qty,
	}
}

type fetchStep struct {
	payload storefront.CartPayload
	err     error
	gate    chan struct{}
}

// scriptedAPI answers fetches from a script and mutations from fixed results.
type scriptedAPI struct {
	mu      sync.Mutex
	steps   []fetchStep
	fetches int

	addResult storefront.AddResult
	mutateErr error
}

func (a *scriptedAPI) FetchCart(ctx context.Context) (*storefront.CartPayload, error) {
	a.mu.Lock()
	if a.fetches >= len(a.steps) {
		a.mu.Unlock()
		return nil, fmt.Errorf("unexpected fetch %d", a.fetches+1)
	}
	step := a.steps[a.fetches]
	a.fetches++
	a.mu.Unlock()

	if step.gate != nil {
		select {
		case <-step.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if step.err != nil {
		return nil, step.err
	}
	payload := step.payload
	return &payload, nil
}

func (a *scriptedAPI) fetchCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fetches
}

func (a *scriptedAPI) AddItem(context.Context, int) (storefront.AddResult, error) {
	return a.addResult, a.mutateErr
}

func (a *scriptedAPI) RemoveLine(context.Context, int) error { return a.mutateErr }

func (a *scriptedAPI) UpdateQuantity(context.Context, int, storefront.QuantityAction) error {
	return a.mutateErr
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}
