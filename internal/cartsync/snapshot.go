package cartsync

import (
	"fmt"

	"github.com/angelmondragon/cartsync/internal/storefront"
	"github.com/angelmondragon/cartsync/pkg/types"
	"go.uber.org/multierr"
)

// Line is one product entry of the cart. The line id is the product id.
type Line struct {
	ID       int
	Name     string
	Brand    string
	Price    types.Money
	Quantity int
	ImageURL string
}

// Subtotal is the unit price times the quantity.
func (l Line) Subtotal() types.Money {
	return l.Price.Times(l.Quantity)
}

// Snapshot is the full cart as last reported by the storefront.
type Snapshot struct {
	Lines      []Line
	TotalItems int
	TotalPrice types.Money
}

func snapshotFromPayload(payload *storefront.CartPayload) Snapshot {
	snap := Snapshot{
		Lines:      make([]Line, 0, len(payload.Items)),
		TotalItems: payload.TotalItems,
		TotalPrice: payload.TotalPrice,
	}
	for _, item := range payload.Items {
		snap.Lines = append(snap.Lines, Line{
			ID:       item.ID,
			Name:     item.Name,
			Brand:    item.Brand,
			Price:    item.Price,
			Quantity: item.Quantity,
			ImageURL: item.ImageURL,
		})
	}
	return snap
}

// Empty reports whether the snapshot has no lines.
func (s Snapshot) Empty() bool {
	return len(s.Lines) == 0
}

// Line looks up a line by id.
func (s Snapshot) Line(id int) (Line, bool) {
	for _, l := range s.Lines {
		if l.ID == id {
			return l, true
		}
	}
	return Line{}, false
}

// CheckTotals recomputes both aggregates from the lines and reports every
// disagreement with the server-reported figures.
func (s Snapshot) CheckTotals() error {
	items := 0
	price := types.Money{}
	for _, l := range s.Lines {
		items += l.Quantity
		price = price.Add(l.Subtotal())
	}

	var err error
	if items != s.TotalItems {
		err = multierr.Append(err, fmt.Errorf("total_items is %d, lines add up to %d", s.TotalItems, items))
	}
	if !price.Equal(s.TotalPrice) {
		err = multierr.Append(err, fmt.Errorf("total_price is %s, lines add up to %s", s.TotalPrice, price))
	}
	return err
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Lines = append([]Line(nil), s.Lines...)
	return out
}
