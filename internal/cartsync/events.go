package cartsync

import (
	"fmt"

	"github.com/angelmondragon/cartsync/internal/storefront"
	pkgerrors "github.com/angelmondragon/cartsync/pkg/errors"
)

// EventKind names the control a user activated.
type EventKind string

const (
	EventCartButton EventKind = "cart-button"
	EventCloseCart  EventKind = "close-cart"
	EventAddToCart  EventKind = "add-to-cart"
	EventRemoveLine EventKind = "remove-line"
	EventQuantity   EventKind = "quantity"
	EventFavorite   EventKind = "favorite"
)

// Event is a control activation with the ids carried by the control.
type Event struct {
	Kind      EventKind
	ProductID int
	LineID    int
	Action    storefront.QuantityAction
}

type Operation string

const (
	OpOpen           Operation = "open"
	OpClose          Operation = "close"
	OpAdd            Operation = "add"
	OpRemove         Operation = "remove"
	OpUpdateQuantity Operation = "update_quantity"
	OpToggleFavorite Operation = "toggle_favorite"
	OpReconcile      Operation = "reconcile"
)

// Intent is the request an event resolves to.
type Intent struct {
	Op        Operation
	ProductID int
	LineID    int
	Action    storefront.QuantityAction
}

// Patch is the immediate feedback applied before the request is issued.
// Zero ids mean no change.
type Patch struct {
	DimLine     int
	DisableLine int
	PendingAdd  int
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p == Patch{}
}

type Decision struct {
	Intent Intent
	Patch  Patch
}

// Decide maps an event against the current view to the request it triggers
// and the optimistic patch to show meanwhile. It has no side effects.
func Decide(ev Event, v View) (Decision, error) {
	switch ev.Kind {
	case EventCartButton:
		return Decision{Intent: Intent{Op: OpOpen}}, nil
	case EventCloseCart:
		return Decision{Intent: Intent{Op: OpClose}}, nil
	case EventAddToCart:
		if err := checkAdd(v, ev.ProductID); err != nil {
			return Decision{}, err
		}
		return Decision{
			Intent: Intent{Op: OpAdd, ProductID: ev.ProductID},
			Patch:  Patch{PendingAdd: ev.ProductID},
		}, nil
	case EventRemoveLine:
		if err := checkLine(v, ev.LineID); err != nil {
			return Decision{}, err
		}
		return Decision{
			Intent: Intent{Op: OpRemove, LineID: ev.LineID},
			Patch:  Patch{DimLine: ev.LineID},
		}, nil
	case EventQuantity:
		if !ev.Action.Valid() {
			return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown quantity action %q", ev.Action))
		}
		if err := checkLine(v, ev.LineID); err != nil {
			return Decision{}, err
		}
		return Decision{
			Intent: Intent{Op: OpUpdateQuantity, LineID: ev.LineID, Action: ev.Action},
			Patch:  Patch{DisableLine: ev.LineID},
		}, nil
	case EventFavorite:
		if ev.ProductID <= 0 {
			return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
		}
		return Decision{Intent: Intent{Op: OpToggleFavorite, ProductID: ev.ProductID}}, nil
	}
	return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown event %q", ev.Kind))
}

func checkAdd(v View, productID int) error {
	if productID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}
	if state := v.AddButton(productID); state != AddIdle {
		return pkgerrors.New(pkgerrors.CodeConflict, "add already in progress").
			WithDetails(map[string]any{"product_id": productID, "state": string(state)})
	}
	return nil
}

func checkLine(v View, lineID int) error {
	if lineID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "line id must be positive")
	}
	lv, ok := v.LineView(lineID)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "line not in cart").
			WithDetails(map[string]any{"line_id": lineID})
	}
	if lv.Pending {
		return pkgerrors.New(pkgerrors.CodeConflict, "line has a mutation in flight").
			WithDetails(map[string]any{"line_id": lineID})
	}
	return nil
}
