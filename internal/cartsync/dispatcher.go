package cartsync

import (
	"context"
	"fmt"
	"sync"

	pkgerrors "github.com/angelmondragon/cartsync/pkg/errors"
	"github.com/angelmondragon/cartsync/pkg/logger"
)

type favoriteToggler interface {
	Toggle(ctx context.Context, productID int) error
}

// Dispatcher routes control activations to the cart and favorites. Failures
// are logged and never returned; the widgets already show the reverted state.
type Dispatcher struct {
	cart      *Sync
	favorites favoriteToggler
	logg      *logger.Logger
	wg        sync.WaitGroup
}

// NewDispatcher wires a dispatcher. favorites may be nil when the page has
// no favorite buttons.
func NewDispatcher(s *Sync, favorites favoriteToggler, logg *logger.Logger) (*Dispatcher, error) {
	if s == nil {
		return nil, fmt.Errorf("cart sync required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Dispatcher{cart: s, favorites: favorites, logg: logg}, nil
}

// Dispatch handles ev to completion.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	ctx = d.logg.WithField(ctx, "event", string(ev.Kind))
	decision, err := Decide(ev, d.cart.View())
	if err != nil {
		d.logg.Debug(d.logg.WithFields(ctx, pkgerrors.Dump(err).Fields()), "dispatch.ignored")
		return
	}
	if err := d.run(ctx, decision.Intent); err != nil {
		d.logg.Debug(d.logg.WithField(ctx, "error_code", string(pkgerrors.CodeOf(err))), "dispatch.failed")
	}
}

// Go handles ev on its own goroutine, the way a click handler returns to the
// event loop while its request is in flight.
func (d *Dispatcher) Go(ctx context.Context, ev Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Dispatch(ctx, ev)
	}()
}

// Wait blocks until every event started with Go has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, intent Intent) error {
	switch intent.Op {
	case OpOpen:
		return d.cart.Open(ctx)
	case OpClose:
		d.cart.Close()
		return nil
	case OpAdd:
		return d.cart.Add(ctx, intent.ProductID)
	case OpRemove:
		return d.cart.Remove(ctx, intent.LineID)
	case OpUpdateQuantity:
		return d.cart.UpdateQuantity(ctx, intent.LineID, intent.Action)
	case OpToggleFavorite:
		if d.favorites == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "favorites not wired")
		}
		return d.favorites.Toggle(ctx, intent.ProductID)
	case OpReconcile:
		return d.cart.Reconcile(ctx)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown operation %q", intent.Op))
}
