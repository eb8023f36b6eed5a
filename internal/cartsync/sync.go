// Package cartsync keeps a client-side view of the storefront cart. Badge
// updates after an add come straight from the server's reported count;
// removals and quantity changes are followed by a full reconcile.
package cartsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/cartsync/internal/storefront"
	pkgerrors "github.com/angelmondragon/cartsync/pkg/errors"
	"github.com/angelmondragon/cartsync/pkg/logger"
	"github.com/angelmondragon/cartsync/pkg/metrics"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultAddConfirmHold = time.Second
)

// API is the slice of the storefront contract the cart needs.
type API interface {
	FetchCart(ctx context.Context) (*storefront.CartPayload, error)
	AddItem(ctx context.Context, productID int) (storefront.AddResult, error)
	RemoveLine(ctx context.Context, lineID int) error
	UpdateQuantity(ctx context.Context, lineID int, action storefront.QuantityAction) error
}

// Params configure a Sync.
type Params struct {
	API            API
	Logger         *logger.Logger
	Metrics        *metrics.SyncMetrics
	RequestTimeout time.Duration
	AddConfirmHold time.Duration
}

// Sync owns the cart view. It is safe for concurrent use; requests run
// outside the lock so other operations proceed while one waits.
type Sync struct {
	api     API
	logg    *logger.Logger
	metrics *metrics.SyncMetrics
	timeout time.Duration
	hold    time.Duration

	mu      sync.Mutex
	view    View
	pending map[int]bool
	dimmed  map[int]bool
	issued  uint64
	applied uint64
	subs    map[int]func(Frame)
	nextSub int

	outbox    []queuedFrame
	deliverMu sync.Mutex
}

type queuedFrame struct {
	frame Frame
	subs  []func(Frame)
}

// New builds a Sync with an empty, closed cart view.
func New(params Params) (*Sync, error) {
	if params.API == nil {
		return nil, fmt.Errorf("storefront api required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	timeout := params.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	hold := params.AddConfirmHold
	if hold <= 0 {
		hold = defaultAddConfirmHold
	}
	return &Sync{
		api:     params.API,
		logg:    logg,
		metrics: params.Metrics,
		timeout: timeout,
		hold:    hold,
		view:    newView(),
		pending: map[int]bool{},
		dimmed:  map[int]bool{},
		subs:    map[int]func(Frame){},
	}, nil
}

// View returns a copy of the current view.
func (s *Sync) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.clone()
}

// Subscribe registers fn for every published frame and returns a cancel func.
// Every frame is delivered once, in version order. fn must not call back
// into the Sync synchronously.
func (s *Sync) Subscribe(fn func(Frame)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Open shows the panel and reconciles. Opening an open panel just reconciles again.
func (s *Sync) Open(ctx context.Context) error {
	s.update(Frame{Kind: FramePanel}, func() {
		s.view.Open = true
		s.view.Status = StatusLoading
	})
	return s.Reconcile(ctx)
}

// Close hides the panel. Requests in flight keep running.
func (s *Sync) Close() {
	s.update(Frame{Kind: FramePanel}, func() {
		s.view.Open = false
	})
}

// Add puts one unit of the product in the cart. On success only the badge
// changes; the line list is left as is until the next reconcile.
func (s *Sync) Add(ctx context.Context, productID int) error {
	ctx = s.logg.WithProductID(s.logg.WithOperation(ctx, string(OpAdd)), productID)

	if err := s.begin(Frame{Kind: FrameAddButton, ProductID: productID}, Event{Kind: EventAddToCart, ProductID: productID}); err != nil {
		return err
	}

	var result storefront.AddResult
	err := s.call(ctx, OpAdd, func(ctx context.Context) error {
		var err error
		result, err = s.api.AddItem(ctx, productID)
		return err
	})
	if err != nil {
		s.update(Frame{Kind: FrameAddButton, ProductID: productID}, func() {
			delete(s.view.AddButtons, productID)
		})
		s.logFailure(ctx, "cart.add.failed", err)
		return err
	}

	s.update(Frame{Kind: FrameBadge, ProductID: productID}, func() {
		s.view.Badge = badgeFor(result.TotalItems)
	})
	s.update(Frame{Kind: FrameAddButton, ProductID: productID}, func() {
		s.view.AddButtons[productID] = AddConfirmed
	})
	time.AfterFunc(s.hold, func() {
		s.update(Frame{Kind: FrameAddButton, ProductID: productID}, func() {
			if s.view.AddButtons[productID] == AddConfirmed {
				delete(s.view.AddButtons, productID)
			}
		})
	})
	s.logg.Debug(s.logg.WithField(ctx, "total_items", result.TotalItems), "cart.add.complete")
	return nil
}

// Remove deletes a line. The line is dimmed until the follow-up reconcile
// redraws the cart, or restored if the request fails.
func (s *Sync) Remove(ctx context.Context, lineID int) error {
	ctx = s.logg.WithLineID(s.logg.WithOperation(ctx, string(OpRemove)), lineID)

	if err := s.begin(Frame{Kind: FrameLine, LineID: lineID}, Event{Kind: EventRemoveLine, LineID: lineID}); err != nil {
		return err
	}

	err := s.call(ctx, OpRemove, func(ctx context.Context) error {
		return s.api.RemoveLine(ctx, lineID)
	})
	if err != nil {
		s.update(Frame{Kind: FrameLine, LineID: lineID}, func() {
			s.release(lineID)
		})
		s.logFailure(ctx, "cart.remove.failed", err)
		return err
	}
	return s.reconcile(ctx, lineID)
}

// UpdateQuantity moves a line's quantity by one. The line's controls stay
// disabled until the follow-up reconcile, or until the request fails.
func (s *Sync) UpdateQuantity(ctx context.Context, lineID int, action storefront.QuantityAction) error {
	ctx = s.logg.WithLineID(s.logg.WithOperation(ctx, string(OpUpdateQuantity)), lineID)
	ctx = s.logg.WithField(ctx, "action", string(action))

	if err := s.begin(Frame{Kind: FrameLine, LineID: lineID}, Event{Kind: EventQuantity, LineID: lineID, Action: action}); err != nil {
		return err
	}

	err := s.call(ctx, OpUpdateQuantity, func(ctx context.Context) error {
		return s.api.UpdateQuantity(ctx, lineID, action)
	})
	if err != nil {
		s.update(Frame{Kind: FrameLine, LineID: lineID}, func() {
			s.release(lineID)
		})
		s.logFailure(ctx, "cart.update_quantity.failed", err)
		return err
	}
	return s.reconcile(ctx, lineID)
}

// Reconcile fetches the cart and replaces the view with it. A response that
// arrives after a later reconcile was already applied is dropped.
func (s *Sync) Reconcile(ctx context.Context) error {
	return s.reconcile(s.logg.WithOperation(ctx, string(OpReconcile)), 0)
}

// reconcile releases lineID's markers in the same frame that settles the fetch.
func (s *Sync) reconcile(ctx context.Context, lineID int) error {
	s.mu.Lock()
	s.issued++
	seq := s.issued
	s.mu.Unlock()
	ctx = s.logg.WithField(ctx, "reconcile_seq", seq)

	var payload *storefront.CartPayload
	err := s.call(ctx, OpReconcile, func(ctx context.Context) error {
		var err error
		payload, err = s.api.FetchCart(ctx)
		return err
	})
	if err != nil {
		s.update(Frame{Kind: FrameCart, LineID: lineID}, func() {
			s.release(lineID)
			if seq == s.issued {
				s.view.Status = StatusFailed
			}
		})
		s.logg.Error(s.logg.WithField(ctx, "error_code", string(pkgerrors.CodeOf(err))), "cart.reconcile.failed", err)
		return err
	}

	snap := snapshotFromPayload(payload)
	if drift := snap.CheckTotals(); drift != nil {
		s.metrics.IncDrift()
		s.logg.Warn(s.logg.WithField(ctx, "drift", drift.Error()), "cart.reconcile.drift")
	}

	stale := false
	s.update(Frame{Kind: FrameCart, LineID: lineID}, func() {
		s.release(lineID)
		if seq < s.applied {
			stale = true
			return
		}
		s.applied = seq
		s.view.Snapshot = snap
		s.view.Status = StatusReady
		s.view.Badge = badgeFor(snap.TotalItems)
		s.view.CheckoutEnabled = !snap.Empty()
		s.deriveLines()
	})
	if stale {
		s.metrics.IncStale()
		s.logg.Debug(ctx, "cart.reconcile.stale")
		return nil
	}
	s.logg.Debug(s.logg.WithField(ctx, "total_items", snap.TotalItems), "cart.reconcile.complete")
	return nil
}

// begin validates the event against the current view and applies its patch.
func (s *Sync) begin(frame Frame, ev Event) error {
	s.mu.Lock()
	decision, err := Decide(ev, s.view)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.applyPatch(decision.Patch)
	s.publishLocked(frame)
	s.mu.Unlock()

	s.flush()
	return nil
}

// applyPatch must be called with mu held.
func (s *Sync) applyPatch(p Patch) {
	if p.PendingAdd != 0 {
		s.view.AddButtons[p.PendingAdd] = AddPending
	}
	if p.DimLine != 0 {
		s.pending[p.DimLine] = true
		s.dimmed[p.DimLine] = true
	}
	if p.DisableLine != 0 {
		s.pending[p.DisableLine] = true
	}
	s.deriveLines()
}

// release must be called with mu held.
func (s *Sync) release(lineID int) {
	if lineID == 0 {
		return
	}
	delete(s.pending, lineID)
	delete(s.dimmed, lineID)
	s.deriveLines()
}

// deriveLines rebuilds the line views from the snapshot and the marker sets.
// Must be called with mu held.
func (s *Sync) deriveLines() {
	lines := make([]LineView, 0, len(s.view.Snapshot.Lines))
	for _, l := range s.view.Snapshot.Lines {
		lines = append(lines, LineView{
			Line:    l,
			Pending: s.pending[l.ID],
			Dimmed:  s.dimmed[l.ID],
		})
	}
	s.view.Lines = lines
}

// update mutates the view under the lock and publishes the result as frame.
func (s *Sync) update(frame Frame, fn func()) {
	s.mu.Lock()
	fn()
	s.publishLocked(frame)
	s.mu.Unlock()

	s.flush()
}

// publishLocked stamps a new version and queues the frame for the current
// subscribers. Versions are assigned under s.mu, so the outbox is in version order.
func (s *Sync) publishLocked(frame Frame) {
	s.view.Version++
	frame.View = s.view.clone()
	subs := make([]func(Frame), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.outbox = append(s.outbox, queuedFrame{frame: frame, subs: subs})
}

// flush drains the outbox in order. Whoever holds deliverMu delivers frames
// queued by other goroutines too, so when flush returns the caller's own
// frame has been delivered.
func (s *Sync) flush() {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	for {
		s.mu.Lock()
		if len(s.outbox) == 0 {
			s.outbox = nil
			s.mu.Unlock()
			return
		}
		next := s.outbox[0]
		s.outbox[0] = queuedFrame{}
		s.outbox = s.outbox[1:]
		s.mu.Unlock()

		for _, sub := range next.subs {
			sub(next.frame)
		}
	}
}

// call bounds fn with the request timeout and records its outcome.
func (s *Sync) call(ctx context.Context, op Operation, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !pkgerrors.IsCode(err, pkgerrors.CodeTimeout) {
		err = pkgerrors.Wrap(pkgerrors.CodeTimeout, err, string(op)+" timed out")
	}
	s.metrics.ObserveRequest(string(op), outcomeOf(err), time.Since(start))
	return err
}

func (s *Sync) logFailure(ctx context.Context, msg string, err error) {
	s.logg.Warn(s.logg.WithFields(ctx, pkgerrors.Dump(err).Fields()), msg)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case pkgerrors.IsCode(err, pkgerrors.CodeRejected):
		return metrics.OutcomeRejected
	case pkgerrors.IsCode(err, pkgerrors.CodeTimeout):
		return metrics.OutcomeTimeout
	}
	return metrics.OutcomeFailed
}
