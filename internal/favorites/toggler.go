// Package favorites flips a product's favorite flag optimistically and
// settles it once the storefront answers.
package favorites

import (
	"context"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/cartsync/pkg/errors"
	"github.com/angelmondragon/cartsync/pkg/logger"
	"github.com/angelmondragon/cartsync/pkg/metrics"
)

const (
	defaultRequestTimeout = 10 * time.Second
	opToggle              = "toggle_favorite"
)

// Phase tracks a toggle from the optimistic flip to its outcome.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseTentative Phase = "tentative"
	PhaseConfirmed Phase = "confirmed"
	PhaseReverted  Phase = "reverted"
)

type API interface {
	ToggleFavorite(ctx context.Context, productID int) error
}

// State is what a favorite button shows.
type State struct {
	ProductID int
	Active    bool
	Phase     Phase
}

// Update is published after every change. LoginRequested asks the page to
// open the login modal.
type Update struct {
	State          State
	LoginRequested bool
}

type Params struct {
	API            API
	Logger         *logger.Logger
	Metrics        *metrics.SyncMetrics
	RequestTimeout time.Duration
	Authenticated  bool
}

type Toggler struct {
	api     API
	logg    *logger.Logger
	metrics *metrics.SyncMetrics
	timeout time.Duration

	mu             sync.Mutex
	authenticated  bool
	loginRequested bool
	states         map[int]State
	subs           map[int]func(Update)
	nextSub        int
}

func New(params Params) (*Toggler, error) {
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
	return &Toggler{
		api:           params.API,
		logg:          logg,
		metrics:       params.Metrics,
		timeout:       timeout,
		authenticated: params.Authenticated,
		states:        map[int]State{},
		subs:          map[int]func(Update){},
	}, nil
}

// Seed marks the products the page rendered as already favorited.
func (t *Toggler) Seed(productIDs []int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range productIDs {
		if id > 0 {
			t.states[id] = State{ProductID: id, Active: true, Phase: PhaseIdle}
		}
	}
}

func (t *Toggler) SetAuthenticated(authenticated bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.authenticated = authenticated
	if authenticated {
		t.loginRequested = false
	}
}

// LoginRequested reports whether a toggle was refused for lack of a session.
func (t *Toggler) LoginRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loginRequested
}

func (t *Toggler) State(productID int) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked(productID)
}

func (t *Toggler) stateLocked(productID int) State {
	if st, ok := t.states[productID]; ok {
		return st
	}
	return State{ProductID: productID, Phase: PhaseIdle}
}

// Subscribe registers fn for every update and returns a cancel func.
func (t *Toggler) Subscribe(fn func(Update)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

// Toggle flips the flag right away and reverts it if the storefront refuses.
// Anonymous visitors get the login modal instead and no request is sent.
func (t *Toggler) Toggle(ctx context.Context, productID int) error {
	ctx = t.logg.WithProductID(t.logg.WithOperation(ctx, opToggle), productID)
	if productID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}

	t.mu.Lock()
	if !t.authenticated {
		t.loginRequested = true
		update, subs := t.publishLocked(t.stateLocked(productID))
		t.mu.Unlock()
		t.deliver(update, subs)
		t.logg.Debug(ctx, "favorites.login_required")
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "login required to save favorites")
	}
	prev := t.stateLocked(productID)
	if prev.Phase == PhaseTentative {
		t.mu.Unlock()
		return pkgerrors.New(pkgerrors.CodeConflict, "favorite toggle already in progress").
			WithDetails(map[string]any{"product_id": productID})
	}
	next := State{ProductID: productID, Active: !prev.Active, Phase: PhaseTentative}
	t.states[productID] = next
	update, subs := t.publishLocked(next)
	t.mu.Unlock()
	t.deliver(update, subs)

	err := t.call(ctx, productID)

	t.mu.Lock()
	settled := next
	if err != nil {
		settled = State{ProductID: productID, Active: prev.Active, Phase: PhaseReverted}
	} else {
		settled.Phase = PhaseConfirmed
	}
	t.states[productID] = settled
	update, subs = t.publishLocked(settled)
	t.mu.Unlock()
	t.deliver(update, subs)

	if err != nil {
		t.logg.Warn(t.logg.WithFields(ctx, pkgerrors.Dump(err).Fields()), "favorites.toggle.reverted")
		return err
	}
	t.logg.Debug(t.logg.WithField(ctx, "active", settled.Active), "favorites.toggle.confirmed")
	return nil
}

func (t *Toggler) call(ctx context.Context, productID int) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	start := time.Now()
	err := t.api.ToggleFavorite(ctx, productID)
	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
	case pkgerrors.IsCode(err, pkgerrors.CodeRejected):
		outcome = metrics.OutcomeRejected
	case pkgerrors.IsCode(err, pkgerrors.CodeTimeout):
		outcome = metrics.OutcomeTimeout
	default:
		outcome = metrics.OutcomeFailed
	}
	t.metrics.ObserveRequest(opToggle, outcome, time.Since(start))
	return err
}

func (t *Toggler) publishLocked(st State) (Update, []func(Update)) {
	update := Update{State: st, LoginRequested: t.loginRequested}
	subs := make([]func(Update), 0, len(t.subs))
	for _, sub := range t.subs {
		subs = append(subs, sub)
	}
	return update, subs
}

func (t *Toggler) deliver(update Update, subs []func(Update)) {
	for _, sub := range subs {
		sub(update)
	}
}
