package scenario

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/cartsync/internal/cartsync"
	"github.com/angelmondragon/cartsync/internal/catalog"
	"github.com/angelmondragon/cartsync/internal/chat"
	"github.com/angelmondragon/cartsync/internal/favorites"
	"github.com/angelmondragon/cartsync/internal/render"
	"github.com/angelmondragon/cartsync/pkg/logger"
)

const defaultPage = "/catalogo/"

// RunnerParams wires a Runner. Favorites and Chat are optional.
type RunnerParams struct {
	Cart       *cartsync.Sync
	Dispatcher *cartsync.Dispatcher
	Favorites  *favorites.Toggler
	Chat       *chat.Session
	Renderer   *render.Renderer
	Logger     *logger.Logger
	Out        io.Writer
}

// Runner plays scenarios and writes every rendered fragment to Out.
type Runner struct {
	cart       *cartsync.Sync
	dispatcher *cartsync.Dispatcher
	favorites  *favorites.Toggler
	chat       *chat.Session
	renderer   *render.Renderer
	logg       *logger.Logger

	outMu sync.Mutex
	out   io.Writer
}

func NewRunner(params RunnerParams) (*Runner, error) {
	if params.Cart == nil || params.Dispatcher == nil {
		return nil, fmt.Errorf("cart sync and dispatcher required")
	}
	if params.Renderer == nil {
		return nil, fmt.Errorf("renderer required")
	}
	if params.Out == nil {
		params.Out = io.Discard
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Runner{
		cart:       params.Cart,
		dispatcher: params.Dispatcher,
		favorites:  params.Favorites,
		chat:       params.Chat,
		renderer:   params.Renderer,
		logg:       logg,
		out:        params.Out,
	}, nil
}

// Run seeds favorites, subscribes the renderer and executes every step.
// Step failures are logged, not returned; only a cancelled context stops the run.
func (r *Runner) Run(ctx context.Context, sc *Scenario) error {
	ctx = r.logg.WithField(ctx, "scenario", sc.Name)
	cancels := r.attach()
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	if r.favorites != nil {
		r.favorites.Seed(sc.Seed.Favorites)
	}
	page := &url.URL{Path: defaultPage}
	if sc.Page != "" {
		parsed, err := url.Parse(sc.Page)
		if err != nil {
			r.logg.Warn(r.logg.WithFields(ctx, map[string]any{"page": sc.Page, "error": err.Error()}), "scenario.page.invalid")
		} else {
			page = parsed
		}
	}
	state := &runState{page: page}

	r.logg.Info(ctx, "scenario.start")
	for i, step := range sc.Steps {
		if err := r.step(r.logg.WithField(ctx, "step", i), state, step); err != nil {
			return err
		}
	}
	r.dispatcher.Wait()
	r.logg.Info(ctx, "scenario.complete")
	return nil
}

type runState struct {
	mu   sync.Mutex
	page *url.URL
}

func (r *Runner) step(ctx context.Context, state *runState, step Step) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch {
	case step.Event != "":
		r.dispatcher.Dispatch(ctx, step.CartEvent())
	case step.Chat != "":
		if r.chat == nil {
			r.logg.Warn(ctx, "scenario.chat.unwired")
			return nil
		}
		r.chat.Open()
		if err := r.chat.Send(ctx, step.Chat); err != nil {
			r.logg.Debug(ctx, "scenario.chat.failed")
		}
	case len(step.Filters) > 0:
		state.mu.Lock()
		state.page = catalog.ApplyFilters(state.page, step.Filters)
		next := state.page.String()
		state.mu.Unlock()
		r.write("catalog", next)
	case step.Paginate != "":
		state.mu.Lock()
		current := *state.page
		state.mu.Unlock()
		html, err := catalog.PatchPaginationLinks(strings.NewReader(step.Paginate), &current)
		if err != nil {
			r.logg.Error(ctx, "scenario.paginate.failed", err)
			return nil
		}
		r.write("pagination", html)
	case step.Wait > 0:
		select {
		case <-time.After(step.Wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	case len(step.Parallel) > 0:
		g, gctx := errgroup.WithContext(ctx)
		for _, sub := range step.Parallel {
			sub := sub
			g.Go(func() error { return r.step(gctx, state, sub) })
		}
		return g.Wait()
	}
	return nil
}

func (r *Runner) attach() []func() {
	cancels := []func(){
		r.cart.Subscribe(func(f cartsync.Frame) {
			html, err := r.renderer.Frame(f)
			if err != nil {
				r.logg.Error(context.Background(), "scenario.render.failed", err)
				return
			}
			r.write(fmt.Sprintf("v%d %s", f.View.Version, f.Kind), html)
		}),
	}
	if r.favorites != nil {
		cancels = append(cancels, r.favorites.Subscribe(func(u favorites.Update) {
			if html, err := r.renderer.FavoriteButton(u.State); err == nil {
				r.write("favorite", html)
			}
			if u.LoginRequested {
				if html, err := r.renderer.LoginModal(true); err == nil {
					r.write("login", html)
				}
			}
		}))
	}
	if r.chat != nil {
		cancels = append(cancels, r.chat.Subscribe(func(tr chat.Transcript) {
			if html, err := r.renderer.Transcript(tr); err == nil {
				r.write(fmt.Sprintf("chat v%d", tr.Version), html)
			}
		}))
	}
	return cancels
}

func (r *Runner) write(label, body string) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	_, _ = fmt.Fprintf(r.out, "--- %s\n%s\n", label, body)
}
