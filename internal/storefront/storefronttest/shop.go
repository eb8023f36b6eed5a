// Package storefronttest provides an in-memory storefront that honors the
// cart, favorites and chatbot contract, with per-route fault injection.
package storefronttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/angelmondragon/cartsync/internal/storefront"
	"github.com/angelmondragon/cartsync/pkg/types"
	"github.com/go-chi/chi/v5"
)

// Route names one storefront endpoint for fault injection and call counting.
type Route string

const (
	RouteHome     Route = "home"
	RouteCart     Route = "cart"
	RouteAdd      Route = "add"
	RouteRemove   Route = "remove"
	RouteUpdate   Route = "update"
	RouteFavorite Route = "favorite"
	RouteChat     Route = "chat"
)

const defaultCSRFToken = "test-csrf-token"

// Fault alters the next response of a route. Zero fields are ignored.
type Fault struct {
	// Hold blocks the response until the channel is closed or the request is
	// cancelled. For the cart route the snapshot is captured before blocking.
	Hold <-chan struct{}
	// Status replaces the "ok" status of a mutation; the mutation is not applied.
	Status string
	// HTTPStatus answers with this status code and a JSON error body.
	HTTPStatus int
	// RawBody answers 200 with this body verbatim.
	RawBody string
	// SkewTotals reports total_items one higher than the lines add up to.
	SkewTotals bool
}

type line struct {
	productID int
	quantity  int
}

// Shop is the fake storefront state.
type Shop struct {
	mu            sync.Mutex
	catalog       map[int]Product
	lines         []line
	favorites     map[int]bool
	authenticated bool
	csrfToken     string
	faults        map[Route][]Fault
	calls         map[Route]int
	chatChunks    []string
	chatDelay     time.Duration
}

// Option configures a Shop.
type Option func(*Shop)

func WithCatalog(products []Product) Option {
	return func(s *Shop) {
		s.catalog = make(map[int]Product, len(products))
		for _, p := range products {
			s.catalog[p.ID] = p
		}
	}
}

// WithAuthenticated marks the visitor as signed in, which favorites require.
func WithAuthenticated(authenticated bool) Option {
	return func(s *Shop) { s.authenticated = authenticated }
}

// WithChatReply sets the chunks the chatbot streams back and the pause between them.
func WithChatReply(chunks []string, delay time.Duration) Option {
	return func(s *Shop) {
		s.chatChunks = append([]string(nil), chunks...)
		s.chatDelay = delay
	}
}

// NewShop builds a fake storefront with the default catalog and an empty cart.
func NewShop(opts ...Option) *Shop {
	s := &Shop{
		favorites:  map[int]bool{},
		csrfToken:  defaultCSRFToken,
		faults:     map[Route][]Fault{},
		calls:      map[Route]int{},
		chatChunks: []string{"Hola, ", "¿en qué ", "puedo **ayudarte**?"},
	}
	WithCatalog(DefaultCatalog())(s)
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start serves the shop on a loopback listener. Callers close the server.
func (s *Shop) Start() *httptest.Server {
	return httptest.NewServer(s.Handler())
}

// Handler exposes the storefront routes.
func (s *Shop) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.home)
	r.Get("/api/carrito/", s.cart)
	r.Group(func(r chi.Router) {
		r.Use(s.requireCSRF)
		r.Post("/carrito/agregar/{id}/", s.add)
		r.Post("/carrito/eliminar/{id}/", s.remove)
		r.Post("/carrito/actualizar/{id}/", s.update)
		r.Post("/favoritos/toggle/{id}/", s.toggleFavorite)
		r.Post("/api/chatbot/", s.chat)
	})
	return r
}

// SetLine puts a product in the cart with the given quantity, bypassing the API.
func (s *Shop) SetLine(productID, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.lines {
		if s.lines[i].productID == productID {
			if quantity <= 0 {
				s.lines = append(s.lines[:i], s.lines[i+1:]...)
				return
			}
			s.lines[i].quantity = quantity
			return
		}
	}
	if quantity > 0 {
		s.lines = append(s.lines, line{productID: productID, quantity: quantity})
	}
}

// Quantity returns the stored quantity for a product, zero when absent.
func (s *Shop) Quantity(productID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lines {
		if l.productID == productID {
			return l.quantity
		}
	}
	return 0
}

// SetAuthenticated switches the visitor's signed-in state.
func (s *Shop) SetAuthenticated(authenticated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = authenticated
}

// IsFavorite reports the stored favorite flag of a product.
func (s *Shop) IsFavorite(productID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.favorites[productID]
}

// SetFavorite stores a favorite flag, bypassing the API.
func (s *Shop) SetFavorite(productID int, favorite bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.favorites[productID] = favorite
}

// InjectFault queues a one-shot fault for the next request on route.
func (s *Shop) InjectFault(route Route, fault Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[route] = append(s.faults[route], fault)
}

// Calls returns how many requests route has received.
func (s *Shop) Calls(route Route) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// CSRFToken is the token the home page hands out.
func (s *Shop) CSRFToken() string {
	return s.csrfToken
}

func (s *Shop) begin(route Route) (Fault, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginLocked(route)
}

func (s *Shop) beginLocked(route Route) (Fault, bool) {
	s.calls[route]++
	queue := s.faults[route]
	if len(queue) == 0 {
		return Fault{}, false
	}
	s.faults[route] = queue[1:]
	return queue[0], true
}

// answerFault writes the fault's response when it short-circuits the handler.
func answerFault(w http.ResponseWriter, r *http.Request, fault Fault) bool {
	if fault.Hold != nil {
		select {
		case <-fault.Hold:
		case <-r.Context().Done():
			return true
		}
	}
	if fault.HTTPStatus != 0 {
		writeJSON(w, fault.HTTPStatus, storefront.StatusPayload{Status: "error", Message: http.StatusText(fault.HTTPStatus)})
		return true
	}
	if fault.RawBody != "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(fault.RawBody))
		return true
	}
	if fault.Status != "" {
		writeJSON(w, http.StatusOK, storefront.StatusPayload{Status: fault.Status})
		return true
	}
	return false
}

func (s *Shop) home(w http.ResponseWriter, r *http.Request) {
	s.begin(RouteHome)
	http.SetCookie(w, &http.Cookie{Name: storefront.DefaultCSRFCookie, Value: s.csrfToken, Path: "/"})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<!doctype html><title>Relojes</title>"))
}

func (s *Shop) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(storefront.DefaultCSRFCookie)
		header := r.Header.Get(storefront.DefaultCSRFHeader)
		if err != nil || header == "" || cookie.Value != header {
			writeJSON(w, http.StatusForbidden, storefront.StatusPayload{Status: "error", Message: "CSRF verification failed"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Shop) cart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	fault, faulted := s.beginLocked(RouteCart)
	payload := s.snapshotLocked(fault.SkewTotals)
	s.mu.Unlock()
	if faulted && answerFault(w, r, Fault{Hold: fault.Hold, HTTPStatus: fault.HTTPStatus, RawBody: fault.RawBody}) {
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Shop) snapshot(skew bool) storefront.CartPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(skew)
}

func (s *Shop) snapshotLocked(skew bool) storefront.CartPayload {
	payload := storefront.CartPayload{Items: make([]storefront.CartItemPayload, 0, len(s.lines))}
	for _, l := range s.lines {
		p := s.catalog[l.productID]
		payload.Items = append(payload.Items, storefront.CartItemPayload{
			ID:       p.ID,
			Name:     p.Name,
			Brand:    p.Brand,
			Price:    p.Price,
			Quantity: l.quantity,
			ImageURL: p.ImageURL,
		})
		payload.TotalItems += l.quantity
		payload.TotalPrice = payload.TotalPrice.Add(p.Price.Times(l.quantity))
	}
	if skew {
		payload.TotalItems++
	}
	return payload
}

func (s *Shop) add(w http.ResponseWriter, r *http.Request) {
	fault, faulted := s.begin(RouteAdd)
	if faulted && answerFault(w, r, fault) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	if _, known := s.catalog[id]; !known {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, storefront.StatusPayload{Status: "error", Message: "producto no encontrado"})
		return
	}
	found := false
	for i := range s.lines {
		if s.lines[i].productID == id {
			s.lines[i].quantity++
			found = true
			break
		}
	}
	if !found {
		s.lines = append(s.lines, line{productID: id, quantity: 1})
	}
	total := 0
	for _, l := range s.lines {
		total += l.quantity
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, storefront.StatusPayload{Status: storefront.StatusOK, TotalItems: &total})
}

func (s *Shop) remove(w http.ResponseWriter, r *http.Request) {
	fault, faulted := s.begin(RouteRemove)
	if faulted && answerFault(w, r, fault) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.SetLine(id, 0)
	writeJSON(w, http.StatusOK, storefront.StatusPayload{Status: storefront.StatusOK})
}

func (s *Shop) update(w http.ResponseWriter, r *http.Request) {
	fault, faulted := s.begin(RouteUpdate)
	if faulted && answerFault(w, r, fault) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Action storefront.QuantityAction `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !body.Action.Valid() {
		writeJSON(w, http.StatusBadRequest, storefront.StatusPayload{Status: "error", Message: "acción inválida"})
		return
	}
	current := s.Quantity(id)
	if current == 0 {
		writeJSON(w, http.StatusNotFound, storefront.StatusPayload{Status: "error", Message: "artículo no encontrado"})
		return
	}
	if body.Action == storefront.ActionIncrease {
		s.SetLine(id, current+1)
	} else {
		s.SetLine(id, current-1)
	}
	writeJSON(w, http.StatusOK, storefront.StatusPayload{Status: storefront.StatusOK})
}

func (s *Shop) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	fault, faulted := s.begin(RouteFavorite)
	if faulted && answerFault(w, r, fault) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	if !s.authenticated {
		s.mu.Unlock()
		writeJSON(w, http.StatusForbidden, storefront.StatusPayload{Status: "error", Message: "inicia sesión"})
		return
	}
	s.favorites[id] = !s.favorites[id]
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, storefront.StatusPayload{Status: storefront.StatusOK})
}

func (s *Shop) chat(w http.ResponseWriter, r *http.Request) {
	fault, faulted := s.begin(RouteChat)
	if faulted && answerFault(w, r, fault) {
		return
	}
	s.mu.Lock()
	chunks := append([]string(nil), s.chatChunks...)
	delay := s.chatDelay
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for _, chunk := range chunks {
		if _, err := w.Write([]byte(chunk)); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, storefront.StatusPayload{Status: "error", Message: fmt.Sprintf("id inválido %q", chi.URLParam(r, "id"))})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Snapshot exposes the current cart as the storefront would serialize it.
func (s *Shop) Snapshot() storefront.CartPayload {
	return s.snapshot(false)
}

// Total is the cart total computed by the shop, for assertions.
func (s *Shop) Total() types.Money {
	return s.snapshot(false).TotalPrice
}
