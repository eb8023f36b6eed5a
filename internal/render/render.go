// Package render draws cart, favorite and chat state as HTML fragments.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/angelmondragon/cartsync/internal/cartsync"
	"github.com/angelmondragon/cartsync/internal/chat"
	"github.com/angelmondragon/cartsync/internal/favorites"
	"github.com/angelmondragon/cartsync/pkg/types"
)

const defaultMediaPrefix = "/media/"

//go:embed templates/*.tmpl
var templateFS embed.FS

type Options struct {
	MediaPrefix string
	Money       types.MoneyFormatter
}

type Renderer struct {
	tmpl        *template.Template
	mediaPrefix string
	money       types.MoneyFormatter
}

func New(opts Options) (*Renderer, error) {
	prefix := strings.TrimSpace(opts.MediaPrefix)
	if prefix == "" {
		prefix = defaultMediaPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	r := &Renderer{mediaPrefix: prefix, money: opts.Money}

	funcMap := template.FuncMap{
		"media": r.mediaURL,
		"money": r.money.Format,
		// bot messages are sanitized before they reach the renderer
		"safe": func(s string) template.HTML { return template.HTML(s) },
	}
	tmpl, err := template.New("_root").Funcs(funcMap).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	r.tmpl = tmpl
	return r, nil
}

func (r *Renderer) mediaURL(ref string) string {
	return r.mediaPrefix + strings.TrimLeft(ref, "/")
}

// CartPanel draws the cart modal: placeholder or lines, total, checkout link.
func (r *Renderer) CartPanel(v cartsync.View) (string, error) {
	return r.execute("cart_panel", v)
}

func (r *Renderer) Badge(b cartsync.Badge) (string, error) {
	return r.execute("badge", b)
}

func (r *Renderer) AddButton(productID int, state cartsync.AddButtonState) (string, error) {
	return r.execute("add_button", struct {
		ProductID int
		State     cartsync.AddButtonState
	}{productID, state})
}

func (r *Renderer) FavoriteButton(st favorites.State) (string, error) {
	return r.execute("favorite_button", st)
}

func (r *Renderer) LoginModal(open bool) (string, error) {
	return r.execute("login_modal", open)
}

func (r *Renderer) Transcript(tr chat.Transcript) (string, error) {
	return r.execute("chat_transcript", tr)
}

// Frame draws the widget a cart frame changed.
func (r *Renderer) Frame(f cartsync.Frame) (string, error) {
	switch f.Kind {
	case cartsync.FrameBadge:
		return r.Badge(f.View.Badge)
	case cartsync.FrameAddButton:
		return r.AddButton(f.ProductID, f.View.AddButton(f.ProductID))
	case cartsync.FramePanel, cartsync.FrameCart, cartsync.FrameLine:
		return r.CartPanel(f.View)
	}
	return "", fmt.Errorf("unknown frame kind %q", f.Kind)
}

func (r *Renderer) execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
