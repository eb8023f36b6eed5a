// Package catalog rewrites catalog page URLs when filters change and keeps
// the active filters on pagination links.
package catalog

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// PageParam is reset whenever a filter changes.
	PageParam = "page"
	// AllValue clears a filter the same way an empty value does.
	AllValue = "all"
)

// PaginationSelector matches the links the catalog paginator renders.
const PaginationSelector = ".pagination a, .paginator a"

// ApplyFilters returns a copy of current with params applied. An empty or
// "all" value removes the filter; the page number is always dropped.
func ApplyFilters(current *url.URL, params map[string]string) *url.URL {
	next := *current
	query := current.Query()
	for key, value := range params {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" || trimmed == AllValue {
			query.Del(key)
			continue
		}
		query.Set(key, trimmed)
	}
	query.Del(PageParam)
	next.RawQuery = query.Encode()
	return &next
}

// PreserveFilters resolves href against the current page and copies every
// current filter the link does not set itself. The page number is never copied.
func PreserveFilters(href string, current *url.URL) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse pagination link %q: %w", href, err)
	}
	target := current.ResolveReference(ref)
	query := target.Query()
	for key, values := range current.Query() {
		if key == PageParam || query.Has(key) || len(values) == 0 {
			continue
		}
		query.Set(key, values[len(values)-1])
	}
	target.RawQuery = query.Encode()
	return target.String(), nil
}

// PatchPaginationLinks rewrites every pagination link of a catalog page with
// PreserveFilters. Links that fail to parse are left as they are.
func PatchPaginationLinks(page io.Reader, current *url.URL) (string, error) {
	doc, err := goquery.NewDocumentFromReader(page)
	if err != nil {
		return "", fmt.Errorf("parse catalog page: %w", err)
	}
	doc.Find(PaginationSelector).Each(func(_ int, link *goquery.Selection) {
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		if patched, err := PreserveFilters(href, current); err == nil {
			link.SetAttr("href", patched)
		}
	})
	return doc.Html()
}
