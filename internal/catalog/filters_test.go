package catalog

import (
	"net/url"
	"reflect"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestApplyFilters(t *testing.T) {
	current := mustURL(t, "https://relojes.test/catalogo/?brand=Rolex&sort=price&page=3")

	cases := []struct {
		name   string
		params map[string]string
		want   url.Values
	}{
		{
			name:   "set filter resets page",
			params: map[string]string{"brand": "Omega"},
			want:   url.Values{"brand": {"Omega"}, "sort": {"price"}},
		},
		{
			name:   "all clears filter",
			params: map[string]string{"brand": "all"},
			want:   url.Values{"sort": {"price"}},
		},
		{
			name:   "empty clears filter",
			params: map[string]string{"sort": ""},
			want:   url.Values{"brand": {"Rolex"}},
		},
		{
			name:   "new filter added",
			params: map[string]string{"gender": "women"},
			want:   url.Values{"brand": {"Rolex"}, "sort": {"price"}, "gender": {"women"}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ApplyFilters(current, tc.params)
			if !reflect.DeepEqual(got.Query(), tc.want) {
				t.Fatalf("expected query %v, got %v", tc.want, got.Query())
			}
			if got.Path != "/catalogo/" {
				t.Fatalf("path changed to %q", got.Path)
			}
		})
	}
	if page := current.Query().Get("page"); page != "3" {
		t.Fatalf("input must not be modified, page=%q", page)
	}
}

func TestPreserveFilters(t *testing.T) {
	current := mustURL(t, "https://relojes.test/catalogo/?brand=Rolex&sort=price&page=2")

	got, err := PreserveFilters("?page=3", current)
	if err != nil {
		t.Fatalf("PreserveFilters: %v", err)
	}
	u := mustURL(t, got)
	if u.Path != "/catalogo/" {
		t.Fatalf("unexpected path %q", u.Path)
	}
	if want := (url.Values{"brand": {"Rolex"}, "sort": {"price"}, "page": {"3"}}); !reflect.DeepEqual(u.Query(), want) {
		t.Fatalf("expected %v, got %v", want, u.Query())
	}

	got, err = PreserveFilters("/catalogo/?page=4&sort=name", current)
	if err != nil {
		t.Fatalf("PreserveFilters: %v", err)
	}
	if want := (url.Values{"brand": {"Rolex"}, "sort": {"name"}, "page": {"4"}}); !reflect.DeepEqual(mustURL(t, got).Query(), want) {
		t.Fatalf("link's own filter must win: got %s", got)
	}

	got, err = PreserveFilters("/catalogo/", current)
	if err != nil {
		t.Fatalf("PreserveFilters: %v", err)
	}
	if mustURL(t, got).Query().Has("page") {
		t.Fatalf("current page must not be copied: %s", got)
	}
}

func TestPatchPaginationLinks(t *testing.T) {
	current := mustURL(t, "https://relojes.test/catalogo/?brand=Omega&page=1")
	page := `<html><body>
<nav class="pagination"><a id="next" href="?page=2">2</a></nav>
<div class="paginator"><a id="last" href="?page=9&brand=Rolex">9</a></div>
<a id="other" href="/ayuda/">ayuda</a>
</body></html>`

	out, err := PatchPaginationLinks(strings.NewReader(page), current)
	if err != nil {
		t.Fatalf("PatchPaginationLinks: %v", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}

	next, _ := doc.Find("#next").Attr("href")
	if want := (url.Values{"brand": {"Omega"}, "page": {"2"}}); !reflect.DeepEqual(mustURL(t, next).Query(), want) {
		t.Fatalf("next link: got %s", next)
	}
	last, _ := doc.Find("#last").Attr("href")
	if want := (url.Values{"brand": {"Rolex"}, "page": {"9"}}); !reflect.DeepEqual(mustURL(t, last).Query(), want) {
		t.Fatalf("last link: got %s", last)
	}
	if other, _ := doc.Find("#other").Attr("href"); other != "/ayuda/" {
		t.Fatalf("non-pagination link changed to %s", other)
	}
}
