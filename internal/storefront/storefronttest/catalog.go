package storefronttest

import "github.com/angelmondragon/cartsync/pkg/types"

// Product is a catalog entry the fake storefront can put in a cart.
type Product struct {
	ID       int
	Name     string
	Brand    string
	Price    types.Money
	ImageURL string
}

// DefaultCatalog is the watch catalog the storefront home page shows.
func DefaultCatalog() []Product {
	return []Product{
		{ID: 1, Name: "Submariner Date", Brand: "Rolex", Price: types.MoneyFromInt(12500), ImageURL: "watches/rolex-submariner.jpg"},
		{ID: 2, Name: "Speedmaster Professional", Brand: "Omega", Price: types.MoneyFromInt(6800), ImageURL: "watches/omega-speedmaster.jpg"},
		{ID: 3, Name: "Royal Oak", Brand: "Audemars Piguet", Price: types.MoneyFromInt(28000), ImageURL: "watches/ap-royal-oak.jpg"},
		{ID: 4, Name: "Datejust 36", Brand: "Rolex", Price: types.MoneyFromInt(8900), ImageURL: "watches/rolex-datejust.jpg"},
		{ID: 5, Name: "Seamaster Planet Ocean", Brand: "Omega", Price: types.MoneyFromInt(5200), ImageURL: "watches/omega-seamaster.jpg"},
		{ID: 6, Name: "Millenary", Brand: "Audemars Piguet", Price: types.MoneyFromInt(22000), ImageURL: "watches/ap-millenary.jpg"},
		{ID: 7, Name: "GMT-Master II", Brand: "Rolex", Price: types.MoneyFromInt(15200), ImageURL: "watches/rolex-gmt.jpg"},
		{ID: 8, Name: "De Ville Prestige", Brand: "Omega", Price: types.MoneyFromInt(3800), ImageURL: "watches/omega-deville.jpg"},
	}
}
