package domain

import (
	"slices"

	"github.com/shopspring/decimal"
)

type CartItem struct {
	ProductID     string           `json:"productId"`
	Quantity      int              `json:"quantity"`
	UnitPrice     decimal.Decimal  `json:"unitPrice"`
	UnitSalePrice *decimal.Decimal `json:"unitSalePrice,omitempty"`
}

// EffectivePrice is the sale price when one is set, the list price otherwise.
func (i CartItem) EffectivePrice() decimal.Decimal {
	if i.UnitSalePrice != nil {
		return *i.UnitSalePrice
	}
	return i.UnitPrice
}

// Cart is an ordered set of lines, unique by product id.
// Every mutating method returns a new Cart and leaves the receiver untouched.
type Cart struct {
	Items []CartItem `json:"items"`
}

func (c Cart) IsEmpty() bool { return len(c.Items) == 0 }

func (c Cart) Find(productID string) (CartItem, bool) {
	if i := c.index(productID); i >= 0 {
		return c.Items[i], true
	}
	return CartItem{}, false
}

func (c Cart) ProductIDs() []string {
	ids := make([]string, len(c.Items))
	for i, it := range c.Items {
		ids[i] = it.ProductID
	}
	return ids
}

func (c Cart) TotalQuantity() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Add sums item.Quantity into an existing line (refreshing its price snapshot)
// or appends a new line. A resulting quantity <= 0 removes the line.
func (c Cart) Add(item CartItem) Cart {
	out := c.clone()
	if i := out.index(item.ProductID); i >= 0 {
		item.Quantity += out.Items[i].Quantity
		if item.Quantity <= 0 {
			return out.Remove(item.ProductID)
		}
		out.Items[i] = item
		return out
	}
	if item.Quantity <= 0 {
		return out
	}
	out.Items = append(out.Items, item)
	return out
}

// Put replaces (or appends) a whole line. Quantity <= 0 removes it.
func (c Cart) Put(item CartItem) Cart {
	if item.Quantity <= 0 {
		return c.Remove(item.ProductID)
	}
	out := c.clone()
	if i := out.index(item.ProductID); i >= 0 {
		out.Items[i] = item
		return out
	}
	out.Items = append(out.Items, item)
	return out
}

// SetQuantity replaces the quantity of an existing line; <= 0 removes it.
// Unknown products are ignored.
func (c Cart) SetQuantity(productID string, qty int) Cart {
	i := c.index(productID)
	if i < 0 {
		return c.clone()
	}
	item := c.Items[i]
	item.Quantity = qty
	return c.Put(item)
}

func (c Cart) Remove(productID string) Cart {
	out := c.clone()
	out.Items = slices.DeleteFunc(out.Items, func(it CartItem) bool {
		return it.ProductID == productID
	})
	return out
}

func (c Cart) Clear() Cart { return Cart{Items: []CartItem{}} }

// Merge folds an anonymous cart into the identity's cart. Lines present in
// both keep the owned snapshot and get the summed quantity; anonymous-only
// lines are appended unchanged, in their original order. Quantities are not
// clamped against stock here.
func Merge(anon, owned Cart) Cart {
	out := owned.clone()
	for _, it := range anon.Items {
		if it.Quantity <= 0 {
			continue
		}
		if i := out.index(it.ProductID); i >= 0 {
			out.Items[i].Quantity += it.Quantity
			continue
		}
		out.Items = append(out.Items, it)
	}
	return out
}

func (c Cart) index(productID string) int {
	return slices.IndexFunc(c.Items, func(it CartItem) bool {
		return it.ProductID == productID
	})
}

func (c Cart) clone() Cart {
	items := make([]CartItem, len(c.Items))
	copy(items, c.Items)
	return Cart{Items: items}
}

// Shopper identifies whose cart a call operates on. IdentityID is empty for
// anonymous shoppers, who are keyed by DeviceToken instead.
type Shopper struct {
	IdentityID  string
	DeviceToken string
}

func (s Shopper) Anonymous() bool { return s.IdentityID == "" }

// Valid reports whether the shopper can be mapped to a cart at all.
func (s Shopper) Valid() bool { return s.IdentityID != "" || s.DeviceToken != "" }

// CartKey is the storage key of the shopper's authoritative cart.
func (s Shopper) CartKey() string {
	if s.IdentityID != "" {
		return s.IdentityID
	}
	return s.DeviceToken
}

// Product is the catalog snapshot used to re-price a cart.
type Product struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	SalePrice *decimal.Decimal
	Active    bool
}

func (p Product) CartItem(qty int) CartItem {
	return CartItem{
		ProductID:     p.ID,
		Quantity:      qty,
		UnitPrice:     p.Price,
		UnitSalePrice: p.SalePrice,
	}
}

func (p Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice != nil {
		return *p.SalePrice
	}
	return p.Price
}
