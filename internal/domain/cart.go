package domain

import "github.com/shopspring/decimal"

// Product is a catalog product as held in the cart. Amount is the quantity the
// shopper selected, not a catalog field; it is at least 1 for every cart entry.
type Product struct {
	ID     int     `json:"id"`
	Title  string  `json:"title"`
	Price  float64 `json:"price"`
	Image  string  `json:"image"`
	Amount int     `json:"amount"`
}

// Stock is the remote, authoritative available quantity for a product.
type Stock struct {
	ID     int `json:"id"`
	Amount int `json:"amount"`
}

// Cart is the ordered list of selected products, unique by ID.
type Cart []Product

// Find returns the index of the entry with the given product ID, or -1.
func (c Cart) Find(productID int) int {
	for i := range c {
		if c[i].ID == productID {
			return i
		}
	}
	return -1
}

// Contains reports whether the cart has an entry for productID.
func (c Cart) Contains(productID int) bool {
	return c.Find(productID) >= 0
}

// ItemCount returns the total number of units in the cart.
func (c Cart) ItemCount() int {
	var count int
	for _, p := range c {
		count += p.Amount
	}
	return count
}

// Subtotal sums price times amount over all entries.
func (c Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range c {
		total = total.Add(decimal.NewFromFloat(p.Price).Mul(decimal.NewFromInt(int64(p.Amount))))
	}
	return total
}

// Clone returns a copy that shares no backing array with c. A nil cart clones
// to an empty, non-nil one so it always serializes as [].
func (c Cart) Clone() Cart {
	out := make(Cart, len(c))
	copy(out, c)
	return out
}

// WithAmount returns a copy of c where the entry for productID has the given
// amount. The caller must have checked that the entry exists.
func (c Cart) WithAmount(productID, amount int) Cart {
	out := c.Clone()
	if i := out.Find(productID); i >= 0 {
		out[i].Amount = amount
	}
	return out
}

// Without returns a copy of c with the entry for productID removed, keeping
// the order of the remaining entries.
func (c Cart) Without(productID int) Cart {
	out := make(Cart, 0, len(c))
	for _, p := range c {
		if p.ID != productID {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the cart invariants: every amount is at least 1 and no two
// entries share an ID.
func (c Cart) Validate() error {
	seen := make(map[int]struct{}, len(c))
	for _, p := range c {
		if p.Amount < 1 {
			return ErrInvalidCart
		}
		if _, dup := seen[p.ID]; dup {
			return ErrInvalidCart
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}
