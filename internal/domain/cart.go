package domain

import "github.com/google/uuid"

// MaxCartLines caps the number of distinct products in a cart.
const MaxCartLines = 20

// CartLine is one product in a buyer's cart, joined with the product row at read time.
type CartLine struct {
	ProductID      uuid.UUID `json:"product_id" db:"product_id"`
	ProductName    string    `json:"product_name" db:"product_name"`
	Quantity       int       `json:"quantity" db:"quantity"`
	UnitPrice      int64     `json:"unit_price" db:"unit_price"`
	AvailableStock int       `json:"available_stock" db:"available_stock"`
}

// Cart is the read model returned to buyers.
type Cart struct {
	BuyerID uuid.UUID  `json:"buyer_id"`
	Lines   []CartLine `json:"items"`
	Total   int64      `json:"total"`
}

// NewCart builds a cart view and computes its total.
func NewCart(buyerID uuid.UUID, lines []CartLine) *Cart {
	c := &Cart{BuyerID: buyerID, Lines: lines}
	if c.Lines == nil {
		c.Lines = []CartLine{}
	}
	for _, l := range c.Lines {
		c.Total += int64(l.Quantity) * l.UnitPrice
	}
	return c
}
