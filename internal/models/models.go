package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Version   int             `json:"version"`
}

type Cart struct {
	ID                int64           `json:"id"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	LastInteractionAt time.Time       `json:"last_interaction_at"`
	Abandoned         bool            `json:"abandoned"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Items             []CartItem      `json:"items,omitempty"`
}

// CartItem is one quantity-tracked line per (cart, product) pair.
// TotalPrice caches product price * quantity as of the last mutation, so
// historical totals stay stable when catalog prices change afterwards.
type CartItem struct {
	ID         int64           `json:"id"`
	CartID     int64           `json:"cart_id"`
	ProductID  int64           `json:"product_id"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"total_price"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// CartSnapshot is the client-facing view of a cart.
type CartSnapshot struct {
	ID         int64           `json:"id"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Products   []CartLine      `json:"products"`
}

type CartLine struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}
