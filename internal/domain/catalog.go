package domain

import "time"

// Product — товар во внутреннем представлении.
type Product struct {
	ExternalID string    `json:"external_id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	Price      float64   `json:"price"`
	Category   string    `json:"category,omitempty"`
	Active     bool      `json:"active"`
	MinStock   int       `json:"min_stock"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ProductRef — известный товар ресурса, используется синхронизацией остатков.
type ProductRef struct {
	ExternalID string `json:"external_id"`
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	MinStock   int    `json:"min_stock"`
}

// Customer — клиент во внутреннем представлении.
type Customer struct {
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}
