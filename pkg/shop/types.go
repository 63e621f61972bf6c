package shop

import "time"

// ProductType is the literal type tag carried by every catalog product.
const ProductType = "product"

// Money is an amount in a single currency.
type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Product is one normalized catalog entry as rendered by clients.
type Product struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Type             string            `json:"type"`
	Brand            string            `json:"brand,omitempty"`
	Price            Money             `json:"price"`
	Categories       []string          `json:"categories"`
	Images           []string          `json:"images"`
	ShortDescription string            `json:"short_description,omitempty"`
	Tags             []string          `json:"tags,omitempty"`
	Keywords         []string          `json:"keywords,omitempty"`
	SKU              string            `json:"sku,omitempty"`
	Meta             map[string]string `json:"meta,omitempty"`
}

// CartItem is one line in a user's cart.
type CartItem struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Price    Money     `json:"price"`
	Image    string    `json:"image,omitempty"`
	Quantity int       `json:"quantity"`
	AddedAt  time.Time `json:"added_at"`
}

// CartView is the cart as rendered by clients: line items plus a total.
type CartView struct {
	Items []CartItem `json:"items"`
	Total Money      `json:"total"`
}

// ViewOf computes a CartView over items. The total currency follows the first
// item; an empty cart totals zero EUR.
func ViewOf(items []CartItem) CartView {
	view := CartView{Items: items, Total: Money{Currency: "EUR"}}
	if items == nil {
		view.Items = []CartItem{}
	}
	for i, item := range items {
		if i == 0 && item.Price.Currency != "" {
			view.Total.Currency = item.Price.Currency
		}
		view.Total.Amount += item.Price.Amount * float64(item.Quantity)
	}
	return view
}

// PaymentResult is the confirmation payload for a completed payment attempt.
type PaymentResult struct {
	Success   bool   `json:"success"`
	Status    string `json:"status"`
	PaymentID string `json:"payment_id"`
}
