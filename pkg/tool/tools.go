package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"qualichat/pkg/session"
	"qualichat/pkg/shop"
)

// Tool names as declared to the model.
const (
	NameProductSearch   = "product_search"
	NameShowCart        = "show_cart"
	NameAddToCart       = "add_to_cart"
	NameCollectUserInfo = "collect_user_info"
	NameProcessPayment  = "process_payment"
	NameClarifyIntent   = "clarify_intent"
)

type productSearchInput struct {
	Query string `json:"query" jsonschema:"Product search query. French terms match the catalog best."`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of products to return."`
}

type showCartInput struct {
	Action string `json:"action,omitempty" jsonschema:"Either view or checkout. Checkout prepares the payment flow."`
}

type addToCartInput struct {
	ProductID string `json:"product_id" jsonschema:"Identifier of a product from the latest search results."`
	Quantity  int    `json:"quantity,omitempty" jsonschema:"Quantity to add. Defaults to 1."`
}

type collectUserInfoInput struct {
	Field string `json:"field" jsonschema:"Which field is being collected: first_name, phone, or email."`
	Value string `json:"value" jsonschema:"The value the user provided."`
}

type processPaymentInput struct {
	FirstName string  `json:"first_name" jsonschema:"Customer first name."`
	Phone     string  `json:"phone" jsonschema:"Customer phone number."`
	Amount    float64 `json:"amount,omitempty" jsonschema:"Order total if already known."`
	Method    string  `json:"method,omitempty" jsonschema:"Payment method, for example mobile_money."`
}

type clarifyIntentInput struct {
	Question string `json:"question" jsonschema:"The clarification question to ask the user."`
}

// RegisterShopTools wires the six shopping capabilities over the shop
// collaborators and returns the populated registry.
func RegisterShopTools(r *Registry, search *shop.SearchClient, carts *shop.CartService, users *shop.UserService, payments *shop.PaymentProcessor) *Registry {
	r.Register(Tool{
		Name:        NameProductSearch,
		Description: "Search the product catalog. Use when the user asks about products, categories, or wants to browse.",
		Schema:      mustSchema[productSearchInput](),
		Run: func(ctx context.Context, sess *session.Session, args json.RawMessage) Outcome {
			input, failure := decodeArgs[productSearchInput](args)
			if failure != nil {
				return failed(NameProductSearch, failure)
			}

			products, err := search.Search(ctx, input.Query, input.Limit)
			if err != nil {
				return failed(NameProductSearch, NewFailure(FailureUpstream, err.Error()))
			}

			sess.Scratch.LastQuery = strings.TrimSpace(input.Query)
			sess.Scratch.LastResults = products

			return Outcome{
				Tool:     NameProductSearch,
				Products: products,
				Summary:  SummarizeProducts(input.Query, products),
			}
		},
	})

	r.Register(Tool{
		Name:        NameShowCart,
		Description: "Show the user's shopping cart. Use action checkout when the user wants to pay.",
		Schema:      mustSchema[showCartInput](),
		Run: func(ctx context.Context, sess *session.Session, args json.RawMessage) Outcome {
			input, failure := decodeArgs[showCartInput](args)
			if failure != nil {
				return failed(NameShowCart, failure)
			}

			view, err := carts.View(ctx, sess.ID)
			if err != nil {
				return failed(NameShowCart, NewFailure(FailureUpstream, err.Error()))
			}

			summary := fmt.Sprintf("Cart has %d line(s), total %.2f %s.", len(view.Items), view.Total.Amount, view.Total.Currency)
			if strings.EqualFold(input.Action, "checkout") {
				summary += " Ask the user for their first name and phone number to complete the order."
			}

			return Outcome{Tool: NameShowCart, Cart: &view, Summary: summary}
		},
	})

	r.Register(Tool{
		Name:        NameAddToCart,
		Description: "Add a product from the latest search results to the cart.",
		Schema:      mustSchema[addToCartInput](),
		Run: func(ctx context.Context, sess *session.Session, args json.RawMessage) Outcome {
			input, failure := decodeArgs[addToCartInput](args)
			if failure != nil {
				return failed(NameAddToCart, failure)
			}

			product, ok := findProduct(sess.Scratch.LastResults, input.ProductID)
			if !ok {
				return failed(NameAddToCart, NewFailure(FailureNotFound, fmt.Sprintf("product %q is not in the current results", input.ProductID)))
			}

			item := shop.CartItem{
				ID:       product.ID,
				Name:     product.Name,
				Price:    product.Price,
				Quantity: input.Quantity,
			}
			if len(product.Images) > 0 {
				item.Image = product.Images[0]
			}

			view, err := carts.Add(ctx, sess.ID, item)
			if err != nil {
				return failed(NameAddToCart, NewFailure(FailureUpstream, err.Error()))
			}

			return Outcome{
				Tool:    NameAddToCart,
				Cart:    &view,
				Summary: fmt.Sprintf("Added %q (x%d). Cart total is now %.2f %s.", product.Name, item.Quantity, view.Total.Amount, view.Total.Currency),
			}
		},
	})

	r.Register(Tool{
		Name:        NameCollectUserInfo,
		Description: "Record one piece of customer information (first_name, phone, email) needed for checkout.",
		Schema:      mustSchema[collectUserInfoInput](),
		Run: func(ctx context.Context, sess *session.Session, args json.RawMessage) Outcome {
			input, failure := decodeArgs[collectUserInfoInput](args)
			if failure != nil {
				return failed(NameCollectUserInfo, failure)
			}

			field := strings.TrimSpace(input.Field)
			value := strings.TrimSpace(input.Value)
			if field == "" {
				return failed(NameCollectUserInfo, MissingField("field", "no field named"))
			}
			if field == "first_name" && len(value) < 2 {
				return failed(NameCollectUserInfo, MissingField(field, "first name too short"))
			}
			if field == "phone" && len(value) < 8 {
				return failed(NameCollectUserInfo, MissingField(field, "phone number too short"))
			}

			if err := users.SaveField(ctx, sess.ID, field, value); err != nil {
				return failed(NameCollectUserInfo, NewFailure(FailureUpstream, err.Error()))
			}
			sess.Scratch.PendingField = ""

			return Outcome{
				Tool:    NameCollectUserInfo,
				Info:    &InfoEcho{Field: field, Value: value},
				Summary: fmt.Sprintf("Recorded %s = %s. Ask the user to confirm it.", field, value),
			}
		},
	})

	r.Register(Tool{
		Name:        NameProcessPayment,
		Description: "Process the payment for the current cart once first name and phone are known. Never call it before both are collected.",
		Schema:      mustSchema[processPaymentInput](),
		Run: func(ctx context.Context, sess *session.Session, args json.RawMessage) Outcome {
			input, failure := decodeArgs[processPaymentInput](args)
			if failure != nil {
				return failed(NameProcessPayment, failure)
			}

			firstName := strings.TrimSpace(input.FirstName)
			phone := strings.TrimSpace(input.Phone)

			// Fall back to fields collected earlier in the conversation.
			if firstName == "" || phone == "" {
				if saved, err := users.Fields(ctx, sess.ID); err == nil {
					if firstName == "" {
						firstName = saved["first_name"]
					}
					if phone == "" {
						phone = saved["phone"]
					}
				}
			}

			// Missing info short-circuits into a request for the field; the
			// payment collaborator is never contacted.
			if firstName == "" {
				sess.Scratch.PendingField = "first_name"
				return failed(NameProcessPayment, MissingField("first_name", "first name is required before payment"))
			}
			if phone == "" {
				sess.Scratch.PendingField = "phone"
				return failed(NameProcessPayment, MissingField("phone", "phone number is required before payment"))
			}

			result, err := payments.Process(ctx, sess.ID, firstName, phone)
			if err != nil {
				if errors.Is(err, shop.ErrEmptyCart) {
					return failed(NameProcessPayment, NewFailure(FailureUpstream, "the cart is empty"))
				}
				return failed(NameProcessPayment, NewFailure(FailureUpstream, err.Error()))
			}
			sess.Scratch.PendingField = ""

			return Outcome{
				Tool:    NameProcessPayment,
				Payment: &result,
				Summary: fmt.Sprintf("Payment %s confirmed for %s (status %s). Congratulate the user, do not call more tools.", result.PaymentID, firstName, result.Status),
			}
		},
	})

	r.Register(Tool{
		Name:        NameClarifyIntent,
		Description: "Ask the user a clarification question when their request is too vague to act on.",
		Schema:      mustSchema[clarifyIntentInput](),
		Run: func(_ context.Context, _ *session.Session, args json.RawMessage) Outcome {
			input, failure := decodeArgs[clarifyIntentInput](args)
			if failure != nil {
				return failed(NameClarifyIntent, failure)
			}

			question := strings.TrimSpace(input.Question)
			if question == "" {
				question = "Could you tell me a bit more about what you are looking for?"
			}

			return Outcome{
				Tool:          NameClarifyIntent,
				Clarification: question,
				Summary:       "Clarification sent to the user.",
			}
		},
	})

	return r
}

// SummarizeProducts renders a compact model-readable digest of search results,
// capped at the first five entries.
func SummarizeProducts(query string, products []shop.Product) string {
	query = strings.TrimSpace(query)
	if len(products) == 0 {
		return fmt.Sprintf("No products found for %q.", query)
	}

	lines := make([]string, 0, 6)
	lines = append(lines, fmt.Sprintf("Found %d products for %q:", len(products), query))
	for i, p := range products {
		if i == 5 {
			break
		}
		brand := p.Brand
		if brand == "" {
			brand = p.Meta["source"]
		}
		lines = append(lines, fmt.Sprintf("%d. %q - %s - %.2f %s - Categories: %s",
			i+1, p.Name, brand, p.Price.Amount, p.Price.Currency, strings.Join(p.Categories, ", ")))
	}
	return strings.Join(lines, "\n")
}

func findProduct(products []shop.Product, id string) (shop.Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return shop.Product{}, false
}

func failed(name string, failure *Failure) Outcome {
	return Outcome{
		Tool:    name,
		Failure: failure,
		Summary: fmt.Sprintf("Tool %s failed: %s", name, failure.Error()),
	}
}
