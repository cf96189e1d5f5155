package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sternrassler/storefront-edge/pkg/cache"
)

const getCartDocument = `query GetCart($cartId: String!) {
  site {
    cart(entityId: $cartId) {
      entityId
      currencyCode
      lineItems {
        physicalItems { ...CartItemFields }
        digitalItems { ...CartItemFields }
      }
    }
  }
}

fragment CartItemFields on CartLineItem {
  entityId
  name
  productEntityId
  variantEntityId
  quantity
  selectedOptions {
    entityId
    ... on CartSelectedMultipleChoiceOption { valueEntityId }
    ... on CartSelectedCheckboxOption { valueEntityId }
    ... on CartSelectedNumberFieldOption { number }
    ... on CartSelectedTextFieldOption { text }
    ... on CartSelectedMultiLineTextFieldOption { text }
    ... on CartSelectedDateFieldOption { date { utc } }
  }
}`

const createCartDocument = `mutation CreateCart($input: CreateCartInput!) {
  cart {
    createCart(input: $input) {
      cart { entityId }
    }
  }
}`

// Cart is a cart as returned by the commerce API.
type Cart struct {
	EntityID     string        `json:"entityId"`
	CurrencyCode string        `json:"currencyCode"`
	LineItems    CartLineItems `json:"lineItems"`
}

// CartLineItems groups the line items of a cart by fulfilment kind.
type CartLineItems struct {
	PhysicalItems []CartItem `json:"physicalItems"`
	DigitalItems  []CartItem `json:"digitalItems"`
}

// CartItem is one line of a cart. Fields the upstream may omit are pointers.
type CartItem struct {
	EntityID        string           `json:"entityId"`
	Name            string           `json:"name"`
	ProductEntityID *int64           `json:"productEntityId"`
	VariantEntityID *int64           `json:"variantEntityId"`
	Quantity        *int             `json:"quantity"`
	SelectedOptions []SelectedOption `json:"selectedOptions"`
}

// SelectedOption is a flattened product option selection. At most one of ValueEntityID,
// Number, Text and Date is set.
type SelectedOption struct {
	EntityID      int64      `json:"entityId"`
	ValueEntityID *int64     `json:"valueEntityId"`
	Number        *float64   `json:"number"`
	Text          *string    `json:"text"`
	Date          *DateValue `json:"date"`
}

// DateValue wraps a date option value.
type DateValue struct {
	UTC time.Time `json:"utc"`
}

// Items returns physical items followed by digital items.
func (c *Cart) Items() []CartItem {
	items := make([]CartItem, 0, len(c.LineItems.PhysicalItems)+len(c.LineItems.DigitalItems))
	items = append(items, c.LineItems.PhysicalItems...)
	return append(items, c.LineItems.DigitalItems...)
}

// CartLineItemInput is one line of a createCart mutation.
type CartLineItemInput struct {
	ProductEntityID int64                 `json:"productEntityId"`
	VariantEntityID *int64                `json:"variantEntityId,omitempty"`
	Quantity        int                   `json:"quantity"`
	SelectedOptions *SelectedOptionsInput `json:"selectedOptions,omitempty"`
}

// SelectedOptionsInput carries option selections grouped by option kind.
type SelectedOptionsInput struct {
	MultipleChoices []MultipleChoiceInput `json:"multipleChoices,omitempty"`
	NumberFields    []NumberFieldInput    `json:"numberFields,omitempty"`
	TextFields      []TextFieldInput      `json:"textFields,omitempty"`
	DateFields      []DateFieldInput      `json:"dateFields,omitempty"`
}

// IsEmpty reports whether no selection is present.
func (s *SelectedOptionsInput) IsEmpty() bool {
	return s == nil ||
		len(s.MultipleChoices)+len(s.NumberFields)+len(s.TextFields)+len(s.DateFields) == 0
}

// MultipleChoiceInput selects a value of a choice option.
type MultipleChoiceInput struct {
	OptionEntityID      int64 `json:"optionEntityId"`
	OptionValueEntityID int64 `json:"optionValueEntityId"`
}

// NumberFieldInput fills a number option.
type NumberFieldInput struct {
	OptionEntityID int64   `json:"optionEntityId"`
	Number         float64 `json:"number"`
}

// TextFieldInput fills a text option.
type TextFieldInput struct {
	OptionEntityID int64  `json:"optionEntityId"`
	Text           string `json:"text"`
}

// DateFieldInput fills a date option.
type DateFieldInput struct {
	OptionEntityID int64     `json:"optionEntityId"`
	Date           time.Time `json:"date"`
}

// GetCart reads a cart from channelID. Returns ErrCartNotFound when the upstream has no cart
// with that id.
func (c *Client) GetCart(ctx context.Context, channelID, cartID string) (*Cart, error) {
	data, err := c.Fetch(ctx, Request{
		Operation: "GetCart",
		Document:  getCartDocument,
		Variables: map[string]any{"cartId": cartID},
		ChannelID: channelID,
	}, cache.Policy{Kind: cache.KindDoNotCache})
	if err != nil {
		return nil, fmt.Errorf("get cart %s: %w", cartID, err)
	}

	var payload struct {
		Site struct {
			Cart *Cart `json:"cart"`
		} `json:"site"`
	}
	if err := decodeData(data, &payload); err != nil {
		return nil, fmt.Errorf("decode cart %s: %w", cartID, err)
	}
	if payload.Site.Cart == nil {
		return nil, fmt.Errorf("get cart %s: %w", cartID, ErrCartNotFound)
	}
	return payload.Site.Cart, nil
}

// CreateCart creates a cart in channelID and returns its id.
func (c *Client) CreateCart(ctx context.Context, channelID string, items []CartLineItemInput) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("create cart: no line items")
	}

	data, err := c.Fetch(ctx, Request{
		Operation: "CreateCart",
		Document:  createCartDocument,
		Variables: map[string]any{"input": map[string]any{"lineItems": items}},
		ChannelID: channelID,
		Mutation:  true,
	}, cache.Policy{Kind: cache.KindDoNotCache})
	if err != nil {
		return "", fmt.Errorf("create cart: %w", err)
	}

	var payload struct {
		Cart struct {
			CreateCart struct {
				Cart *struct {
					EntityID string `json:"entityId"`
				} `json:"cart"`
			} `json:"createCart"`
		} `json:"cart"`
	}
	if err := decodeData(data, &payload); err != nil {
		return "", fmt.Errorf("decode created cart: %w", err)
	}
	created := payload.Cart.CreateCart.Cart
	if created == nil || created.EntityID == "" {
		return "", fmt.Errorf("create cart: upstream returned no cart")
	}
	return created.EntityID, nil
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("empty data")
	}
	return json.Unmarshal(data, v)
}
