package client

import (
	"context"
	"fmt"

	"github.com/Sternrassler/storefront-edge/pkg/cache"
)

const productDocument = `query Product($entityId: Int!) {
  site {
    product(entityId: $entityId) {
      entityId
      name
      sku
      path
      prices { price { value currencyCode } }
    }
  }
}`

const categoryDocument = `query Category($entityId: Int!) {
  site {
    category(entityId: $entityId) {
      entityId
      name
      path
      description
    }
  }
}`

// Money is an amount in a currency.
type Money struct {
	Value        float64 `json:"value"`
	CurrencyCode string  `json:"currencyCode"`
}

// Product is the catalog view of a product in one channel.
type Product struct {
	EntityID int64  `json:"entityId"`
	Name     string `json:"name"`
	SKU      string `json:"sku"`
	Path     string `json:"path"`
	Prices   *struct {
		Price Money `json:"price"`
	} `json:"prices"`
}

// Category is the catalog view of a category in one channel.
type Category struct {
	EntityID    int64  `json:"entityId"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// GetProduct reads a product from channelID under policy.
func (c *Client) GetProduct(ctx context.Context, channelID string, productID int64, customerToken string, policy cache.Policy) (*Product, error) {
	data, err := c.Fetch(ctx, Request{
		Operation:     "Product",
		Document:      productDocument,
		Variables:     map[string]any{"entityId": productID},
		ChannelID:     channelID,
		CustomerToken: customerToken,
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", productID, err)
	}

	var payload struct {
		Site struct {
			Product *Product `json:"product"`
		} `json:"site"`
	}
	if err := decodeData(data, &payload); err != nil {
		return nil, fmt.Errorf("decode product %d: %w", productID, err)
	}
	if payload.Site.Product == nil {
		return nil, fmt.Errorf("get product %d: %w", productID, ErrNotFound)
	}
	return payload.Site.Product, nil
}

// GetCategory reads a category from channelID under policy.
func (c *Client) GetCategory(ctx context.Context, channelID string, categoryID int64, customerToken string, policy cache.Policy) (*Category, error) {
	data, err := c.Fetch(ctx, Request{
		Operation:     "Category",
		Document:      categoryDocument,
		Variables:     map[string]any{"entityId": categoryID},
		ChannelID:     channelID,
		CustomerToken: customerToken,
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("get category %d: %w", categoryID, err)
	}

	var payload struct {
		Site struct {
			Category *Category `json:"category"`
		} `json:"site"`
	}
	if err := decodeData(data, &payload); err != nil {
		return nil, fmt.Errorf("decode category %d: %w", categoryID, err)
	}
	if payload.Site.Category == nil {
		return nil, fmt.Errorf("get category %d: %w", categoryID, ErrNotFound)
	}
	return payload.Site.Category, nil
}
