package client

import (
	"context"
	"fmt"

	"github.com/Sternrassler/storefront-edge/pkg/cache"
)

const customerGroupDocument = `query CustomerGroup {
  customer {
    entityId
    customerGroupId
  }
}`

// CustomerGroup is the group membership of the signed-in customer.
type CustomerGroup struct {
	EntityID        int64 `json:"entityId"`
	CustomerGroupID int64 `json:"customerGroupId"`
}

// GetCustomerGroup reads the group of the customer owning customerToken in channelID.
// Returns nil without an upstream call for guests, and nil when the token no longer
// resolves to a customer.
func (c *Client) GetCustomerGroup(ctx context.Context, channelID, customerToken string) (*CustomerGroup, error) {
	if customerToken == "" {
		return nil, nil
	}

	data, err := c.Fetch(ctx, Request{
		Operation:     "CustomerGroup",
		Document:      customerGroupDocument,
		ChannelID:     channelID,
		CustomerToken: customerToken,
	}, cache.Policy{Kind: cache.KindDoNotCache})
	if err != nil {
		return nil, fmt.Errorf("get customer group: %w", err)
	}

	var payload struct {
		Customer *CustomerGroup `json:"customer"`
	}
	if err := decodeData(data, &payload); err != nil {
		return nil, fmt.Errorf("decode customer group: %w", err)
	}
	return payload.Customer, nil
}
