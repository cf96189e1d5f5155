// Package testutil provides a mock commerce storefront API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
)

// RecordedRequest is a request the mock received.
type RecordedRequest struct {
	Operation string
	Host      string
	ChannelID string
	Header    http.Header
	Variables map[string]any
}

// StoredCart is a cart held by the mock.
type StoredCart struct {
	ID        string
	ChannelID string
	Items     []map[string]any
}

type failure struct {
	status    int
	remaining int
}

// BaseChannelID is the channel the bare store host serves.
const BaseChannelID = "1"

// MockCommerce is a configurable in-memory commerce GraphQL server.
// Requests are routed to a channel by host the same way the real API does:
// store-{hash}-{channel}.{domain} serves that channel, the bare store-{hash}.{domain}
// serves the base channel only.
type MockCommerce struct {
	server    *httptest.Server
	storeHash string

	mu          sync.Mutex
	carts       map[string]*StoredCart
	products    map[int64]map[string]any
	categories  map[int64]map[string]any
	customers   map[string]map[string]any
	handlers    map[string]http.HandlerFunc
	failures    map[string]*failure
	gqlErrors   map[string]string
	requests    []RecordedRequest
	nextCart    int
	requestLeft string
}

var operationPattern = regexp.MustCompile(`^\s*(?:query|mutation)\s+(\w+)`)

// NewMockCommerce starts a mock server for storeHash.
func NewMockCommerce(storeHash string) *MockCommerce {
	m := &MockCommerce{
		storeHash:   storeHash,
		carts:       make(map[string]*StoredCart),
		products:    make(map[int64]map[string]any),
		categories:  make(map[int64]map[string]any),
		customers:   make(map[string]map[string]any),
		handlers:    make(map[string]http.HandlerFunc),
		failures:    make(map[string]*failure),
		gqlErrors:   make(map[string]string),
		requestLeft: "1000",
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// URL returns the mock server URL.
func (m *MockCommerce) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCommerce) Close() {
	m.server.Close()
}

// HTTPClient returns a client that sends every request to the mock while keeping the
// original Host, so channel routing can be asserted.
func (m *MockCommerce) HTTPClient() *http.Client {
	target, _ := url.Parse(m.server.URL)
	return &http.Client{Transport: &redirectTransport{target: target}}
}

type redirectTransport struct {
	target *url.URL
}

func (t *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if req.Host == "" {
		req.Host = req.URL.Host
	}
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

// SetHandler overrides the handler for a named operation.
func (m *MockCommerce) SetHandler(operation string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[operation] = handler
}

// FailNext makes the next n calls of operation answer with status.
func (m *MockCommerce) FailNext(operation string, status, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[operation] = &failure{status: status, remaining: n}
}

// SetGraphQLError makes operation answer 200 with a GraphQL errors array.
func (m *MockCommerce) SetGraphQLError(operation, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gqlErrors[operation] = message
}

// SetRequestsLeft sets the X-Rate-Limit-Requests-Left value sent on every response.
func (m *MockCommerce) SetRequestsLeft(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestLeft = fmt.Sprint(n)
}

// SeedCart stores a cart in channelID. itemsJSON is a JSON array of cart line items in the
// upstream shape, so malformed items can be seeded as-is.
func (m *MockCommerce) SeedCart(channelID, cartID, itemsJSON string) error {
	var items []map[string]any
	if err := json.Unmarshal([]byte(itemsJSON), &items); err != nil {
		return fmt.Errorf("seed cart: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[cartID] = &StoredCart{ID: cartID, ChannelID: channelID, Items: items}
	return nil
}

// Cart returns the stored cart with id.
func (m *MockCommerce) Cart(id string) (StoredCart, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[id]
	if !ok {
		return StoredCart{}, false
	}
	return *c, true
}

// CartsIn returns the carts stored in channelID.
func (m *MockCommerce) CartsIn(channelID string) []StoredCart {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StoredCart
	for _, c := range m.carts {
		if c.ChannelID == channelID {
			out = append(out, *c)
		}
	}
	return out
}

// SetProduct stores a product.
func (m *MockCommerce) SetProduct(id int64, name string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[id] = map[string]any{
		"entityId": id,
		"name":     name,
		"sku":      fmt.Sprintf("SKU-%d", id),
		"path":     fmt.Sprintf("/products/%d/", id),
		"prices":   map[string]any{"price": map[string]any{"value": price, "currencyCode": "USD"}},
	}
}

// SetCategory stores a category.
func (m *MockCommerce) SetCategory(id int64, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[id] = map[string]any{
		"entityId":    id,
		"name":        name,
		"path":        fmt.Sprintf("/%s/", strings.ToLower(name)),
		"description": name + " category",
	}
}

// SetCustomer registers a customer reachable with the access token.
func (m *MockCommerce) SetCustomer(token string, id, groupID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[token] = map[string]any{"entityId": id, "customerGroupId": groupID}
}

// Requests returns all recorded requests.
func (m *MockCommerce) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// RequestCount returns how many times operation was called. An empty operation counts all.
func (m *MockCommerce) RequestCount(operation string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if operation == "" || r.Operation == operation {
			n++
		}
	}
	return n
}

// ChannelFromHost extracts the channel id from a store host.
func (m *MockCommerce) ChannelFromHost(host string) string {
	label, _, _ := strings.Cut(host, ".")
	rest := strings.TrimPrefix(label, "store-"+m.storeHash)
	if strings.HasPrefix(rest, "-") {
		return rest[1:]
	}
	return BaseChannelID
}

func (m *MockCommerce) serve(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	op := ""
	if match := operationPattern.FindStringSubmatch(body.Query); match != nil {
		op = match[1]
	}
	channel := m.ChannelFromHost(r.Host)

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Operation: op,
		Host:      r.Host,
		ChannelID: channel,
		Header:    r.Header.Clone(),
		Variables: body.Variables,
	})
	handler := m.handlers[op]
	fail := m.failures[op]
	failStatus := 0
	if fail != nil && fail.remaining > 0 {
		fail.remaining--
		failStatus = fail.status
	}
	gqlErr := m.gqlErrors[op]
	left := m.requestLeft
	m.mu.Unlock()

	w.Header().Set("X-Rate-Limit-Requests-Left", left)
	w.Header().Set("X-Rate-Limit-Time-Reset-Ms", "30000")
	w.Header().Set("Content-Type", "application/json")

	if failStatus != 0 {
		w.WriteHeader(failStatus)
		return
	}
	if handler != nil {
		handler(w, r)
		return
	}
	if gqlErr != "" {
		writeJSON(w, map[string]any{"data": nil, "errors": []map[string]any{{"message": gqlErr}}})
		return
	}

	switch op {
	case "GetCart":
		writeJSON(w, map[string]any{"data": map[string]any{"site": map[string]any{"cart": m.cartPayload(channel, body.Variables)}}})
	case "CreateCart":
		writeJSON(w, map[string]any{"data": m.createCart(channel, body.Variables)})
	case "Product":
		writeJSON(w, map[string]any{"data": map[string]any{"site": map[string]any{"product": m.lookup(m.products, body.Variables)}}})
	case "CustomerGroup":
		writeJSON(w, map[string]any{"data": map[string]any{"customer": m.customer(r.Header.Get("X-Bc-Customer-Access-Token"))}})
	case "Category":
		writeJSON(w, map[string]any{"data": map[string]any{"site": map[string]any{"category": m.lookup(m.categories, body.Variables)}}})
	default:
		writeJSON(w, map[string]any{"data": nil, "errors": []map[string]any{{"message": "unknown operation " + op}}})
	}
}

func (m *MockCommerce) cartPayload(channel string, vars map[string]any) any {
	id, _ := vars["cartId"].(string)

	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[id]
	if !ok || c.ChannelID != channel {
		return nil
	}

	physical := make([]map[string]any, 0)
	digital := make([]map[string]any, 0)
	for _, item := range c.Items {
		if item["digital"] == true {
			digital = append(digital, item)
			continue
		}
		physical = append(physical, item)
	}
	return map[string]any{
		"entityId":     c.ID,
		"currencyCode": "USD",
		"lineItems": map[string]any{
			"physicalItems": physical,
			"digitalItems":  digital,
		},
	}
}

func (m *MockCommerce) createCart(channel string, vars map[string]any) map[string]any {
	input, _ := vars["input"].(map[string]any)
	lineItems, _ := input["lineItems"].([]any)

	items := make([]map[string]any, 0, len(lineItems))
	for _, li := range lineItems {
		in, ok := li.(map[string]any)
		if !ok {
			continue
		}
		item := map[string]any{
			"productEntityId": in["productEntityId"],
			"quantity":        in["quantity"],
			"selectedOptions": flattenSelections(in["selectedOptions"]),
		}
		if v, ok := in["variantEntityId"]; ok {
			item["variantEntityId"] = v
		}
		items = append(items, item)
	}

	m.mu.Lock()
	m.nextCart++
	id := fmt.Sprintf("cart-%s-%d", channel, m.nextCart)
	m.carts[id] = &StoredCart{ID: id, ChannelID: channel, Items: items}
	m.mu.Unlock()

	return map[string]any{"cart": map[string]any{"createCart": map[string]any{"cart": map[string]any{"entityId": id}}}}
}

// flattenSelections converts createCart option input into the cart read shape.
func flattenSelections(v any) []map[string]any {
	out := make([]map[string]any, 0)
	groups, ok := v.(map[string]any)
	if !ok {
		return out
	}
	each := func(key string, fn func(map[string]any) map[string]any) {
		list, _ := groups[key].([]any)
		for _, e := range list {
			if sel, ok := e.(map[string]any); ok {
				out = append(out, fn(sel))
			}
		}
	}
	each("multipleChoices", func(s map[string]any) map[string]any {
		return map[string]any{"entityId": s["optionEntityId"], "valueEntityId": s["optionValueEntityId"]}
	})
	each("numberFields", func(s map[string]any) map[string]any {
		return map[string]any{"entityId": s["optionEntityId"], "number": s["number"]}
	})
	each("textFields", func(s map[string]any) map[string]any {
		return map[string]any{"entityId": s["optionEntityId"], "text": s["text"]}
	})
	each("dateFields", func(s map[string]any) map[string]any {
		return map[string]any{"entityId": s["optionEntityId"], "date": map[string]any{"utc": s["date"]}}
	})
	return out
}

func (m *MockCommerce) customer(token string) any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.customers[token]; ok {
		return c
	}
	return nil
}

func (m *MockCommerce) lookup(store map[int64]map[string]any, vars map[string]any) any {
	id, _ := vars["entityId"].(float64)
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := store[int64(id)]; ok {
		return v
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
