package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Sternrassler/storefront-edge/pkg/client"
)

// memSession is an in-memory Session that logs every mutation.
type memSession struct {
	cartID string
	marker string
	ops    []string
}

func (s *memSession) CartID() (string, bool) { return s.cartID, s.cartID != "" }
func (s *memSession) SetCartID(id string) {
	s.cartID = id
	s.ops = append(s.ops, "set:"+id)
}
func (s *memSession) ClearCartID() {
	s.cartID = ""
	s.ops = append(s.ops, "clear")
}
func (s *memSession) MigrationMarker() (string, bool) { return s.marker, s.marker != "" }
func (s *memSession) SetMigrationMarker(id string) {
	s.marker = id
	s.ops = append(s.ops, "marker")
}
func (s *memSession) ClearMigrationMarker() {
	s.marker = ""
}

type createCall struct {
	channelID string
	items     []client.CartLineItemInput
	// boundAtCall is the session binding observed when the create was issued
	boundAtCall string
}

// fakeCarts is a scripted CartAPI.
type fakeCarts struct {
	mu        sync.Mutex
	carts     map[string]*client.Cart // key: channel/cartID
	getErr    error
	createErr error
	block     bool
	session   *memSession
	gets      int
	creates   []createCall
	nextID    int
}

func newFakeCarts(sess *memSession) *fakeCarts {
	return &fakeCarts{carts: make(map[string]*client.Cart), session: sess}
}

func (f *fakeCarts) put(channelID, cartID string, cart *client.Cart) {
	f.carts[channelID+"/"+cartID] = cart
}

func (f *fakeCarts) GetCart(ctx context.Context, channelID, cartID string) (*client.Cart, error) {
	f.mu.Lock()
	f.gets++
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	cart, ok := f.carts[channelID+"/"+cartID]
	if !ok {
		return nil, fmt.Errorf("get cart %s: %w", cartID, client.ErrCartNotFound)
	}
	return cart, nil
}

func (f *fakeCarts) CreateCart(_ context.Context, channelID string, items []client.CartLineItemInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bound := ""
	if f.session != nil {
		bound = f.session.cartID
	}
	f.creates = append(f.creates, createCall{channelID: channelID, items: items, boundAtCall: bound})

	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	return fmt.Sprintf("new-%s-%d", channelID, f.nextID), nil
}

// failingMarkers rejects every save.
type failingMarkers struct{}

func (failingMarkers) Save(context.Context, Marker) error { return errors.New("marker store down") }
func (failingMarkers) Load(context.Context, string) (*Marker, error) {
	return nil, ErrMarkerNotFound
}
func (failingMarkers) Delete(context.Context, string) error { return nil }

func ptr[T any](v T) *T { return &v }
