package region

import (
	"fmt"
)

// Registry is an immutable lookup table of regions.
type Registry struct {
	regions []Region
	byID    map[string]int
	def     int
}

// NewRegistry validates the table and builds a registry.
// Ids and channel ids must be unique. If more than one region is flagged default the first
// flagged one wins; if none is flagged the first entry is the default.
func NewRegistry(regions []Region) (*Registry, error) {
	if len(regions) == 0 {
		return nil, ErrNoRegions
	}

	r := &Registry{
		regions: make([]Region, len(regions)),
		byID:    make(map[string]int, len(regions)),
		def:     -1,
	}
	copy(r.regions, regions)

	channels := make(map[string]struct{}, len(regions))
	for i, reg := range r.regions {
		if reg.ID == "" || reg.ChannelID == "" {
			return nil, fmt.Errorf("region %d: id and channel id are required", i)
		}
		if _, ok := r.byID[reg.ID]; ok {
			return nil, fmt.Errorf("%w: id %q", ErrDuplicateRegion, reg.ID)
		}
		if _, ok := channels[reg.ChannelID]; ok {
			return nil, fmt.Errorf("%w: channel %q", ErrDuplicateRegion, reg.ChannelID)
		}
		r.byID[reg.ID] = i
		channels[reg.ChannelID] = struct{}{}

		if reg.IsDefault && r.def < 0 {
			r.def = i
		}
	}

	if r.def < 0 {
		r.def = 0
	}

	return r, nil
}

// MustNewRegistry is NewRegistry that panics on an invalid table.
func MustNewRegistry(regions []Region) *Registry {
	r, err := NewRegistry(regions)
	if err != nil {
		panic(err)
	}
	return r
}

// Default returns the flagged default region, or the first entry if none is flagged.
func (r *Registry) Default() Region {
	return r.regions[r.def]
}

// Lookup resolves id leniently and reports which branch was taken.
func (r *Registry) Lookup(id string) Resolution {
	if id == "" {
		return Resolution{Region: r.Default(), Outcome: FallbackEmpty}
	}
	if i, ok := r.byID[id]; ok {
		return Resolution{Region: r.regions[i], Outcome: Matched}
	}
	return Resolution{Region: r.Default(), Outcome: FallbackUnknown}
}

// ByID returns the region with the given id, falling back to the default region when id is
// empty or unknown. It never fails.
func (r *Registry) ByID(id string) Region {
	return r.Lookup(id).Region
}

// Strict returns the region with the given id and false when no exact match exists.
func (r *Registry) Strict(id string) (Region, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Region{}, false
	}
	return r.regions[i], true
}

// ChannelID returns the channel bound to id via the same fallback chain as ByID.
func (r *Registry) ChannelID(id string) string {
	return r.ByID(id).ChannelID
}

// All returns a copy of the table in configuration order.
func (r *Registry) All() []Region {
	out := make([]Region, len(r.regions))
	copy(out, r.regions)
	return out
}

// ByChannel returns the region bound to channelID.
func (r *Registry) ByChannel(channelID string) (Region, bool) {
	for _, reg := range r.regions {
		if reg.ChannelID == channelID {
			return reg, true
		}
	}
	return Region{}, false
}
