// Package region holds the static table of sales regions a shopper session can be bound to.
// Each region maps to exactly one commerce channel. The table is built once at startup and
// never mutated afterwards, so a Registry is safe for concurrent use without locking.
package region

import (
	"errors"
	"fmt"
)

// Region is a distinct sales configuration backed by one commerce channel.
type Region struct {
	ID        string `yaml:"id" json:"id"`
	ChannelID string `yaml:"channel_id" json:"channel_id"`
	Label     string `yaml:"label" json:"label"`
	IsDefault bool   `yaml:"default" json:"default"`
}

// Outcome records which branch a lookup took.
type Outcome int

const (
	// Matched means the id matched a configured region exactly.
	Matched Outcome = iota

	// FallbackEmpty means no id was supplied and the default region was returned.
	FallbackEmpty

	// FallbackUnknown means the id matched nothing and the default region was returned.
	FallbackUnknown
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case FallbackEmpty:
		return "fallback_empty"
	case FallbackUnknown:
		return "fallback_unknown"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Resolution is the result of a lenient lookup.
type Resolution struct {
	Region  Region
	Outcome Outcome
}

// IsFallback reports whether the default region was substituted.
func (r Resolution) IsFallback() bool {
	return r.Outcome != Matched
}

var (
	// ErrNoRegions is returned when a registry is built from an empty table.
	ErrNoRegions = errors.New("region table is empty")

	// ErrDuplicateRegion is returned when two regions share an id or a channel id.
	ErrDuplicateRegion = errors.New("duplicate region")
)

// Defaults is the region table used when no regions file is configured.
func Defaults() []Region {
	return []Region{
		{ID: "eu", ChannelID: "1705754", Label: "European Union"},
		{ID: "row", ChannelID: "1705753", Label: "Rest of World", IsDefault: true},
	}
}
