package cache

import (
	"strings"
)

// EntityType names a kind of commerce entity for tagging.
type EntityType string

// Known entity types.
const (
	EntityCart     EntityType = "cart"
	EntityCheckout EntityType = "checkout"
	EntityCustomer EntityType = "customer"
	EntityProduct  EntityType = "product"
	EntityCategory EntityType = "category"
	EntityBrand    EntityType = "brand"
	EntityPage     EntityType = "page"
)

// EntityTypes lists every known entity type.
func EntityTypes() []EntityType {
	return []EntityType{
		EntityCart, EntityCheckout, EntityCustomer, EntityProduct,
		EntityCategory, EntityBrand, EntityPage,
	}
}

// TagInput describes what a cached response depends on.
// Zero-valued fields are simply omitted from the derived tag set.
type TagInput struct {
	// ChannelID scopes the response to a channel; empty uses the deriver's default channel.
	ChannelID string

	// EntityType is the kind of entity the response renders.
	EntityType EntityType

	// EntityID identifies one entity. Ignored when EntityType is empty.
	EntityID string
}

// Deriver maps store, channel and entity identity to cache tags.
type Deriver struct {
	storeTag       string
	defaultChannel string
}

// NewDeriver creates a deriver for one store.
func NewDeriver(storeHash, defaultChannelID string) *Deriver {
	return &Deriver{
		storeTag:       "store/" + storeHash,
		defaultChannel: defaultChannelID,
	}
}

// StoreTag returns the store-wide tag.
func (d *Deriver) StoreTag() string {
	return d.storeTag
}

// ChannelTag returns the channel-wide tag. Empty channelID uses the default channel.
func (d *Deriver) ChannelTag(channelID string) string {
	if channelID == "" {
		channelID = d.defaultChannel
	}
	return d.storeTag + "/channel/" + channelID
}

// Tags derives the ordered tag set for in.
//
// Order: store, channel, then store- and channel-scoped entity type tags, then store- and
// channel-scoped entity id tags. Output length is 2, 4 or 6.
func (d *Deriver) Tags(in TagInput) []string {
	channelTag := d.ChannelTag(in.ChannelID)

	tags := make([]string, 0, 6)
	tags = append(tags, d.storeTag, channelTag)

	if in.EntityType == "" {
		return tags
	}

	tags = append(tags,
		d.storeTag+"/"+string(in.EntityType),
		channelTag+"/"+string(in.EntityType),
	)

	if in.EntityID == "" {
		return tags
	}

	return append(tags,
		d.storeTag+"/"+string(in.EntityType)+":"+in.EntityID,
		channelTag+"/"+string(in.EntityType)+":"+in.EntityID,
	)
}

// StoreScopedTag returns the store-scoped tag of an entity type, or of one entity when
// entityID is set. Every entry derived for the entity in any channel carries it.
func (d *Deriver) StoreScopedTag(entityType EntityType, entityID string) string {
	tag := d.storeTag + "/" + string(entityType)
	if entityID != "" {
		tag += ":" + entityID
	}
	return tag
}

// PathTagPrefix prefixes tags that index responses by request path.
const PathTagPrefix = "path:"

// PathTag returns the tag for exactly one path.
func PathTag(path string) string {
	return PathTagPrefix + normalizePath(path)
}

// PathTags returns the tag of path and of every ancestor, root first.
// A response tagged with PathTags("/product/77") is removed by revalidating "/",
// "/product" or "/product/77".
func PathTags(path string) []string {
	p := normalizePath(path)
	if p == "/" {
		return []string{PathTagPrefix + "/"}
	}

	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	tags := make([]string, 0, len(segments)+1)
	tags = append(tags, PathTagPrefix+"/")

	current := ""
	for _, seg := range segments {
		current += "/" + seg
		tags = append(tags, PathTagPrefix+current)
	}
	return tags
}

func normalizePath(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return "/"
	}
	return "/" + path
}
