package routing

import (
	"strings"
	"time"
)

// RouteTag is a label attached to menu items, categories, and stations.
// Matching a non-empty intersection of item tags and station tags routes the
// item to that station.
type RouteTag string

// Validate ensures the tag is usable as a routing key.
func (t RouteTag) Validate() error {
	s := string(t)
	if strings.TrimSpace(s) == "" {
		return errEmptyTag
	}
	if strings.ContainsAny(s, " \t\n") {
		return errTagWhitespace
	}
	return nil
}

// String implements fmt.Stringer.
func (t RouteTag) String() string { return string(t) }

// TagSet is an ordered collection of route tags. Order is preserved from
// configuration so diagnostics read the way operators wrote them; membership
// checks treat it as a set.
type TagSet []RouteTag

// Contains reports whether the set includes the given tag.
func (ts TagSet) Contains(tag RouteTag) bool {
	for _, t := range ts {
		if t == tag {
			return true
		}
	}
	return false
}

// Intersects reports whether the two sets share at least one tag.
func (ts TagSet) Intersects(other TagSet) bool {
	for _, t := range ts {
		if other.Contains(t) {
			return true
		}
	}
	return false
}

// Normalize returns a copy with duplicates removed, preserving first-seen order.
func (ts TagSet) Normalize() TagSet {
	if len(ts) == 0 {
		return nil
	}
	seen := make(map[RouteTag]struct{}, len(ts))
	out := make(TagSet, 0, len(ts))
	for _, t := range ts {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// StationKind distinguishes the two destination types.
type StationKind string

const (
	// KindDisplay is a kitchen display station (tablet/screen subscriber).
	KindDisplay StationKind = "display"
	// KindPrinter is a physical ticket printer station.
	KindPrinter StationKind = "printer"
)

// Valid reports whether the kind is one of the known destination types.
func (k StationKind) Valid() bool {
	return k == KindDisplay || k == KindPrinter
}

// Station is a configured delivery destination. Stations are created and
// edited by admin configuration; the resolver only ever reads them through
// an immutable registry snapshot.
type Station struct {
	ID     string      `json:"id"     yaml:"id"`
	Name   string      `json:"name"   yaml:"name"`
	Kind   StationKind `json:"kind"   yaml:"kind"`
	Tags   TagSet      `json:"tags"   yaml:"tags"`
	Active bool        `json:"active" yaml:"active"`
}

// Matches reports whether an item with the given effective tags routes to
// this station. A disabled station never matches regardless of tag overlap.
func (s Station) Matches(effective TagSet) bool {
	if !s.Active || len(s.Tags) == 0 {
		return false
	}
	return s.Tags.Intersects(effective)
}

// Modifier is one modifier line on an order item. Depth expresses nesting
// (0 = directly on the item, 1 = modifier of a modifier, ...). Destructive
// marks removals ("no pickles") that must be visually unmissable on tickets.
type Modifier struct {
	Name        string `json:"name"`
	Depth       int    `json:"depth"`
	Destructive bool   `json:"destructive,omitempty"`
}

// OrderItem is the router's read-only view of one line on an order at the
// moment of a send action. Tags are the item's own route tags; CategoryTags
// are the fallback used only when Tags is empty (override, never merge).
type OrderItem struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Quantity     int        `json:"quantity"`
	Tags         TagSet     `json:"tags,omitempty"`
	CategoryTags TagSet     `json:"category_tags,omitempty"`
	Modifiers    []Modifier `json:"modifiers,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	Seat         int        `json:"seat,omitempty"`
	Course       string     `json:"course,omitempty"`

	// Sent marks items already dispatched by an earlier send action. The
	// resolver skips them so re-sends never duplicate delivery; the flag is
	// owned by the order subsystem, not by this engine.
	Sent bool `json:"sent,omitempty"`
}

// EffectiveTags returns the item's own tags when non-empty, else the
// category's tags. Category tags are a fallback, never merged in.
func (it OrderItem) EffectiveTags() TagSet {
	if len(it.Tags) > 0 {
		return it.Tags
	}
	return it.CategoryTags
}

// OrderSnapshot is the input to one resolution: the order identity plus the
// ordered sequence of items included in the send action.
type OrderSnapshot struct {
	OrderID     string      `json:"order_id"`
	OrderNumber string      `json:"order_number,omitempty"`
	Table       string      `json:"table,omitempty"`
	Server      string      `json:"server,omitempty"`
	PlacedAt    time.Time   `json:"placed_at"`
	Items       []OrderItem `json:"items"`
}

// UnroutedReason explains why an item landed in the unrouted bucket.
type UnroutedReason string

const (
	// ReasonNoTags means the item had neither own nor category tags.
	ReasonNoTags UnroutedReason = "no_effective_tags"
	// ReasonNoStation means no active station subscribes to any of the
	// item's effective tags.
	ReasonNoStation UnroutedReason = "no_subscribed_station"
)

// UnroutedItem records an item that matched no active station. It is
// reported for operator visibility, never silently dropped.
type UnroutedItem struct {
	Item   OrderItem      `json:"item"`
	Tags   TagSet         `json:"effective_tags,omitempty"`
	Reason UnroutedReason `json:"reason"`
}

// ManifestEntry groups the items routed to one station, preserving the
// original order-item sequence. Items fanning out to several stations are
// duplicated across entries; each station sees the full item.
type ManifestEntry struct {
	StationID   string      `json:"station_id"`
	StationName string      `json:"station_name"`
	Kind        StationKind `json:"kind"`
	Items       []OrderItem `json:"items"`
}

// Manifest is the resolver's output for one order-send event: an immutable,
// ephemeral value created per send, not persisted beyond what downstream
// consumers need for audit and retry.
type Manifest struct {
	OrderID         string         `json:"order_id"`
	OrderNumber     string         `json:"order_number,omitempty"`
	Table           string         `json:"table,omitempty"`
	ResolvedAt      time.Time      `json:"resolved_at"`
	RegistryVersion uint64         `json:"registry_version"`
	Entries         []ManifestEntry `json:"entries"`
	Unrouted        []UnroutedItem `json:"unrouted,omitempty"`

	// UnknownTags lists tags seen on items but absent from the tag
	// registry, for the "why did this never print" investigation path.
	UnknownTags TagSet `json:"unknown_tags,omitempty"`
}

// Entry returns the manifest entry for a station, or nil if the station
// received no items.
func (m *Manifest) Entry(stationID string) *ManifestEntry {
	for i := range m.Entries {
		if m.Entries[i].StationID == stationID {
			return &m.Entries[i]
		}
	}
	return nil
}

// PrinterEntries returns the entries destined for printer stations.
func (m *Manifest) PrinterEntries() []ManifestEntry {
	var out []ManifestEntry
	for _, e := range m.Entries {
		if e.Kind == KindPrinter {
			out = append(out, e)
		}
	}
	return out
}

// DisplayEntries returns the entries destined for display stations.
func (m *Manifest) DisplayEntries() []ManifestEntry {
	var out []ManifestEntry
	for _, e := range m.Entries {
		if e.Kind == KindDisplay {
			out = append(out, e)
		}
	}
	return out
}
