// Package routing implements the tag-based routing resolver: a pure,
// deterministic function from an order snapshot and a station registry
// snapshot to a routing manifest. It performs no I/O and may be called
// concurrently from any number of order-send requests.
package routing

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub005/errors"
)

var (
	errEmptyTag      = stderrors.New("route tag is empty")
	errTagWhitespace = stderrors.New("route tag contains whitespace")
)

// RegistryView is the read-only registry surface the resolver needs. A view
// is an immutable snapshot: configuration changes committed mid-resolution
// never affect a resolution that already captured its view.
type RegistryView interface {
	// Stations returns all configured stations in registry order,
	// including inactive ones.
	Stations() []Station
	// KnownTag reports whether the tag registry knows the given tag.
	KnownTag(tag RouteTag) bool
	// Version identifies the snapshot for audit trails.
	Version() uint64
}

// Resolve computes the routing manifest for one send action.
//
// For each unsent item the effective tag set is computed (own tags override
// category tags, never merged), then intersected with every active station's
// subscription. Items land in every matching station's entry, in input
// order; items matching nothing land in the unrouted bucket. Resolve fails
// only on malformed input - an unroutable item is a diagnostic, not an error.
func Resolve(snap OrderSnapshot, view RegistryView) (Manifest, error) {
	if snap.OrderID == "" {
		return Manifest{}, errors.WrapInvalid(errors.ErrEmptySnapshot, "routing", "Resolve",
			"order snapshot missing order id")
	}
	if len(snap.Items) == 0 {
		return Manifest{}, errors.WrapInvalid(errors.ErrEmptySnapshot, "routing", "Resolve",
			fmt.Sprintf("order %s: send action contained no items", snap.OrderID))
	}
	for _, it := range snap.Items {
		if it.Quantity <= 0 {
			return Manifest{}, errors.WrapInvalid(errors.ErrEmptySnapshot, "routing", "Resolve",
				fmt.Sprintf("order %s: item %q has non-positive quantity %d", snap.OrderID, it.Name, it.Quantity))
		}
	}

	stations := view.Stations()

	manifest := Manifest{
		OrderID:         snap.OrderID,
		OrderNumber:     snap.OrderNumber,
		Table:           snap.Table,
		ResolvedAt:      time.Now().UTC(),
		RegistryVersion: view.Version(),
	}

	// Entries keyed by station, built up in item order so each station sees
	// items in the sequence they were entered, not in tag-match order.
	entryIndex := make(map[string]int, len(stations))
	unknown := make(map[RouteTag]struct{})

	for _, item := range snap.Items {
		if item.Sent {
			continue
		}

		effective := item.EffectiveTags().Normalize()
		for _, tag := range effective {
			if !view.KnownTag(tag) {
				if _, seen := unknown[tag]; !seen {
					unknown[tag] = struct{}{}
					manifest.UnknownTags = append(manifest.UnknownTags, tag)
				}
			}
		}

		if len(effective) == 0 {
			manifest.Unrouted = append(manifest.Unrouted, UnroutedItem{
				Item:   item,
				Reason: ReasonNoTags,
			})
			continue
		}

		matched := false
		for _, st := range stations {
			if !st.Matches(effective) {
				continue
			}
			matched = true
			idx, ok := entryIndex[st.ID]
			if !ok {
				manifest.Entries = append(manifest.Entries, ManifestEntry{
					StationID:   st.ID,
					StationName: st.Name,
					Kind:        st.Kind,
				})
				idx = len(manifest.Entries) - 1
				entryIndex[st.ID] = idx
			}
			manifest.Entries[idx].Items = append(manifest.Entries[idx].Items, item)
		}

		if !matched {
			manifest.Unrouted = append(manifest.Unrouted, UnroutedItem{
				Item:   item,
				Tags:   effective,
				Reason: ReasonNoStation,
			})
		}
	}

	return manifest, nil
}
