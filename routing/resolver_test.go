package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	poserrors "github.com/GetwithitMan/gwi-pos-sub005/errors"
)

// stubView is a minimal RegistryView for resolver tests.
type stubView struct {
	stations []Station
	known    map[RouteTag]bool
	version  uint64
}

func (v *stubView) Stations() []Station { return v.stations }
func (v *stubView) KnownTag(tag RouteTag) bool {
	if v.known == nil {
		return true
	}
	return v.known[tag]
}
func (v *stubView) Version() uint64 { return v.version }

func testView(stations ...Station) *stubView {
	return &stubView{stations: stations, version: 7}
}

func snapshot(items ...OrderItem) OrderSnapshot {
	return OrderSnapshot{
		OrderID:     "ord-100",
		OrderNumber: "47",
		Table:       "12",
		PlacedAt:    time.Now(),
		Items:       items,
	}
}

func TestResolve_OwnTagsOverrideCategory(t *testing.T) {
	// Item tagged grill, category tagged kitchen. A kitchen-only station
	// must NOT receive it: override, not union.
	burger := OrderItem{ID: "i1", Name: "Burger", Quantity: 1,
		Tags: TagSet{"grill"}, CategoryTags: TagSet{"kitchen"}}

	kitchenOnly := Station{ID: "s-kds", Name: "Kitchen KDS", Kind: KindDisplay, Tags: TagSet{"kitchen"}, Active: true}
	grill := Station{ID: "s-grill", Name: "Grill KDS", Kind: KindDisplay, Tags: TagSet{"grill"}, Active: true}

	m, err := Resolve(snapshot(burger), testView(kitchenOnly, grill))
	require.NoError(t, err)

	require.Len(t, m.Entries, 1)
	assert.Equal(t, "s-grill", m.Entries[0].StationID)
	assert.Empty(t, m.Unrouted)
}

func TestResolve_CategoryFallback(t *testing.T) {
	fries := OrderItem{ID: "i2", Name: "Fries", Quantity: 2,
		CategoryTags: TagSet{"kitchen"}}
	kds := Station{ID: "s-kds", Name: "Kitchen KDS", Kind: KindDisplay, Tags: TagSet{"kitchen"}, Active: true}

	m, err := Resolve(snapshot(fries), testView(kds))
	require.NoError(t, err)

	require.Len(t, m.Entries, 1)
	assert.Equal(t, "s-kds", m.Entries[0].StationID)
	require.Len(t, m.Entries[0].Items, 1)
	assert.Equal(t, "Fries", m.Entries[0].Items[0].Name)
}

func TestResolve_FanOutToMultipleStations(t *testing.T) {
	// Spec scenario: Burger tagged [grill], GrillDisplay subscribes [grill],
	// ExpoPrinter subscribes [grill, bar]. Burger goes to both; a bar-only
	// station gets nothing.
	burger := OrderItem{ID: "i1", Name: "Burger", Quantity: 1,
		Tags: TagSet{"grill"}, CategoryTags: TagSet{"kitchen"}}

	grillDisplay := Station{ID: "grill-kds", Name: "GrillDisplay", Kind: KindDisplay, Tags: TagSet{"grill"}, Active: true}
	expoPrinter := Station{ID: "expo-prn", Name: "ExpoPrinter", Kind: KindPrinter, Tags: TagSet{"grill", "bar"}, Active: true}
	barOnly := Station{ID: "bar-kds", Name: "Bar", Kind: KindDisplay, Tags: TagSet{"bar"}, Active: true}

	m, err := Resolve(snapshot(burger), testView(grillDisplay, expoPrinter, barOnly))
	require.NoError(t, err)

	require.Len(t, m.Entries, 2)
	assert.NotNil(t, m.Entry("grill-kds"))
	assert.NotNil(t, m.Entry("expo-prn"))
	assert.Nil(t, m.Entry("bar-kds"))

	// Each station sees the full item, modifiers included.
	for _, e := range m.Entries {
		require.Len(t, e.Items, 1)
		assert.Equal(t, "Burger", e.Items[0].Name)
	}
}

func TestResolve_UnroutedNoStation(t *testing.T) {
	// Spec scenario: Fries category-tagged kitchen, nobody subscribes kitchen.
	fries := OrderItem{ID: "i2", Name: "Fries", Quantity: 1,
		CategoryTags: TagSet{"kitchen"}}
	bar := Station{ID: "bar", Name: "Bar", Kind: KindPrinter, Tags: TagSet{"bar"}, Active: true}

	m, err := Resolve(snapshot(fries), testView(bar))
	require.NoError(t, err)

	assert.Empty(t, m.Entries)
	require.Len(t, m.Unrouted, 1)
	assert.Equal(t, "Fries", m.Unrouted[0].Item.Name)
	assert.Equal(t, ReasonNoStation, m.Unrouted[0].Reason)
	assert.Equal(t, TagSet{"kitchen"}, m.Unrouted[0].Tags)
}

func TestResolve_UnroutedNoTags(t *testing.T) {
	water := OrderItem{ID: "i3", Name: "Water", Quantity: 1}
	bar := Station{ID: "bar", Name: "Bar", Kind: KindPrinter, Tags: TagSet{"bar"}, Active: true}

	m, err := Resolve(snapshot(water), testView(bar))
	require.NoError(t, err)

	require.Len(t, m.Unrouted, 1)
	assert.Equal(t, ReasonNoTags, m.Unrouted[0].Reason)
}

func TestResolve_DisabledStationNeverMatches(t *testing.T) {
	burger := OrderItem{ID: "i1", Name: "Burger", Quantity: 1, Tags: TagSet{"grill"}}
	grill := Station{ID: "grill", Name: "Grill", Kind: KindDisplay, Tags: TagSet{"grill"}, Active: false}

	m, err := Resolve(snapshot(burger), testView(grill))
	require.NoError(t, err)

	assert.Empty(t, m.Entries)
	require.Len(t, m.Unrouted, 1)
	assert.Equal(t, ReasonNoStation, m.Unrouted[0].Reason)
}

func TestResolve_PreservesItemOrderPerStation(t *testing.T) {
	items := []OrderItem{
		{ID: "a", Name: "Wings", Quantity: 1, Tags: TagSet{"fryer"}},
		{ID: "b", Name: "Burger", Quantity: 1, Tags: TagSet{"grill"}},
		{ID: "c", Name: "Fries", Quantity: 1, Tags: TagSet{"fryer"}},
		{ID: "d", Name: "Steak", Quantity: 1, Tags: TagSet{"grill"}},
	}
	expo := Station{ID: "expo", Name: "Expo", Kind: KindPrinter, Tags: TagSet{"grill", "fryer"}, Active: true}
	grill := Station{ID: "grill", Name: "Grill", Kind: KindDisplay, Tags: TagSet{"grill"}, Active: true}

	m, err := Resolve(snapshot(items...), testView(expo, grill))
	require.NoError(t, err)

	expoEntry := m.Entry("expo")
	require.NotNil(t, expoEntry)
	names := make([]string, 0, len(expoEntry.Items))
	for _, it := range expoEntry.Items {
		names = append(names, it.Name)
	}
	// Input order, not tag-match order.
	assert.Equal(t, []string{"Wings", "Burger", "Fries", "Steak"}, names)

	grillEntry := m.Entry("grill")
	require.NotNil(t, grillEntry)
	assert.Equal(t, "Burger", grillEntry.Items[0].Name)
	assert.Equal(t, "Steak", grillEntry.Items[1].Name)
}

func TestResolve_SkipsAlreadySentItems(t *testing.T) {
	items := []OrderItem{
		{ID: "a", Name: "Burger", Quantity: 1, Tags: TagSet{"grill"}, Sent: true},
		{ID: "b", Name: "Steak", Quantity: 1, Tags: TagSet{"grill"}},
	}
	grill := Station{ID: "grill", Name: "Grill", Kind: KindDisplay, Tags: TagSet{"grill"}, Active: true}

	m, err := Resolve(snapshot(items...), testView(grill))
	require.NoError(t, err)

	require.Len(t, m.Entries, 1)
	require.Len(t, m.Entries[0].Items, 1)
	assert.Equal(t, "Steak", m.Entries[0].Items[0].Name)
	assert.Empty(t, m.Unrouted)
}

func TestResolve_UnknownTagDiagnostic(t *testing.T) {
	view := testView(Station{ID: "grill", Name: "Grill", Kind: KindDisplay, Tags: TagSet{"grill"}, Active: true})
	view.known = map[RouteTag]bool{"grill": true}

	item := OrderItem{ID: "a", Name: "Mystery", Quantity: 1, Tags: TagSet{"gril"}} // typo
	m, err := Resolve(snapshot(item), view)
	require.NoError(t, err)

	assert.Equal(t, TagSet{"gril"}, m.UnknownTags)
	require.Len(t, m.Unrouted, 1)
}

func TestResolve_MalformedInput(t *testing.T) {
	grill := Station{ID: "grill", Name: "Grill", Kind: KindDisplay, Tags: TagSet{"grill"}, Active: true}

	_, err := Resolve(OrderSnapshot{}, testView(grill))
	require.Error(t, err)
	assert.True(t, poserrors.IsInvalid(err))

	_, err = Resolve(OrderSnapshot{OrderID: "o1"}, testView(grill))
	require.Error(t, err)

	_, err = Resolve(snapshot(OrderItem{ID: "x", Name: "Void", Quantity: 0, Tags: TagSet{"grill"}}), testView(grill))
	require.Error(t, err)
	assert.True(t, poserrors.IsInvalid(err))
}

func TestResolve_CapturesRegistryVersion(t *testing.T) {
	grill := Station{ID: "grill", Name: "Grill", Kind: KindDisplay, Tags: TagSet{"grill"}, Active: true}
	m, err := Resolve(snapshot(OrderItem{ID: "a", Name: "Burger", Quantity: 1, Tags: TagSet{"grill"}}), testView(grill))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), m.RegistryVersion)
	assert.False(t, m.ResolvedAt.IsZero())
}

func TestTagSet(t *testing.T) {
	ts := TagSet{"grill", "bar", "grill"}
	assert.True(t, ts.Contains("bar"))
	assert.False(t, ts.Contains("expo"))
	assert.True(t, ts.Intersects(TagSet{"expo", "bar"}))
	assert.False(t, ts.Intersects(TagSet{"expo"}))
	assert.Equal(t, TagSet{"grill", "bar"}, ts.Normalize())
	assert.Nil(t, TagSet{}.Normalize())
}

func TestRouteTagValidate(t *testing.T) {
	assert.NoError(t, RouteTag("grill").Validate())
	assert.Error(t, RouteTag("").Validate())
	assert.Error(t, RouteTag("  ").Validate())
	assert.Error(t, RouteTag("hot line").Validate())
}

func TestManifestKindFilters(t *testing.T) {
	m := Manifest{Entries: []ManifestEntry{
		{StationID: "a", Kind: KindDisplay},
		{StationID: "b", Kind: KindPrinter},
		{StationID: "c", Kind: KindDisplay},
	}}
	assert.Len(t, m.DisplayEntries(), 2)
	assert.Len(t, m.PrinterEntries(), 1)
}
