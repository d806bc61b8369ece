package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GetwithitMan/gwi-pos-sub005/routing"
)

func grillStation() routing.Station {
	return routing.Station{
		ID:     "grill-1",
		Name:   "Grill",
		Kind:   routing.KindDisplay,
		Tags:   routing.TagSet{"grill"},
		Active: true,
	}
}

func TestRegistry_SnapshotVersioning(t *testing.T) {
	r := New()
	v1 := r.Snapshot()

	require.NoError(t, r.UpsertStation(grillStation()))
	v2 := r.Snapshot()

	assert.Greater(t, v2.Version(), v1.Version())
	assert.Empty(t, v1.Stations(), "old snapshot must not see the mutation")
	assert.Len(t, v2.Stations(), 1)
}

func TestRegistry_SnapshotImmuneToLaterMutation(t *testing.T) {
	r := New()
	require.NoError(t, r.UpsertStation(grillStation()))

	snap := r.Snapshot()
	require.NoError(t, r.SetStationActive("grill-1", false))

	// The captured snapshot keeps the station active; only a fresh snapshot
	// observes the disable.
	assert.True(t, snap.Stations()[0].Active)
	assert.False(t, r.Snapshot().Stations()[0].Active)
}

func TestRegistry_StationsForTags(t *testing.T) {
	r := New()
	require.NoError(t, r.UpsertStation(grillStation()))
	require.NoError(t, r.UpsertStation(routing.Station{
		ID: "expo-1", Name: "Expo", Kind: routing.KindPrinter,
		Tags: routing.TagSet{"grill", "bar"}, Active: true,
	}))
	require.NoError(t, r.UpsertStation(routing.Station{
		ID: "bar-1", Name: "Bar", Kind: routing.KindPrinter,
		Tags: routing.TagSet{"bar"}, Active: false,
	}))

	matched := r.Snapshot().StationsForTags(routing.TagSet{"grill"})
	require.Len(t, matched, 2)
	assert.Equal(t, "grill-1", matched[0].ID)
	assert.Equal(t, "expo-1", matched[1].ID)

	// Disabled bar station never matches.
	matched = r.Snapshot().StationsForTags(routing.TagSet{"bar"})
	require.Len(t, matched, 1)
	assert.Equal(t, "expo-1", matched[0].ID)
}

func TestRegistry_UpsertReplacesInPlace(t *testing.T) {
	r := New()
	require.NoError(t, r.UpsertStation(grillStation()))
	require.NoError(t, r.UpsertStation(routing.Station{
		ID: "bar-1", Name: "Bar", Kind: routing.KindPrinter, Tags: routing.TagSet{"bar"}, Active: true,
	}))

	updated := grillStation()
	updated.Name = "Grill West"
	require.NoError(t, r.UpsertStation(updated))

	stations := r.Snapshot().Stations()
	require.Len(t, stations, 2)
	assert.Equal(t, "Grill West", stations[0].Name, "registry order preserved on update")
}

func TestRegistry_Validation(t *testing.T) {
	r := New()

	err := r.UpsertStation(routing.Station{Name: "anon", Kind: routing.KindDisplay})
	assert.Error(t, err)

	err = r.UpsertStation(routing.Station{ID: "x", Kind: "toaster"})
	assert.Error(t, err)

	err = r.UpsertStation(routing.Station{ID: "x", Kind: routing.KindDisplay, Tags: routing.TagSet{"bad tag"}})
	assert.Error(t, err)

	assert.Error(t, r.SetStationActive("missing", true))
	assert.False(t, r.RemoveStation("missing"))
}

func TestRegistry_Tags(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterTag(Tag{Name: "grill"}))
	require.NoError(t, r.RegisterTag(Tag{Name: "bar"}))

	assert.Error(t, r.RegisterTag(Tag{Name: "grill"}), "duplicate tag")
	assert.Error(t, r.RegisterTag(Tag{Name: ""}))

	snap := r.Snapshot()
	assert.True(t, snap.KnownTag("grill"))
	assert.False(t, snap.KnownTag("fryer"))

	assert.True(t, r.RemoveTag("bar"))
	assert.False(t, r.RemoveTag("bar"))
	assert.False(t, r.Snapshot().KnownTag("bar"))
}

func TestSnapshot_Warnings(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterTag(Tag{Name: "grill"}))
	require.NoError(t, r.UpsertStation(routing.Station{
		ID: "s1", Name: "Empty", Kind: routing.KindDisplay, Active: false,
	}))
	require.NoError(t, r.UpsertStation(routing.Station{
		ID: "s2", Name: "Typo", Kind: routing.KindPrinter,
		Tags: routing.TagSet{"gril"}, Active: false,
	}))

	warnings := r.Snapshot().Warnings()
	require.Len(t, warnings, 3)
	assert.Contains(t, warnings[0], "no subscribed tags")
	assert.Contains(t, warnings[1], `unknown tag "gril"`)
	assert.Contains(t, warnings[2], "no active stations")
}

func TestNewFromConfig(t *testing.T) {
	r, err := NewFromConfig(
		[]Tag{{Name: "grill"}, {Name: "bar"}},
		[]routing.Station{grillStation()},
	)
	require.NoError(t, err)
	snap := r.Snapshot()
	assert.True(t, snap.KnownTag("bar"))
	assert.Len(t, snap.Stations(), 1)

	_, err = NewFromConfig([]Tag{{Name: ""}}, nil)
	assert.Error(t, err)
}

func TestResolveAgainstRealSnapshot(t *testing.T) {
	// End-to-end over the real registry: resolver consumes Snapshot as its
	// RegistryView.
	r, err := NewFromConfig(
		[]Tag{{Name: "grill"}, {Name: "bar"}},
		[]routing.Station{
			{ID: "grill-kds", Name: "GrillDisplay", Kind: routing.KindDisplay, Tags: routing.TagSet{"grill"}, Active: true},
			{ID: "expo-prn", Name: "ExpoPrinter", Kind: routing.KindPrinter, Tags: routing.TagSet{"grill", "bar"}, Active: true},
		},
	)
	require.NoError(t, err)

	m, err := routing.Resolve(routing.OrderSnapshot{
		OrderID: "o1",
		Items: []routing.OrderItem{
			{ID: "i1", Name: "Burger", Quantity: 1, Tags: routing.TagSet{"grill"}},
		},
	}, r.Snapshot())
	require.NoError(t, err)

	assert.Len(t, m.Entries, 2)
	assert.NotNil(t, m.Entry("grill-kds"))
	assert.NotNil(t, m.Entry("expo-prn"))
}
