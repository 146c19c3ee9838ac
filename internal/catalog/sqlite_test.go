package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zonegate/internal/types"
)

func seededSQLite(t *testing.T, ds *Dataset) *SQLiteCatalog {
	t.Helper()
	c, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.Seed(context.Background(), ds))
	return c
}

// The SQLite catalog must answer exactly like the in-memory one.
func TestSQLiteCatalog_MatchesMemory(t *testing.T) {
	ds := mustDefault(t)
	ds.Fleets["acme"] = []types.Car{{ID: "acme_1", Plate: "XX-999-YY", FuelType: types.FuelPetrol, EmissionClass: 6}}
	sq := seededSQLite(t, ds)
	mem := NewMemoryCatalog(ds)
	ctx := context.Background()

	for _, session := range []string{"unknown", "acme", DefaultFleet} {
		want, _ := mem.ListCars(ctx, session)
		got, err := sq.ListCars(ctx, session)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("ListCars(%q) mismatch (-memory +sqlite):\n%s", session, diff)
		}
	}

	for _, ref := range []string{"ab-123-cd", "car_004", "xx999yy", "nothing"} {
		want, _ := mem.FindCar(ctx, ref)
		got, err := sq.FindCar(ctx, ref)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("FindCar(%q) mismatch (-memory +sqlite):\n%s", ref, diff)
		}
	}

	for _, q := range [][2]string{{"Amsterdam", ""}, {"AMSTERDAM", "cargo"}, {"rotterdam", "lez"}, {"Paris", ""}} {
		want, _ := mem.ResolveZoneCandidates(ctx, q[0], q[1])
		got, err := sq.ResolveZoneCandidates(ctx, q[0], q[1])
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("zones %v mismatch (-memory +sqlite):\n%s", q, diff)
		}
	}

	for _, zone := range []string{"ams_lez_01", "ams_zez_01", "rtd_lez_01", "missing"} {
		want, _ := mem.GetPolicy(ctx, zone)
		got, err := sq.GetPolicy(ctx, zone)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("GetPolicy(%q) mismatch (-memory +sqlite):\n%s", zone, diff)
		}
	}
}

func TestSQLiteCatalog_IsEmpty(t *testing.T) {
	c, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	empty, err := c.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, c.Seed(ctx, mustDefault(t)))
	empty, err = c.IsEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestSQLiteCatalog_ReseedReplaces(t *testing.T) {
	sq := seededSQLite(t, mustDefault(t))
	ctx := context.Background()

	small := &Dataset{
		Fleets: map[string][]types.Car{DefaultFleet: {{ID: "only", Plate: "ON-1"}}},
		Zones:  []types.Zone{{ID: "utr", City: "Utrecht", Name: "Utrecht LEZ", Type: types.ZoneLEZ}},
	}
	require.NoError(t, sq.Seed(ctx, small))

	cars, err := sq.ListCars(ctx, "s")
	require.NoError(t, err)
	require.Len(t, cars, 1)
	assert.True(t, cars[0].FirstRegistration.IsZero())

	p, err := sq.GetPolicy(ctx, "ams_lez_01")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSQLiteCatalog_FilePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "catalog.db")
	c, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, c.Seed(context.Background(), mustDefault(t)))
	require.NoError(t, c.Close())

	c, err = OpenSQLite(path)
	require.NoError(t, err)
	defer c.Close()
	p, err := c.GetPolicy(context.Background(), "ams_zez_01")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Amsterdam Logistics ZEZ", p.ZoneName)
}
