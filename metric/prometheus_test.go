package metric

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/sigtree"
	"github.com/hupe1980/sigtree/geo"
	"github.com/hupe1980/sigtree/oracle"
	"github.com/hupe1980/sigtree/signature/stringset"
	"github.com/hupe1980/sigtree/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	c.RecordStage(sigtree.StageRegions, 3, time.Millisecond, nil)
	c.RecordStage(sigtree.StageCells, 0, time.Millisecond, errors.New("boom"))
	c.RecordInsert(5, time.Millisecond)
	c.RecordInsert(2, time.Millisecond)
	c.RecordConsistencyCheck(time.Millisecond, nil)
	c.RecordQuery(sigtree.CheckToken, true, time.Millisecond)
	c.RecordQuery(sigtree.CheckToken, false, time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.stageItems.WithLabelValues(sigtree.StageRegions)))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.insertedItems))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.checks.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.queries.WithLabelValues(sigtree.CheckToken, "mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.queries.WithLabelValues(sigtree.CheckToken, "match")))

	assert.Panics(t, func() { NewPrometheusCollector(reg) }, "duplicate registration")
}

func TestPrometheusCollector_Build(t *testing.T) {
	ctx := context.Background()

	b := store.NewMemoryBuilder()
	r := b.AddRegion(b.AddItem(geo.Empty(), store.KV{Key: "name", Value: "Land"}))
	c0 := b.AddCell(geo.NewRect(0, 0, 1, 1), r)
	c1 := b.AddCell(geo.NewRect(1, 0, 2, 1), r)
	b.Assign(b.AddItem(geo.Point(0.5, 0.5), store.KV{Key: "amenity", Value: "cafe"}), c0)
	b.Assign(b.AddItem(geo.NewRect(0.5, 0.5, 1.5, 0.5), store.KV{Key: "highway", Value: "primary"}), c0, c1)
	st, err := b.Build()
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	pc := NewPrometheusCollector(reg)

	idx, err := sigtree.NewBuilder[*roaring.Bitmap](st, stringset.New(),
		sigtree.WithCheck(true),
		sigtree.WithMetricsCollector(pc),
	).Build(ctx)
	require.NoError(t, err)

	o, err := oracle.NewScan(ctx, st)
	require.NoError(t, err)
	_, err = sigtree.NewValidator(idx, o).Validate(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(pc.insertedItems))
	assert.Equal(t, 4.0, testutil.ToFloat64(pc.checks.WithLabelValues("success")), "two cells, final check and validator")
	assert.Equal(t, 2.0, testutil.ToFloat64(pc.queries.WithLabelValues(sigtree.CheckSpatial, "match")))

	path := filepath.Join(t.TempDir(), "sigtree.prom")
	require.NoError(t, prometheus.WriteToTextfile(path, reg))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sigtree_inserted_items_total 2")
}
