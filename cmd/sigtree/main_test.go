package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/sigtree"
	"github.com/hupe1980/sigtree/blobstore"
	"github.com/hupe1980/sigtree/codec"
	"github.com/hupe1980/sigtree/store"
	"github.com/hupe1980/sigtree/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeDataset(t *testing.T) string {
	t.Helper()
	st, err := testutil.NewGrid(testutil.NewRNG(7), testutil.DefaultGrid)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, store.WriteJSON(&buf, codec.Default, st))

	path := filepath.Join(t.TempDir(), "dataset.json")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestSchemesCmd(t *testing.T) {
	out, _, err := execute(t, "schemes")
	require.NoError(t, err)
	for _, name := range schemeNames() {
		assert.Contains(t, out, name)
	}
}

func TestBuildCmd(t *testing.T) {
	dataset := writeDataset(t)

	for _, scheme := range schemeNames() {
		t.Run(scheme, func(t *testing.T) {
			out := t.TempDir()
			metrics := filepath.Join(t.TempDir(), "sigtree.prom")

			stdout, _, err := execute(t, "build",
				"-i", dataset,
				"-t", scheme,
				"--check",
				"--threads", "2",
				"--top", "10",
				"--out", out,
				"--name", "grid",
				"--metrics-file", metrics,
				"--fail-on-mismatch",
				"--log-level", "error",
			)
			require.NoError(t, err)
			assert.Contains(t, stdout, "consistent=true")
			assert.Contains(t, stdout, "failed_queries=0")

			assert.FileExists(t, filepath.Join(out, sigtree.TreeBlob("grid")))
			assert.FileExists(t, filepath.Join(out, sigtree.TraitsBlob("grid")))

			data, err := os.ReadFile(metrics)
			require.NoError(t, err)
			assert.Contains(t, string(data), "sigtree_consistency_checks_total")
		})
	}
}

func TestBuildCmd_UnknownScheme(t *testing.T) {
	dataset := writeDataset(t)

	stdout, stderr, err := execute(t, "build", "-i", dataset, "-t", "btree")
	require.ErrorIs(t, err, sigtree.ErrUnknownScheme)
	assert.Contains(t, stdout, "Usage:")
	assert.Contains(t, stderr, "unknown signature scheme")
}

func TestBuildCmd_EnergizeFailure(t *testing.T) {
	_, _, err := execute(t, "build", "-i", filepath.Join(t.TempDir(), "missing"), "-t", "stringset")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "energize store")

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	_, _, err = execute(t, "build", "-i", bad, "-t", "stringset", "--log-level", "error")
	require.ErrorIs(t, err, store.ErrInvalidDataset)
}

func TestBuildCmd_InvalidFlags(t *testing.T) {
	dataset := writeDataset(t)

	_, _, err := execute(t, "build", "-i", dataset, "--compression", "gzip", "--log-level", "error")
	require.Error(t, err)

	_, _, err = execute(t, "build", "-i", dataset, "--log-level", "loud")
	require.Error(t, err)

	_, _, err = execute(t, "build", "-i", dataset, "-t", "minwise-lcg64", "--hashSize", "9", "--log-level", "error")
	require.Error(t, err)
}

func TestImportAndBuild(t *testing.T) {
	dataset := writeDataset(t)
	db := filepath.Join(t.TempDir(), "db")

	stdout, _, err := execute(t, "import", "-i", dataset, "--db", db, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, stdout, "imported")

	stdout, _, err = execute(t, "build", "-i", db, "-t", "stringset", "--check", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, stdout, "consistent=true")
}

func TestBuildCmd_LogJSON(t *testing.T) {
	dataset := writeDataset(t)

	_, stderr, err := execute(t, "build", "-i", dataset, "-t", "stringset", "--log-json")
	require.NoError(t, err)
	assert.Contains(t, stderr, `"msg":"stage completed"`)
	assert.Contains(t, stderr, `"build_id":`)
	assert.Contains(t, stderr, `"msg":"tree built"`)
	assert.Contains(t, stderr, `"nodes":`)

	_, stderr, err = execute(t, "build", "-i", dataset, "-t", "stringset")
	require.NoError(t, err)
	assert.Contains(t, stderr, "msg=\"stage completed\"")
}

func TestConfigFile(t *testing.T) {
	dataset := writeDataset(t)
	out := t.TempDir()

	cfg := filepath.Join(t.TempDir(), "sigtree.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(
		"type: nosuchscheme\n"+
			"name: fromconfig\n"+
			"compression: lz4\n"+
			"log-level: error\n"+
			"unknown-key: 1\n",
	), 0o600))

	// The command line wins over the file.
	_, _, err := execute(t, "build", "--config", cfg, "-i", dataset, "-t", "qgram", "--out", out)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(out, "fromconfig.tree"))

	_, _, err = execute(t, "build", "--config", cfg, "-i", dataset)
	require.ErrorIs(t, err, sigtree.ErrUnknownScheme)

	_, _, err = execute(t, "build", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "-i", dataset)
	require.Error(t, err)

	// Required flags can come from the file alone.
	full := filepath.Join(t.TempDir(), "full.yaml")
	require.NoError(t, os.WriteFile(full, []byte(
		"input: "+dataset+"\n"+
			"type: stringset\n"+
			"out: "+out+"\n"+
			"name: onlyconfig\n"+
			"check: true\n",
	), 0o600))
	_, _, err = execute(t, "build", "--config", full)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(out, "onlyconfig.tree"))
	assert.FileExists(t, filepath.Join(out, "onlyconfig.traits"))
}

func TestOpenSink(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	bs, err := openSink(ctx, "", sinkFlags{})
	require.NoError(t, err)
	assert.IsType(t, &blobstore.MemoryStore{}, bs)

	bs, err = openSink(ctx, dir, sinkFlags{})
	require.NoError(t, err)
	assert.IsType(t, &blobstore.LocalStore{}, bs)

	bs, err = openSink(ctx, "file://"+dir, sinkFlags{})
	require.NoError(t, err)
	assert.IsType(t, &blobstore.LocalStore{}, bs)

	_, err = openSink(ctx, "minio://localhost:9000/indexes/run1", sinkFlags{})
	require.NoError(t, err)

	for _, out := range []string{
		"minio://localhost:9000",
		"s3:///prefix",
		"ftp://host/path",
	} {
		_, err := openSink(ctx, out, sinkFlags{})
		assert.Error(t, err, out)
	}
}

func TestBuildCmd_Publish(t *testing.T) {
	ctx := context.Background()
	dataset := writeDataset(t)
	out := t.TempDir()

	for range 2 {
		_, _, err := execute(t, "build", "-i", dataset, "-t", "stringset", "--out", out, "--publish", "--log-level", "error")
		require.NoError(t, err)
	}

	bs := blobstore.NewLocalStore(out)
	current, err := sigtree.ReadCurrent(ctx, bs, "index")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(out, sigtree.TreeBlob(current)))

	names, err := bs.List(ctx, "index-")
	require.NoError(t, err)
	assert.Len(t, names, 4, "two versions of tree and traits")

	_, _, err = execute(t, "build", "-i", dataset, "--out", out, "--commit-table", "commits", "--log-level", "error")
	require.Error(t, err)
}
