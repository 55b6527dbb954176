package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/indexmerge"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/segment"
)

const schemaYAML = `
table_name: docs
attributes:
  - name: views
    field_type: uint32
    default_value: "7"
`

const planYAML = `
schema: schema.yaml
docmapper: dm
resource_dir: task
sources: [seg_0, seg_1]
targets:
  - {id: 5, uri: seg_5}
  - {id: 6, uri: seg_6}
`

func setup(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "schema.yaml"), []byte(schemaYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "plan.yaml"), []byte(planYAML), 0o644))
	for i, n := range []uint32{6, 4} {
		dir, err := indexmerge.OpenStore(ctx, filepath.Join(root, fmt.Sprintf("seg_%d", i)))
		require.NoError(t, err)
		require.NoError(t, segment.WriteInfo(ctx, dir, segment.Info{SegmentID: model.SegmentID(i), DocCount: n}))
	}
	return root
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).RunContext(context.Background(), append([]string{"indexmerge", "--log-level", "error"}, args...))
	return out.String(), err
}

func TestDocMapperAndMerge(t *testing.T) {
	root := setup(t)
	plan := filepath.Join(root, "plan.yaml")

	out, err := run(t, "docmapper", "--plan", plan)
	require.NoError(t, err)
	assert.Contains(t, out, "segment 5: 5 docs")
	assert.Contains(t, out, "segment 6: 5 docs")

	out, err = run(t, "merge", "--plan", plan, "--concurrency", "2", "--memory-limit", "1073741824")
	require.NoError(t, err)
	assert.Contains(t, out, "attribute")
	assert.Contains(t, out, "views")
	assert.Contains(t, out, "segment 6: 5 docs")

	dir, err := indexmerge.OpenStore(context.Background(), filepath.Join(root, "seg_6"))
	require.NoError(t, err)
	info, err := segment.ReadInfo(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"attribute/views"}, info.Indexes)
}

func TestMergeFlagErrors(t *testing.T) {
	root := setup(t)
	plan := filepath.Join(root, "plan.yaml")

	_, err := run(t, "merge")
	assert.Error(t, err, "--plan is required")

	_, err = run(t, "merge", "--plan", plan, "--concurrency", "0")
	assert.ErrorContains(t, err, "concurrency")

	_, err = run(t, "merge", "--plan", plan, "--io-limit", "-1")
	assert.ErrorContains(t, err, "negative")

	var out bytes.Buffer
	err = newApp(&out).RunContext(context.Background(), []string{"indexmerge", "--log-level", "loud", "merge", "--plan", plan})
	assert.ErrorContains(t, err, "log-level")
}

func TestMergeWithoutDocMapper(t *testing.T) {
	root := setup(t)
	_, err := run(t, "merge", "--plan", filepath.Join(root, "plan.yaml"))
	assert.Error(t, err)
}
