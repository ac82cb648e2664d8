package contextbuild

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gruhno/caseforge/internal/store"
)

type fakeSource struct {
	ancestors map[int64][]store.ProcessNode
	children  map[int64][]store.ProcessNode
	matches   map[int64][]store.ProcessNode
}

func (f *fakeSource) GetAncestors(_ context.Context, id int64) ([]store.ProcessNode, error) {
	return f.ancestors[id], nil
}

func (f *fakeSource) ListChildren(_ context.Context, parentID int64) ([]store.ProcessNode, error) {
	return f.children[parentID], nil
}

func (f *fakeSource) FindCrossModelMatches(_ context.Context, node *store.ProcessNode) ([]store.ProcessNode, error) {
	return f.matches[node.ID], nil
}

func strPtr(s string) *string { return &s }
func intPtr(i int64) *int64   { return &i }

func testTree() (*fakeSource, *store.ProcessNode) {
	root := store.ProcessNode{
		ID: 1, ModelKey: "apqc_pcf", Code: "1", Name: "Develop Vision and Strategy",
		Description: strPtr("Set strategic direction for the enterprise"), Level: 1,
	}
	leaf := &store.ProcessNode{
		ID: 2, ModelKey: "apqc_pcf", ParentID: intPtr(1), Code: "1.1.1",
		Name: "Develop vision", Description: strPtr("Assess the external environment"),
		Level: 3, IsLeaf: true,
	}
	sibling := store.ProcessNode{
		ID: 3, ModelKey: "apqc_pcf", ParentID: intPtr(1), Code: "1.1.2",
		Name: "Survey market and determine customer needs", Level: 3, IsLeaf: true,
	}

	return &fakeSource{
		ancestors: map[int64][]store.ProcessNode{2: {root}},
		children:  map[int64][]store.ProcessNode{1: {*leaf, sibling}},
		matches:   map[int64][]store.ProcessNode{},
	}, leaf
}

func TestBuild_AncestorAndOwnContext(t *testing.T) {
	source, leaf := testTree()
	builder := New(source)

	got, err := builder.Build(context.Background(), leaf, Options{})
	require.NoError(t, err)

	assert.Contains(t, got, "Develop vision")
	assert.Contains(t, got, "Assess the external environment")
	assert.Contains(t, got, "Develop Vision and Strategy")
	// IncludeBranch is off: sibling content must not leak in.
	assert.NotContains(t, got, "Survey market and determine customer needs")
}

func TestBuild_IncludeBranchAddsSiblings(t *testing.T) {
	source, leaf := testTree()
	builder := New(source)

	got, err := builder.Build(context.Background(), leaf, Options{IncludeBranch: true})
	require.NoError(t, err)

	assert.Contains(t, got, "Related Processes:")
	assert.Contains(t, got, "Survey market and determine customer needs")
	// The node itself is not its own sibling.
	assert.NotContains(t, got, "- [1.1.1]")
}

func TestBuild_CrossCategoryAddsVariants(t *testing.T) {
	source, leaf := testTree()
	source.matches[leaf.ID] = []store.ProcessNode{
		{ID: 9, ModelKey: "retail", Code: "2.4.1", Name: "Develop vision",
			Description: strPtr("Retail flavor of the same process")},
	}
	builder := New(source)

	got, err := builder.Build(context.Background(), leaf, Options{CrossCategory: true})
	require.NoError(t, err)

	assert.Contains(t, got, "Industry Variants:")
	assert.Contains(t, got, "(retail) Develop vision")
}

func TestBuild_TruncationDropsDistantAncestorsFirst(t *testing.T) {
	long := strings.Repeat("x", 200)
	root := store.ProcessNode{ID: 1, Code: "1", Name: "Root", Description: strPtr(long), Level: 1}
	mid := store.ProcessNode{ID: 2, Code: "1.1", Name: "Mid", Description: strPtr(long), Level: 2}
	leaf := &store.ProcessNode{ID: 3, ParentID: intPtr(2), Code: "1.1.1", Name: "Leaf",
		Description: strPtr("short description"), Level: 3}

	source := &fakeSource{
		ancestors: map[int64][]store.ProcessNode{3: {root, mid}},
		children:  map[int64][]store.ProcessNode{},
		matches:   map[int64][]store.ProcessNode{},
	}
	builder := New(source)

	full, err := builder.Build(context.Background(), leaf, Options{})
	require.NoError(t, err)
	require.Contains(t, full, "Root")
	require.Contains(t, full, "Mid")

	// A budget too small for both ancestors drops the root (most distant) first.
	budget := len(full) - 50
	got, err := builder.Build(context.Background(), leaf, Options{MaxChars: budget})
	require.NoError(t, err)

	assert.LessOrEqual(t, len(got), budget)
	assert.NotContains(t, got, "[1] Root")
	assert.Contains(t, got, "Mid")
	assert.Contains(t, got, "Current Process:")
}

func TestTruncate_NeverSplitsRunes(t *testing.T) {
	// 150 two-byte runes, 300 bytes. A byte cut at 200 lands cleanly here, so
	// also check an odd limit that falls mid-rune.
	s := strings.Repeat("ü", 150)

	got := truncate(s, descriptionLimit)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("ü", 100), got)

	got = truncate(s, 201)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 201)
	assert.Equal(t, strings.Repeat("ü", 100), got)
}

func TestBuild_BudgetCutKeepsRuneBoundary(t *testing.T) {
	leaf := &store.ProcessNode{ID: 1, Code: "1.1", Name: "Leaf",
		Description: strPtr(strings.Repeat("é", 100)), Level: 2}

	source := &fakeSource{
		ancestors: map[int64][]store.ProcessNode{},
		children:  map[int64][]store.ProcessNode{},
		matches:   map[int64][]store.ProcessNode{},
	}
	builder := New(source)

	// With no hierarchy left to drop, the final cut must still land on a rune
	// boundary inside the description.
	got, err := builder.Build(context.Background(), leaf, Options{MaxChars: 61})
	require.NoError(t, err)

	assert.LessOrEqual(t, len(got), 61)
	assert.True(t, utf8.ValidString(got))
}

func TestBuild_ContextUnavailable(t *testing.T) {
	root := store.ProcessNode{ID: 1, Code: "1", Name: "Root", Level: 1}
	leaf := &store.ProcessNode{ID: 2, ParentID: intPtr(1), Code: "1.1", Name: "Leaf", Level: 2}

	source := &fakeSource{
		ancestors: map[int64][]store.ProcessNode{2: {root}},
		children:  map[int64][]store.ProcessNode{},
		matches:   map[int64][]store.ProcessNode{},
	}
	builder := New(source)

	_, err := builder.Build(context.Background(), leaf, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContextUnavailable))
}

func TestBuild_NoDescriptionFallsBackToAncestors(t *testing.T) {
	root := store.ProcessNode{ID: 1, Code: "1", Name: "Root",
		Description: strPtr("Root carries the only description"), Level: 1}
	leaf := &store.ProcessNode{ID: 2, ParentID: intPtr(1), Code: "1.1", Name: "Leaf", Level: 2}

	source := &fakeSource{
		ancestors: map[int64][]store.ProcessNode{2: {root}},
		children:  map[int64][]store.ProcessNode{},
		matches:   map[int64][]store.ProcessNode{},
	}
	builder := New(source)

	got, err := builder.Build(context.Background(), leaf, Options{})
	require.NoError(t, err)
	assert.Contains(t, got, "Root carries the only description")
	assert.Contains(t, got, "Description: No description provided")
}
