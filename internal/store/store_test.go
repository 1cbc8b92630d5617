package store

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testOptions() Options {
	return Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return testNow },
	}
}

func ptr[T any](v T) *T {
	return &v
}

// collect drains a lookup result, failing the test on any error.
func collect[E any](t *testing.T, seq iter.Seq2[*E, error], err error) []*E {
	t.Helper()
	require.NoError(t, err)
	out, err := Collect(seq)
	require.NoError(t, err)
	return out
}

func cancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func TestNewIdentifier_Format(t *testing.T) {
	id := NewIdentifier()
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), id)
}

func TestNewIdentifier_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	for range 1000 {
		id := NewIdentifier()
		_, dup := seen[id]
		require.False(t, dup, "identifier %s generated twice", id)
		seen[id] = struct{}{}
	}
}

func TestFoldEqual(t *testing.T) {
	assert.True(t, foldEqual("Foo", "foo"))
	assert.True(t, foldEqual("STRASSE", "strasse"))
	assert.False(t, foldEqual("foo", "bar"))
}

func TestDedupe(t *testing.T) {
	assert.Nil(t, dedupe(nil))
	assert.Nil(t, dedupe([]string{}))
	assert.Equal(t, []string{"a", "b"}, dedupe([]string{"a", "b", "a"}))
}

func TestRequireNonBlank(t *testing.T) {
	assert.NoError(t, requireNonBlank("a", "x", "b", "y"))

	err := requireNonBlank("a", "x", "b", "   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b cannot be empty")
}
