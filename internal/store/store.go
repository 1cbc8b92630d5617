// Package store implements the in-memory entity stores for applications,
// authorizations, scopes and tokens. Each store owns one collection keyed
// by the entity's public identifier. All operations are safe for
// concurrent use. State lives for the lifetime of the process only.
package store

import (
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/alexjbarnes/openid-store/internal/errors"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// Options configures a store.
type Options struct {
	// Logger receives debug output for writes and pruning. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// Now returns the current time. Token pruning compares expiration
	// dates against it. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o Options) now() time.Time {
	if o.Now == nil {
		return time.Now().UTC()
	}
	return o.Now().UTC()
}

// NewIdentifier returns a random public identifier: 32 lowercase hex
// characters holding a version 4 UUID.
func NewIdentifier() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Collect drains a sequence into a slice, stopping at the first error.
func Collect[E any](seq iter.Seq2[*E, error]) ([]*E, error) {
	var out []*E
	for e, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}

func nilEntity(kind string) error {
	return fmt.Errorf("%w: %s is required", apperrors.ErrValidation, kind)
}

func blank(name string) error {
	return fmt.Errorf("%w: %s cannot be empty", apperrors.ErrValidation, name)
}

func requireNonBlank(args ...string) error {
	for i := 0; i+1 < len(args); i += 2 {
		if strings.TrimSpace(args[i+1]) == "" {
			return blank(args[i])
		}
	}
	return nil
}

func notSupported(kind string) error {
	return fmt.Errorf("%w: ad-hoc %s queries, use List and filter", apperrors.ErrNotSupported, kind)
}

// fold returns the case-folded form of s used for case-insensitive
// comparison. A new Caser is created per call since Casers are stateful.
func fold(s string) string {
	return cases.Fold().String(s)
}

func foldEqual(a, b string) bool {
	if a == b {
		return true
	}
	return fold(a) == fold(b)
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
