package store

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	apperrors "github.com/alexjbarnes/openid-store/internal/errors"
)

// base implements the operations every entity store shares. The kind
// specific stores embed it and supply accessors for the identifier fields.
type base[E any] struct {
	kind    string
	records *collection[E]
	opts    Options
	logger  *slog.Logger

	key    func(*E) string
	setKey func(*E, string)
	physID func(*E) *int64
	clone  func(*E) *E
}

// Count returns the number of stored records.
func (b *base[E]) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return int64(b.records.len()), nil
}

// Create stores a new record. A missing public identifier is generated
// and a physical identifier is assigned from the store's counter; both
// are written back to e. Create fails with ErrDuplicateKey if the public
// identifier or a unique field is already taken, leaving e untouched.
func (b *base[E]) Create(ctx context.Context, e *E) error {
	if e == nil {
		return nilEntity(b.kind)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c := b.clone(e)
	if strings.TrimSpace(b.key(c)) == "" {
		b.setKey(c, NewIdentifier())
	}

	key := b.key(c)
	if err := b.records.insert(key, c); err != nil {
		return fmt.Errorf("creating %s: %w", b.kind, err)
	}

	id := *b.physID(c)
	b.setKey(e, key)
	*b.physID(e) = id

	b.logger.Debug("record created",
		slog.String("kind", b.kind),
		slog.String("id", key),
		slog.Int64("physical_id", id),
	)

	return nil
}

// Delete removes the record. Deleting a record that is not stored is a
// no-op.
func (b *base[E]) Delete(ctx context.Context, e *E) error {
	if e == nil {
		return nilEntity(b.kind)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := b.key(e)
	if key == "" {
		return nil
	}

	if b.records.remove(key) {
		b.logger.Debug("record deleted", slog.String("kind", b.kind), slog.String("id", key))
	}

	return nil
}

// Update replaces the stored record with e, inserting it if absent. The
// stored physical identifier is kept on replace and assigned on insert;
// either way it is written back to e.
func (b *base[E]) Update(ctx context.Context, e *E) error {
	if e == nil {
		return nilEntity(b.kind)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := b.key(e)
	if strings.TrimSpace(key) == "" {
		return blank(b.kind + " identifier")
	}

	c := b.clone(e)
	if err := b.records.put(key, c); err != nil {
		return fmt.Errorf("updating %s: %w", b.kind, err)
	}

	*b.physID(e) = *b.physID(c)

	return nil
}

// FindByID returns the record with the given public identifier, or nil
// if there is none.
func (b *base[E]) FindByID(ctx context.Context, id string) (*E, error) {
	if err := requireNonBlank("identifier", id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, ok := b.records.get(id)
	if !ok {
		return nil, nil
	}

	return b.clone(v), nil
}

// List returns up to count records starting at offset, in insertion
// order. A count of zero means no limit. Order is best-effort when the
// store is written to concurrently.
func (b *base[E]) List(ctx context.Context, count, offset int) (iter.Seq2[*E, error], error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: count cannot be negative", apperrors.ErrValidation)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset cannot be negative", apperrors.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return b.records.scan(ctx, offset, count, nil, b.clone), nil
}

// Instantiate returns a new, unsaved record with a fresh public
// identifier.
func (b *base[E]) Instantiate(ctx context.Context) (*E, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e := new(E)
	b.setKey(e, NewIdentifier())

	return e, nil
}

// Query rejects caller-supplied queries. Stores only offer their fixed
// lookup methods; use List and filter in process instead.
func (b *base[E]) Query(ctx context.Context, query any) (any, error) {
	return nil, notSupported(b.kind)
}

func (b *base[E]) find(ctx context.Context, pred func(*E) bool) (iter.Seq2[*E, error], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.records.scan(ctx, 0, 0, pred, b.clone), nil
}

func (b *base[E]) findFirst(ctx context.Context, pred func(*E) bool) (*E, error) {
	v, err := b.records.first(ctx, pred)
	if err != nil || v == nil {
		return nil, err
	}
	return b.clone(v), nil
}

func (b *base[E]) prune(ctx context.Context, pred func(*E) bool) (int, error) {
	n, err := b.records.removeWhere(ctx, pred)
	if err != nil {
		return 0, err
	}

	b.logger.Debug("records pruned", slog.String("kind", b.kind), slog.Int("count", n))

	return n, nil
}
