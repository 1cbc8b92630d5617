package state

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/alexjbarnes/openid-store/internal/models"
	"github.com/alexjbarnes/openid-store/internal/store"
)

// Capture copies the content of the registry's base stores into a
// snapshot. Each store is read separately, so writes racing with Capture
// may be seen in one store and not another.
func Capture(ctx context.Context, reg *store.Registry) (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)

	if snap.Applications, err = drain(reg.ApplicationStore().List(ctx, 0, 0)); err != nil {
		return Snapshot{}, fmt.Errorf("capturing applications: %w", err)
	}

	if snap.Authorizations, err = drain(reg.AuthorizationStore().List(ctx, 0, 0)); err != nil {
		return Snapshot{}, fmt.Errorf("capturing authorizations: %w", err)
	}

	if snap.Scopes, err = drain(reg.ScopeStore().List(ctx, 0, 0)); err != nil {
		return Snapshot{}, fmt.Errorf("capturing scopes: %w", err)
	}

	if snap.Tokens, err = drain(reg.TokenStore().List(ctx, 0, 0)); err != nil {
		return Snapshot{}, fmt.Errorf("capturing tokens: %w", err)
	}

	return snap, nil
}

// Restore creates every record of snap in the registry's base stores,
// keeping public and physical identifiers. The stores should be empty;
// a record that collides with an existing one aborts the restore.
func Restore(ctx context.Context, reg *store.Registry, snap Snapshot) error {
	if err := restore(ctx, snap.Applications, func(a *models.Application) int64 { return a.ID }, reg.ApplicationStore().Create); err != nil {
		return fmt.Errorf("restoring applications: %w", err)
	}

	if err := restore(ctx, snap.Authorizations, func(a *models.Authorization) int64 { return a.ID }, reg.AuthorizationStore().Create); err != nil {
		return fmt.Errorf("restoring authorizations: %w", err)
	}

	if err := restore(ctx, snap.Scopes, func(s *models.Scope) int64 { return s.ID }, reg.ScopeStore().Create); err != nil {
		return fmt.Errorf("restoring scopes: %w", err)
	}

	if err := restore(ctx, snap.Tokens, func(t *models.Token) int64 { return t.ID }, reg.TokenStore().Create); err != nil {
		return fmt.Errorf("restoring tokens: %w", err)
	}

	return nil
}

func drain[E any](seq iter.Seq2[*E, error], err error) ([]E, error) {
	if err != nil {
		return nil, err
	}

	var out []E

	for e, err := range seq {
		if err != nil {
			return nil, err
		}

		out = append(out, *e)
	}

	return out, nil
}

// restore recreates records in physical identifier order so a List
// after a restart matches the order before it.
func restore[E any](ctx context.Context, records []E, id func(*E) int64, create func(context.Context, *E) error) error {
	ordered := slices.Clone(records)
	slices.SortStableFunc(ordered, func(a, b E) int {
		return cmp.Compare(id(&a), id(&b))
	})

	for i := range ordered {
		if err := create(ctx, &ordered[i]); err != nil {
			return err
		}
	}

	return nil
}
