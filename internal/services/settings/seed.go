package settings

import (
	"context"
	"fmt"
	"sort"

	"sayan/internal/models"
	"sayan/internal/repositories"
)

// Seed writes the default rows that are missing and makes sure the platform
// wallet exists. Existing values are left alone, so it is safe to rerun.
func Seed(ctx context.Context, store repositories.Store) ([]string, error) {
	var inserted []string
	err := store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		rows, err := tx.Settings().All(ctx)
		if err != nil {
			return err
		}
		existing := make(map[string]struct{}, len(rows))
		for _, row := range rows {
			existing[row.Key] = struct{}{}
		}

		defaults := DefaultRows()
		keys := make([]string, 0, len(defaults))
		for key := range defaults {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			if _, ok := existing[key]; ok {
				continue
			}
			if _, err := tx.Settings().Upsert(ctx, key, defaults[key], nil); err != nil {
				return err
			}
			inserted = append(inserted, key)
		}

		snap, err := build(rows)
		if err != nil {
			return err
		}
		if err := tx.Wallets().CreateIfAbsent(ctx, models.SystemOwner(), snap.Currency); err != nil {
			return fmt.Errorf("failed to create platform wallet: %w", err)
		}
		return nil
	})
	return inserted, err
}
