package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/httpserver-provider/pkg/codec"
)

const bindingsLogPrefix = "db:bindings"

// Binding is a row of http_bindings.
type Binding struct {
	Module    string
	Values    map[string]string
	UpdatedAt time.Time
}

// BindingRepository stores the configuration of bound modules.
// It satisfies provider.BindingStore.
type BindingRepository struct {
	pool *pgxpool.Pool
}

// NewBindingRepository creates a BindingRepository on pool.
func NewBindingRepository(pool *pgxpool.Pool) *BindingRepository {
	return &BindingRepository{pool: pool}
}

// SaveBinding inserts or replaces the binding for cfg.Module.
func (r *BindingRepository) SaveBinding(ctx context.Context, cfg *codec.CapabilityConfiguration) error {
	values, err := json.Marshal(nonNilValues(cfg.Values))
	if err != nil {
		return fmt.Errorf("%s - failed to encode values for %s: %w", bindingsLogPrefix, cfg.Module, err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO http_bindings (module, "values", updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (module) DO UPDATE SET "values" = EXCLUDED."values", updated_at = now()`,
		cfg.Module, values)
	if err != nil {
		return fmt.Errorf("%s - failed to save binding %s: %w", bindingsLogPrefix, cfg.Module, err)
	}
	slog.Debug(fmt.Sprintf("%s - Saved binding for %s", bindingsLogPrefix, cfg.Module))
	return nil
}

// DeleteBinding removes the binding for module. Deleting a missing binding is not an error.
func (r *BindingRepository) DeleteBinding(ctx context.Context, module string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM http_bindings WHERE module = $1`, module); err != nil {
		return fmt.Errorf("%s - failed to delete binding %s: %w", bindingsLogPrefix, module, err)
	}
	return nil
}

// ListBindings returns every persisted binding ordered by module.
func (r *BindingRepository) ListBindings(ctx context.Context) ([]codec.CapabilityConfiguration, error) {
	rows, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]codec.CapabilityConfiguration, 0, len(rows))
	for _, b := range rows {
		out = append(out, codec.CapabilityConfiguration{Module: b.Module, Values: b.Values})
	}
	return out, nil
}

// List returns every row of http_bindings ordered by module.
func (r *BindingRepository) List(ctx context.Context) ([]Binding, error) {
	rows, err := r.pool.Query(ctx, `SELECT module, "values", updated_at FROM http_bindings ORDER BY module`)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to list bindings: %w", bindingsLogPrefix, err)
	}
	defer rows.Close()

	var out []Binding
	for rows.Next() {
		var b Binding
		var raw []byte
		if err := rows.Scan(&b.Module, &raw, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%s - scan: %w", bindingsLogPrefix, err)
		}
		if err := json.Unmarshal(raw, &b.Values); err != nil {
			return nil, fmt.Errorf("%s - decode values for %s: %w", bindingsLogPrefix, b.Module, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Clear removes every persisted binding.
func (r *BindingRepository) Clear(ctx context.Context) error {
	slog.Info(fmt.Sprintf("%s - Clearing bindings", bindingsLogPrefix))
	if _, err := r.pool.Exec(ctx, `TRUNCATE TABLE http_bindings`); err != nil {
		return fmt.Errorf("%s - truncate failed: %w", bindingsLogPrefix, err)
	}
	return nil
}

func nonNilValues(v map[string]string) map[string]string {
	if v == nil {
		return map[string]string{}
	}
	return v
}
