package provider

import (
	"context"

	"github.com/morezero/httpserver-provider/pkg/codec"
)

// BindingStore persists the configuration of bound modules across restarts.
type BindingStore interface {
	SaveBinding(ctx context.Context, cfg *codec.CapabilityConfiguration) error
	DeleteBinding(ctx context.Context, module string) error
	ListBindings(ctx context.Context) ([]codec.CapabilityConfiguration, error)
}

// NoOpStore keeps nothing.
type NoOpStore struct{}

func (NoOpStore) SaveBinding(context.Context, *codec.CapabilityConfiguration) error { return nil }

func (NoOpStore) DeleteBinding(context.Context, string) error { return nil }

func (NoOpStore) ListBindings(context.Context) ([]codec.CapabilityConfiguration, error) {
	return nil, nil
}
