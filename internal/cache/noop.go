package cache

import (
	"context"

	"github.com/commercekit/imagepipe/internal/optimize"
)

// Noop is the cache used when reuse is disabled: every read misses, every
// write is dropped.
type Noop struct{}

// NewNoop returns a disabled cache.
func NewNoop() *Noop { return &Noop{} }

func (*Noop) Get(context.Context, string) (*optimize.OptimizedImageResult, bool) {
	return nil, false
}

func (*Noop) Put(context.Context, string, *optimize.OptimizedImageResult) {}
