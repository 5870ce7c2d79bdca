package memory

import "context"

// NoopStore satisfies Store with empty results and no-ops. It is substituted
// once at startup when the configured backend fails to initialize, so the
// rest of the pipeline runs in a context-free degraded mode instead of
// crashing the process.
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (*NoopStore) Search(context.Context, string, string, int) ([]Fact, error) {
	return nil, nil
}

func (*NoopStore) Add(context.Context, []Message, string) error { return nil }

func (*NoopStore) Clear(context.Context, string) error { return nil }

func (*NoopStore) Close() error { return nil }
