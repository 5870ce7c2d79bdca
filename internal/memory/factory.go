package memory

import (
	"errors"
	"strings"

	"github.com/ent0n29/recall/internal/embeddings"
)

// Options selects and configures a memory backend.
type Options struct {
	// Provider is one of auto|chromem|http|inmemory|noop.
	Provider    string
	ServiceURL  string
	ServiceKey  string
	ChromemPath string
	Embedder    embeddings.Embedder
}

// NewStore builds the configured memory backend. The choice happens once at
// startup; callers that want the crash-free degraded mode substitute
// NewNoopStore when this returns an error.
func NewStore(opts Options) (Store, error) {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	if provider == "" {
		provider = "auto"
	}

	switch provider {
	case "auto":
		if strings.TrimSpace(opts.ServiceURL) != "" {
			return NewHTTPStore(opts.ServiceURL, opts.ServiceKey), nil
		}
		if opts.Embedder != nil {
			return NewChromemStore(opts.ChromemPath, opts.Embedder)
		}
		return NewInMemoryStore(), nil
	case "http":
		if strings.TrimSpace(opts.ServiceURL) == "" {
			return nil, errors.New("memory service url is required for http provider")
		}
		return NewHTTPStore(opts.ServiceURL, opts.ServiceKey), nil
	case "chromem":
		return NewChromemStore(opts.ChromemPath, opts.Embedder)
	case "inmemory":
		return NewInMemoryStore(), nil
	case "noop":
		return NewNoopStore(), nil
	default:
		return nil, errors.New("unsupported memory provider " + provider)
	}
}
