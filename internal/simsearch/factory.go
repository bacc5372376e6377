package simsearch

import (
	"fmt"
	"io"
	"strings"

	"github.com/corner4world/deepdetect/internal/config"
	"github.com/corner4world/deepdetect/internal/pkg/errors"
	"github.com/corner4world/deepdetect/internal/qdrant"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewEngine creates the engine selected by cfg.Index.Engine. The returned
// closer releases the engine's connections.
func NewEngine(cfg *config.Config) (Engine, io.Closer, error) {
	switch strings.ToLower(cfg.Index.Engine) {
	case "", "memory":
		return NewMemoryEngine(), nopCloser{}, nil
	case "qdrant":
		client, err := qdrant.NewClient(qdrant.ConfigFrom(cfg.Qdrant))
		if err != nil {
			return nil, nil, errors.QdrantError("connect", err)
		}
		return NewQdrantEngine(client, cfg.Index.BatchSize), client, nil
	default:
		return nil, nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown index engine: %s", cfg.Index.Engine))
	}
}
