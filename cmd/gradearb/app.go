package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/guarzo/gradearb/internal/config"
	"github.com/guarzo/gradearb/internal/engine"
	"github.com/guarzo/gradearb/internal/ledger"
	"github.com/guarzo/gradearb/internal/logger"
)

// openSource connects the configured ledger backend and wraps its catalog
// in the read-through cache. The returned cleanup is never nil.
func openSource(ctx context.Context, c *config.Config) (ledger.Source, func(), error) {
	var (
		src     ledger.Source
		cleanup = func() {}
	)

	switch c.LedgerBackend {
	case config.BackendPostgres:
		pool, err := ledger.Connect(ctx, c.DatabaseURL)
		if err != nil {
			return nil, cleanup, err
		}
		src, cleanup = ledger.NewPostgres(pool), pool.Close
	case config.BackendHTTP:
		client, err := ledger.NewHTTPClient(c.HTTP())
		if err != nil {
			return nil, cleanup, err
		}
		src = client
	default:
		store, err := ledger.LoadFile(c.LedgerFile)
		if err != nil {
			return nil, cleanup, err
		}
		src = store
	}

	if c.CatalogCacheSize == 0 {
		return src, cleanup, nil
	}
	cached, err := ledger.WithCatalogCache(src, c.CatalogCacheSize, c.CatalogCacheTTL())
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return cached, cleanup, nil
}

func newEngine(ctx context.Context, c *config.Config) (*engine.Engine, func(), error) {
	src, cleanup, err := openSource(ctx, c)
	if err != nil {
		return nil, cleanup, fmt.Errorf("open %s ledger: %w", c.LedgerBackend, err)
	}
	e := engine.New(src, src, c.Engine(), engine.WithLogger(logger.WithComponent("engine")))
	return e, cleanup, nil
}

const (
	formatJSON = "json"
	formatCSV  = "csv"
)

func checkFormat(f string) (string, error) {
	switch f = strings.ToLower(f); f {
	case formatJSON, formatCSV:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want json or csv)", f)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
