// Package loader reads collection manifests into the data model.
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openterrain/resolver/internal/core/model"
)

// Loader fetches a collection manifest from a source. A source is either a
// local filesystem path or an http(s) URL into object storage.
type Loader struct {
	client *http.Client
}

func New(client *http.Client) *Loader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Loader{client: client}
}

type manifest struct {
	Version     int                `json:"version"`
	GeneratedAt time.Time          `json:"generated_at"`
	Collections []model.Collection `json:"collections"`
}

// Load parses the manifest at source and returns its collections.
func (l *Loader) Load(ctx context.Context, source string) ([]model.Collection, error) {
	var (
		raw []byte
		err error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		raw, err = l.fetch(ctx, source)
	} else {
		raw, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("load manifest %q: %w", source, err)
	}

	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %q: %w", source, err)
	}
	for i := range m.Collections {
		c := &m.Collections[i]
		if c.ID == "" {
			return nil, fmt.Errorf("manifest %q: collection %d has no id", source, i)
		}
		if !c.CoverageBounds.Valid() {
			return nil, fmt.Errorf("manifest %q: collection %q has invalid bounds %s",
				source, c.ID, c.CoverageBounds)
		}
	}
	return m.Collections, nil
}

func (l *Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, fmt.Errorf("manifest status %d: %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(resp.Body)
}
