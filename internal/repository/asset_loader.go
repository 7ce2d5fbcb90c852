package repository

import (
	"context"
	"fmt"
	"strings"

	xhttp "SignalBoard/pkg/http"
)

// AssetLoader loads lazily materialized view bundles by requesting them from
// the asset host. A unit is either an absolute URL or a path under base.
type AssetLoader struct {
	client *xhttp.Client
	base   string
}

func NewAssetLoader(client *xhttp.Client, base string) *AssetLoader {
	return &AssetLoader{client: client, base: strings.TrimSuffix(base, "/")}
}

// Load succeeds when the unit is reachable with a 2xx status.
func (a *AssetLoader) Load(ctx context.Context, unit string) error {
	if unit == "" {
		return fmt.Errorf("empty unit")
	}
	url := unit
	if !strings.HasPrefix(unit, "http://") && !strings.HasPrefix(unit, "https://") {
		if !strings.HasPrefix(unit, "/") {
			unit = "/" + unit
		}
		url = a.base + unit
	}
	if err := a.client.SendAndParse(ctx, &xhttp.RequestOptions{Method: xhttp.MethodGet, URL: url}, nil); err != nil {
		return fmt.Errorf("load unit %s: %w", unit, err)
	}
	return nil
}
