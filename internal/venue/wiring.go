// Package venue wires together the concrete adapters each stage binary
// needs, keyed by model.Venue, so every cmd/ entrypoint that talks to
// venues shares one construction path.
package venue

import (
	"fmt"

	"github.com/eventarb/crossvenue/internal/config"
	"github.com/eventarb/crossvenue/internal/model"
	"github.com/eventarb/crossvenue/internal/venue/common"
	"github.com/eventarb/crossvenue/internal/venue/kalshi"
	"github.com/eventarb/crossvenue/internal/venue/polymarket"
	"github.com/eventarb/crossvenue/internal/venue/testvenue"
	"github.com/eventarb/crossvenue/pkg/observability"
)

// BuildAdapters constructs one common.Adapter per configured venue. Kalshi
// and Polymarket are only included when their credentials are set, so a
// dry-run deployment can run with just the in-memory test venue.
func BuildAdapters(cfg *config.Config, logger *observability.Logger) (map[model.Venue]common.Adapter, error) {
	adapters := make(map[model.Venue]common.Adapter)

	if cfg.Kalshi.AccessKey != "" && cfg.Kalshi.SigningKey != "" {
		client, err := kalshi.NewClient(logger, kalshi.Config{
			BaseURL:       cfg.Kalshi.BaseURL,
			AccessKey:     cfg.Kalshi.AccessKey,
			PrivateKeyPEM: cfg.Kalshi.SigningKey,
		})
		if err != nil {
			return nil, fmt.Errorf("build kalshi adapter: %w", err)
		}
		adapters[model.VenueKalshi] = client
	}

	if cfg.Polymarket.PrivateKeyHex != "" {
		client, err := polymarket.NewClient(logger, polymarket.Config{
			ClobBaseURL:  cfg.Polymarket.BaseURL,
			GammaBaseURL: cfg.Polymarket.GammaURL,
			WSBaseURL:    cfg.Polymarket.WSBaseURL,
			PrivateKey:   cfg.Polymarket.PrivateKeyHex,
			Funder:       cfg.Polymarket.FunderAddress,
			ChainID:      cfg.Polymarket.ChainID,
			Credentials: polymarket.Credentials{
				APIKey: cfg.Polymarket.APIKey, Secret: cfg.Polymarket.APISecret, Passphrase: cfg.Polymarket.APIPassphrase,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("build polymarket adapter: %w", err)
		}
		adapters[model.VenuePolymarket] = client
	}

	adapters[model.VenueTest] = testvenue.New()

	return adapters, nil
}
