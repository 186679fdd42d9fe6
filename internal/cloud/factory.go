// Package cloud builds the configured provider backend.
package cloud

import (
	"context"
	"fmt"

	"github.com/scttfrdmn/barkuni/internal/aws"
	"github.com/scttfrdmn/barkuni/internal/config"
	"github.com/scttfrdmn/barkuni/internal/digitalocean"
	"github.com/scttfrdmn/barkuni/internal/hetzner"
	"github.com/scttfrdmn/barkuni/internal/provision"
	"go.uber.org/zap"
)

// InstanceClient is implemented by every provider backend
type InstanceClient interface {
	provision.ProviderClient
	Terminate(ctx context.Context, instanceID string) error
}

// Backend is an authenticated provider client and its name
type Backend struct {
	Name   string
	Client InstanceClient
}

// ProviderContext hands the backend to the orchestrator
func (b *Backend) ProviderContext() provision.ProviderContext {
	return provision.ProviderContext{Name: b.Name, Client: b.Client}
}

// New creates the backend selected by provider.type. A non-empty region
// overrides the provider's configured region or location.
func New(ctx context.Context, logger *zap.Logger, cfg *config.Config, region string) (*Backend, error) {
	if err := cfg.ValidateCredentials(); err != nil {
		return nil, err
	}

	switch cfg.Provider.Type {
	case config.ProviderAWS, "":
		client, err := aws.NewClient(ctx, logger, &cfg.AWS, region)
		if err != nil {
			return nil, err
		}
		logger.Debug("AWS backend ready", zap.String("region", client.Region()))
		return &Backend{Name: aws.ProviderName, Client: client}, nil

	case config.ProviderHetzner:
		hc := cfg.Hetzner
		if region != "" {
			hc.Location = region
		}
		client, err := hetzner.NewClient(logger, &hc)
		if err != nil {
			return nil, err
		}
		return &Backend{Name: hetzner.ProviderName, Client: client}, nil

	case config.ProviderDigitalOcean:
		dc := cfg.DigitalOcean
		if region != "" {
			dc.Region = region
		}
		client, err := digitalocean.NewClient(logger, &dc)
		if err != nil {
			return nil, err
		}
		return &Backend{Name: digitalocean.ProviderName, Client: client}, nil

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Provider.Type)
	}
}
