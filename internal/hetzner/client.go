// Package hetzner provisions single Hetzner Cloud servers for the orchestrator.
package hetzner

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"

	"github.com/google/uuid"
	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/scttfrdmn/barkuni/internal/config"
	"github.com/scttfrdmn/barkuni/pkg/types"
	"go.uber.org/zap"
)

// ProviderName labels the Hetzner backend in logs and metrics
const ProviderName = "hetzner"

// Client maps launch specs onto Hetzner Cloud servers.
//
//	SubnetID         -> network (id or name)
//	ImageID          -> image name or id
//	InstanceType     -> server type name
//	KeyName          -> SSH key (id or name)
//	SecurityGroupIDs -> firewalls (id or name)
//	Tags             -> labels
type Client struct {
	logger   *zap.Logger
	client   *hcloud.Client
	location string
}

// NewClient creates a Hetzner client from the hetzner config section
func NewClient(logger *zap.Logger, cfg *config.HetznerConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("hetzner.token is required")
	}
	return NewClientWithHCloud(logger, hcloud.NewClient(
		hcloud.WithToken(cfg.Token),
		hcloud.WithApplication("barkuni", ""),
	), cfg.Location), nil
}

// NewClientWithHCloud wraps an existing hcloud client
func NewClientWithHCloud(logger *zap.Logger, client *hcloud.Client, location string) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		logger:   logger.With(zap.String("provider", ProviderName)),
		client:   client,
		location: location,
	}
}

// Launch creates one server and returns its numeric id as a string
func (c *Client) Launch(ctx context.Context, spec types.LaunchSpec) (string, error) {
	opts, err := c.buildServerCreateOpts(ctx, spec)
	if err != nil {
		return "", err
	}

	c.logger.Debug("Creating Hetzner server",
		zap.String("name", opts.Name),
		zap.String("image", spec.ImageID),
		zap.String("server_type", spec.InstanceType),
		zap.String("location", c.location))

	result, _, err := c.client.Server.Create(ctx, opts)
	if err != nil {
		return "", fmt.Errorf("failed to create server: %w", err)
	}
	if result.Server == nil {
		return "", errors.New("server create returned no server")
	}

	id := strconv.FormatInt(result.Server.ID, 10)
	c.logger.Info("Hetzner server created", zap.String("server_id", id), zap.String("name", result.Server.Name))
	return id, nil
}

func (c *Client) buildServerCreateOpts(ctx context.Context, spec types.LaunchSpec) (hcloud.ServerCreateOpts, error) {
	opts := hcloud.ServerCreateOpts{
		Name:       "barkuni-" + uuid.NewString()[:8],
		ServerType: &hcloud.ServerType{Name: spec.InstanceType},
		Image:      imageRef(spec.ImageID),
	}
	if c.location != "" {
		opts.Location = &hcloud.Location{Name: c.location}
	}

	network, _, err := c.client.Network.Get(ctx, spec.SubnetID)
	if err != nil {
		return opts, fmt.Errorf("failed to get network: %w", err)
	}
	if network == nil {
		return opts, fmt.Errorf("network not found: %s", spec.SubnetID)
	}
	opts.Networks = []*hcloud.Network{network}

	if spec.KeyName != "" {
		key, _, err := c.client.SSHKey.Get(ctx, spec.KeyName)
		if err != nil {
			return opts, fmt.Errorf("failed to get SSH key: %w", err)
		}
		if key == nil {
			return opts, fmt.Errorf("SSH key not found: %s", spec.KeyName)
		}
		opts.SSHKeys = []*hcloud.SSHKey{key}
	}

	for _, ref := range spec.SecurityGroupIDs {
		firewall, _, err := c.client.Firewall.Get(ctx, ref)
		if err != nil {
			return opts, fmt.Errorf("failed to get firewall: %w", err)
		}
		if firewall == nil {
			return opts, fmt.Errorf("firewall not found: %s", ref)
		}
		opts.Firewalls = append(opts.Firewalls, &hcloud.ServerCreateFirewall{Firewall: *firewall})
	}

	return opts, nil
}

func imageRef(ref string) *hcloud.Image {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return &hcloud.Image{ID: id}
	}
	return &hcloud.Image{Name: ref}
}

// Tag merges tags into the server's labels. Existing labels with other keys
// are kept, so applying the same tags twice is a no-op.
func (c *Client) Tag(ctx context.Context, instanceID string, tags map[string]string) error {
	if len(tags) == 0 {
		return nil
	}
	server, err := c.getServer(ctx, instanceID)
	if err != nil {
		return err
	}
	if server == nil {
		return fmt.Errorf("server %s not found", instanceID)
	}

	labels := make(map[string]string, len(server.Labels)+len(tags))
	maps.Copy(labels, server.Labels)
	maps.Copy(labels, tags)

	if _, _, err := c.client.Server.Update(ctx, server, hcloud.ServerUpdateOpts{Labels: labels}); err != nil {
		return fmt.Errorf("failed to update server labels: %w", err)
	}
	return nil
}

// Describe reports the server status. A server that no longer exists is
// reported as terminated.
func (c *Client) Describe(ctx context.Context, instanceID string) (*types.InstanceSnapshot, error) {
	server, err := c.getServer(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if server == nil {
		return &types.InstanceSnapshot{
			InstanceID: instanceID,
			StateName:  "deleted",
			Condition:  types.ConditionTerminated,
		}, nil
	}

	snap := &types.InstanceSnapshot{
		InstanceID: instanceID,
		StateName:  string(server.Status),
		Condition:  classifyStatus(server.Status),
	}
	if ip := server.PublicNet.IPv4.IP; ip != nil && !ip.IsUnspecified() {
		snap.PublicAddress = ip.String()
	}
	for _, private := range server.PrivateNet {
		if private.IP != nil {
			snap.PrivateAddress = private.IP.String()
			break
		}
	}
	return snap, nil
}

// Terminate deletes the server
func (c *Client) Terminate(ctx context.Context, instanceID string) error {
	server, err := c.getServer(ctx, instanceID)
	if err != nil {
		return err
	}
	if server == nil {
		c.logger.Info("Hetzner server already deleted", zap.String("server_id", instanceID))
		return nil
	}

	if _, _, err := c.client.Server.DeleteWithResult(ctx, server); err != nil {
		return fmt.Errorf("failed to delete server: %w", err)
	}
	c.logger.Info("Hetzner server deleted", zap.String("server_id", instanceID))
	return nil
}

func (c *Client) getServer(ctx context.Context, instanceID string) (*hcloud.Server, error) {
	id, err := strconv.ParseInt(instanceID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid server ID %q: %w", instanceID, err)
	}
	server, _, err := c.client.Server.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get server: %w", err)
	}
	return server, nil
}

func classifyStatus(status hcloud.ServerStatus) types.InstanceCondition {
	switch status {
	case hcloud.ServerStatusRunning:
		return types.ConditionReady
	case hcloud.ServerStatusStopping, hcloud.ServerStatusOff, hcloud.ServerStatusDeleting:
		return types.ConditionTerminated
	default:
		return types.ConditionPending
	}
}
