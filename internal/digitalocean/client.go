// Package digitalocean provisions single droplets for the orchestrator.
package digitalocean

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strconv"

	"github.com/digitalocean/godo"
	"github.com/google/uuid"
	"github.com/scttfrdmn/barkuni/internal/config"
	"github.com/scttfrdmn/barkuni/pkg/types"
	"go.uber.org/zap"
)

// ProviderName labels the DigitalOcean backend in logs and metrics
const ProviderName = "digitalocean"

// Client maps launch specs onto droplets.
//
//	SubnetID         -> VPC UUID
//	ImageID          -> image slug or id
//	InstanceType     -> size slug
//	KeyName          -> SSH key id or fingerprint
//	SecurityGroupIDs -> cloud firewall ids
//	Tags             -> "key:value" tags
type Client struct {
	logger *zap.Logger
	client *godo.Client
	region string
}

// NewClient creates a DigitalOcean client from the digitalocean config section
func NewClient(logger *zap.Logger, cfg *config.DigitalOceanConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("digitalocean.token is required")
	}
	return NewClientWithGodo(logger, godo.NewFromToken(cfg.Token), cfg.Region), nil
}

// NewClientWithGodo wraps an existing godo client
func NewClientWithGodo(logger *zap.Logger, client *godo.Client, region string) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		logger: logger.With(zap.String("provider", ProviderName)),
		client: client,
		region: region,
	}
}

// Launch creates one droplet and attaches the requested firewalls
func (c *Client) Launch(ctx context.Context, spec types.LaunchSpec) (string, error) {
	req := &godo.DropletCreateRequest{
		Name:    "barkuni-" + uuid.NewString()[:8],
		Region:  c.region,
		Size:    spec.InstanceType,
		Image:   imageRef(spec.ImageID),
		VPCUUID: spec.SubnetID,
	}
	if spec.KeyName != "" {
		req.SSHKeys = []godo.DropletCreateSSHKey{sshKeyRef(spec.KeyName)}
	}

	c.logger.Debug("Creating droplet",
		zap.String("name", req.Name),
		zap.String("image", spec.ImageID),
		zap.String("size", spec.InstanceType),
		zap.String("vpc_uuid", spec.SubnetID))

	droplet, _, err := c.client.Droplets.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create droplet: %w", err)
	}

	id := strconv.Itoa(droplet.ID)
	c.logger.Info("Droplet created", zap.String("droplet_id", id), zap.String("region", c.region))

	for _, firewallID := range spec.SecurityGroupIDs {
		if _, err := c.client.Firewalls.AddDroplets(ctx, firewallID, droplet.ID); err != nil {
			return "", c.discardDroplet(ctx, droplet.ID, fmt.Errorf("failed to attach firewall %s: %w", firewallID, err))
		}
	}
	return id, nil
}

// discardDroplet deletes a droplet that could not be fully set up so a launch
// failure never leaves a resource behind
func (c *Client) discardDroplet(ctx context.Context, dropletID int, cause error) error {
	id := strconv.Itoa(dropletID)
	if _, err := c.client.Droplets.Delete(context.WithoutCancel(ctx), dropletID); err != nil && !isNotFound(err) {
		c.logger.Warn("Failed to delete droplet after launch failure, it is still running",
			zap.String("droplet_id", id),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return fmt.Errorf("%w (droplet %s could not be deleted and is still running: %v)", cause, id, err)
	}
	c.logger.Info("Deleted droplet after launch failure", zap.String("droplet_id", id), zap.Error(cause))
	return cause
}

func imageRef(ref string) godo.DropletCreateImage {
	if id, err := strconv.Atoi(ref); err == nil {
		return godo.DropletCreateImage{ID: id}
	}
	return godo.DropletCreateImage{Slug: ref}
}

func sshKeyRef(ref string) godo.DropletCreateSSHKey {
	if id, err := strconv.Atoi(ref); err == nil {
		return godo.DropletCreateSSHKey{ID: id}
	}
	return godo.DropletCreateSSHKey{Fingerprint: ref}
}

// TagName renders one tag as a DigitalOcean tag name
func TagName(key, value string) string {
	if value == "" {
		return key
	}
	return key + ":" + value
}

// Tag creates each "key:value" tag if needed and attaches it to the droplet.
// Both calls are idempotent on the DigitalOcean side.
func (c *Client) Tag(ctx context.Context, instanceID string, tags map[string]string) error {
	if _, err := strconv.Atoi(instanceID); err != nil {
		return fmt.Errorf("invalid droplet ID %q: %w", instanceID, err)
	}

	for _, key := range slices.Sorted(maps.Keys(tags)) {
		name := TagName(key, tags[key])
		if _, _, err := c.client.Tags.Create(ctx, &godo.TagCreateRequest{Name: name}); err != nil {
			return fmt.Errorf("failed to create tag %s: %w", name, err)
		}
		_, err := c.client.Tags.TagResources(ctx, name, &godo.TagResourcesRequest{
			Resources: []godo.Resource{{ID: instanceID, Type: godo.DropletResourceType}},
		})
		if err != nil {
			return fmt.Errorf("failed to tag droplet with %s: %w", name, err)
		}
	}
	return nil
}

// Describe reports the droplet status. A droplet that no longer exists is
// reported as terminated.
func (c *Client) Describe(ctx context.Context, instanceID string) (*types.InstanceSnapshot, error) {
	id, err := strconv.Atoi(instanceID)
	if err != nil {
		return nil, fmt.Errorf("invalid droplet ID %q: %w", instanceID, err)
	}

	droplet, _, err := c.client.Droplets.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return &types.InstanceSnapshot{
				InstanceID: instanceID,
				StateName:  "deleted",
				Condition:  types.ConditionTerminated,
			}, nil
		}
		return nil, fmt.Errorf("failed to get droplet: %w", err)
	}

	snap := &types.InstanceSnapshot{
		InstanceID: instanceID,
		StateName:  droplet.Status,
		Condition:  classifyStatus(droplet.Status),
	}
	if ip, err := droplet.PublicIPv4(); err == nil {
		snap.PublicAddress = ip
	}
	if ip, err := droplet.PrivateIPv4(); err == nil {
		snap.PrivateAddress = ip
	}
	return snap, nil
}

// Terminate deletes the droplet
func (c *Client) Terminate(ctx context.Context, instanceID string) error {
	id, err := strconv.Atoi(instanceID)
	if err != nil {
		return fmt.Errorf("invalid droplet ID %q: %w", instanceID, err)
	}

	if _, err := c.client.Droplets.Delete(ctx, id); err != nil {
		if isNotFound(err) {
			c.logger.Info("Droplet already deleted", zap.String("droplet_id", instanceID))
			return nil
		}
		return fmt.Errorf("failed to delete droplet: %w", err)
	}
	c.logger.Info("Droplet deleted", zap.String("droplet_id", instanceID))
	return nil
}

func isNotFound(err error) bool {
	var errResp *godo.ErrorResponse
	return errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode == http.StatusNotFound
}

func classifyStatus(status string) types.InstanceCondition {
	switch status {
	case "active":
		return types.ConditionReady
	case "off", "archive":
		return types.ConditionTerminated
	default:
		return types.ConditionPending
	}
}
