package vault

import (
	"context"
	"fmt"
	"sync"

	"gamma-trading-bot/config"

	"github.com/hashicorp/vault/api"
)

// ProviderCredentials is the provider secret material stored in Vault
type ProviderCredentials struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
}

// Client wraps the HashiCorp Vault client for provider credential lookup.
// When Vault is disabled the client serves values from its local cache,
// seeded from config, so development setups work without a Vault server.
type Client struct {
	client *api.Client
	config config.VaultConfig

	mu    sync.RWMutex
	cache map[string]*ProviderCredentials
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config: cfg,
			cache:  make(map[string]*ProviderCredentials),
		}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{CACert: cfg.CACert}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
		cache:  make(map[string]*ProviderCredentials),
	}, nil
}

// SeedCredentials primes the local cache, used when Vault is disabled and the
// API key comes straight from config or the environment.
func (c *Client) SeedCredentials(provider string, creds ProviderCredentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[provider] = &creds
}

// GetCredentials retrieves provider credentials from Vault, falling back to
// the local cache.
func (c *Client) GetCredentials(ctx context.Context, provider string) (*ProviderCredentials, error) {
	c.mu.RLock()
	if cached, ok := c.cache[provider]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return nil, fmt.Errorf("no credentials for provider %q", provider)
	}

	path := fmt.Sprintf("%s/data/providers/%s", c.config.MountPath, provider)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider secret: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secret at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected secret format at %s", path)
	}

	creds := &ProviderCredentials{}
	if v, ok := data["api_key"].(string); ok {
		creds.APIKey = v
	}
	if v, ok := data["base_url"].(string); ok {
		creds.BaseURL = v
	}
	if creds.APIKey == "" {
		return nil, fmt.Errorf("secret at %s has no api_key", path)
	}

	c.mu.Lock()
	c.cache[provider] = creds
	c.mu.Unlock()

	return creds, nil
}

// DeleteCredentials removes cached credentials, forcing a re-read from Vault
func (c *Client) DeleteCredentials(provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, provider)
}
