// Package jellyfin triggers library refreshes on the media player server
// after a run has moved folders around.
package jellyfin

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	jellyfin "github.com/sj14/jellyfin-go/api"
	"github.com/tidyarr/tidyarr/config"
	"github.com/tidyarr/tidyarr/version"
)

// Client provides a high-level interface for interacting with Jellyfin.
type Client struct {
	jellyfin *jellyfin.APIClient
}

// New creates a new Jellyfin client with the given configuration.
func New(cfg *config.JellyfinConfig) *Client {
	return &Client{
		jellyfin: newJellyfinClient(cfg),
	}
}

// newJellyfinClient creates a new low-level Jellyfin API client.
func newJellyfinClient(cfg *config.JellyfinConfig) *jellyfin.APIClient {
	clientConfig := jellyfin.NewConfiguration()
	clientConfig.Servers = jellyfin.ServerConfigurations{
		{
			URL:         cfg.URL,
			Description: "Jellyfin server",
		},
	}
	clientConfig.DefaultHeader = map[string]string{"Authorization": fmt.Sprintf(`MediaBrowser Token="%s"`, cfg.APIKey)}
	clientConfig.UserAgent = fmt.Sprintf("tidyarr/%s", version.Version)
	return jellyfin.NewAPIClient(clientConfig)
}

// RefreshLibraries asks Jellyfin to rescan all libraries. Fire-and-forget:
// callers log failures but never fail a run over them.
func (c *Client) RefreshLibraries(ctx context.Context) error {
	resp, err := c.jellyfin.LibraryAPI.RefreshLibrary(ctx).Execute()
	if err != nil {
		return fmt.Errorf("failed to trigger Jellyfin library refresh: %w", err)
	}
	defer resp.Body.Close() //nolint: errcheck

	log.Info("Triggered Jellyfin library refresh")
	return nil
}
