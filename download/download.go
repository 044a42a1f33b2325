// Package download fetches the assets located by search results. The location
// url of a product selects the collaborator by scheme; the {base} placeholder
// of templated locations is resolved against the provider download endpoint.
package download

import (
	"context"
	"fmt"
	neturl "net/url"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/airbusgeo/eocatalog/common"
	"github.com/airbusgeo/eocatalog/service"
	"github.com/airbusgeo/eocatalog/service/log"
)

// downloadAttempts bounds the retries of one fetch on temporary failures
const downloadAttempts = 3

// ErrProductNotFound is an error returned when a product is not found or available
type ErrProductNotFound struct {
	Product string
}

func (e ErrProductNotFound) Error() string {
	return fmt.Sprintf("Product not found or unavailable: %s", e.Product)
}

// Downloader fetches one remote asset to a local file or directory
type Downloader interface {
	Name() string
	Fetch(ctx context.Context, url, localPath string) error
}

// Manager dispatches product downloads to the collaborator handling the
// location scheme
type Manager struct {
	// Base resolves the {base} placeholder of templated locations
	Base        string
	downloaders map[string]Downloader
}

// NewManager creates an empty manager (collaborators are added with Register)
func NewManager(base string) *Manager {
	return &Manager{Base: base, downloaders: map[string]Downloader{}}
}

// Register adds a collaborator for a url scheme
func (m *Manager) Register(scheme string, d Downloader) {
	m.downloaders[scheme] = d
}

// ResolveURL returns the concrete location of the product
func ResolveURL(product *common.Product, base string) string {
	return service.FormatBrackets(product.LocationURLTemplate, map[string]string{"base": strings.TrimRight(base, "/")})
}

// Download fetches the product asset into localDir. Temporary fetch failures
// (timeouts, throttling, truncated transfers) are retried with an exponential
// backoff; fatal and permanent failures are returned at once.
func (m *Manager) Download(ctx context.Context, product *common.Product, localDir string) error {
	url := ResolveURL(product, m.Base)
	if url == "" {
		return ErrProductNotFound{Product: product.ProviderID()}
	}
	parsed, err := neturl.Parse(url)
	if err != nil {
		return fmt.Errorf("Manager.Download: %w", err)
	}
	downloader, ok := m.downloaders[parsed.Scheme]
	if !ok {
		return fmt.Errorf("Manager.Download: no downloader for scheme %q", parsed.Scheme)
	}
	localName := product.LocalFilename
	if localName == "" {
		localName = service.Slugify(product.ProviderID())
	}
	localPath := filepath.Join(localDir, localName)

	for i := 0; i < downloadAttempts; i++ {
		time.Sleep(((1 << i) - 1) * time.Second)
		if err = downloader.Fetch(ctx, url, localPath); err == nil {
			return nil
		}
		if service.Fatal(err) || !service.Temporary(err) {
			break
		}
		log.Logger(ctx).Warn("download failed, retrying",
			zap.String("url", url), zap.Error(err))
	}
	return fmt.Errorf("Manager.Download[%s].%w", downloader.Name(), err)
}
