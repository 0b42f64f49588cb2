package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/mercaflow/intake-api/internal/models"
	appErrors "github.com/mercaflow/intake-api/pkg/errors"
)

// CatalogClient talks to the external product catalog and vendor registry.
// The engine never stores catalog data beyond the attribute snapshot taken
// at queue item creation.
type CatalogClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewCatalogClient constructs the client.
func NewCatalogClient(baseURL string, timeout time.Duration, logger *zap.Logger) *CatalogClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &CatalogClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Product fetches the catalog record for a product.
func (c *CatalogClient) Product(ctx context.Context, productID string) (*models.ProductInfo, error) {
	endpoint := fmt.Sprintf("%s/products/%s", c.baseURL, url.PathEscape(productID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, appErrors.Clone(appErrors.ErrValidation, "product does not exist in the catalog")
	default:
		return nil, fmt.Errorf("catalog returned status %d for product %s", resp.StatusCode, productID)
	}

	var product models.ProductInfo
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return nil, fmt.Errorf("decode catalog product: %w", err)
	}
	return &product, nil
}

// ValidateVendor checks that a vendor exists and supplies the given product.
func (c *CatalogClient) ValidateVendor(ctx context.Context, vendorID, productID string) error {
	endpoint := fmt.Sprintf("%s/vendors/%s/products/%s", c.baseURL, url.PathEscape(vendorID), url.PathEscape(productID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build vendor request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("vendor request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return appErrors.Clone(appErrors.ErrValidation, "vendor does not exist or does not supply this product")
	default:
		return fmt.Errorf("catalog returned status %d for vendor %s", resp.StatusCode, vendorID)
	}
}
