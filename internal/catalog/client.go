// Package catalog looks up products and their stock on the remote catalog API.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/utafrali/cartstore/internal/domain"
	"github.com/utafrali/cartstore/pkg/httpclient"
)

const serviceName = "catalog"

// product is the catalog representation; it has no amount.
type product struct {
	ID    int     `json:"id"`
	Title string  `json:"title"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
}

// Client reads GET /stock/{id} and GET /products/{id} from the catalog API.
type Client struct {
	http    httpclient.Getter
	baseURL string
}

// NewClient creates a catalog client rooted at baseURL.
func NewClient(getter httpclient.Getter, baseURL string) *Client {
	return &Client{
		http:    getter,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Stock returns the available quantity for productID. A missing stock record
// is an error matching apperrors.ErrNotFound.
func (c *Client) Stock(ctx context.Context, productID int) (domain.Stock, error) {
	var s domain.Stock
	if err := c.get(ctx, "/stock/"+strconv.Itoa(productID), &s); err != nil {
		return domain.Stock{}, fmt.Errorf("get stock %d: %w", productID, err)
	}
	return s, nil
}

// Product returns the catalog details for productID with Amount left at zero.
// An unknown product is an error matching apperrors.ErrNotFound.
func (c *Client) Product(ctx context.Context, productID int) (domain.Product, error) {
	var p product
	if err := c.get(ctx, "/products/"+strconv.Itoa(productID), &p); err != nil {
		return domain.Product{}, fmt.Errorf("get product %d: %w", productID, err)
	}
	return domain.Product{
		ID:    p.ID,
		Title: p.Title,
		Price: p.Price,
		Image: p.Image,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, dst any) error {
	resp, err := c.http.Get(ctx, c.baseURL+path)
	if err != nil {
		return fmt.Errorf("call %s: %w", serviceName, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, serviceName)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
