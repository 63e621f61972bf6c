package shop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"qualichat/pkg/config"
)

// SearchClient queries the external catalog search collaborator.
type SearchClient struct {
	baseURL      string
	defaultLimit int
	httpClient   *http.Client
	log          *slog.Logger
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// rawProduct is the upstream result shape before normalization. The upstream
// API sends either an images list or a single image_url.
type rawProduct struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Brand            string            `json:"brand"`
	Price            Money             `json:"price"`
	Categories       []string          `json:"categories"`
	Images           []string          `json:"images"`
	ImageURL         string            `json:"image_url"`
	ShortDescription string            `json:"short_description"`
	Tags             []string          `json:"tags"`
	Keywords         []string          `json:"keywords"`
	SKU              string            `json:"sku"`
	Source           string            `json:"source"`
	Meta             map[string]string `json:"meta"`
}

type searchResponse struct {
	Results []rawProduct `json:"results"`
	Count   int          `json:"count"`
}

// NewSearchClient builds a catalog search client with a bounded request timeout.
func NewSearchClient(cfg config.ShopConfig, log *slog.Logger) *SearchClient {
	if log == nil {
		log = slog.Default()
	}

	return &SearchClient{
		baseURL:      strings.TrimRight(cfg.SearchBaseURL, "/"),
		defaultLimit: cfg.DefaultSearchLimit,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.SearchTimeoutSeconds) * time.Second,
		},
		log: log.With("component", "shop.search"),
	}
}

// Search returns normalized products for a query. An empty query is not an
// error: it returns an empty slice without calling the collaborator.
func (c *SearchClient) Search(ctx context.Context, query string, limit int) ([]Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Product{}, nil
	}
	if limit <= 0 {
		limit = c.defaultLimit
	}

	body, err := json.Marshal(searchRequest{Query: query, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	startedAt := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		c.log.Debug("search request failed", "query", query, "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		c.log.Debug("search request failed", "query", query, "status", response.StatusCode)
		return nil, fmt.Errorf("search returned status %d", response.StatusCode)
	}

	var decoded searchResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	products := make([]Product, 0, len(decoded.Results))
	for _, raw := range decoded.Results {
		products = append(products, normalizeProduct(raw))
	}
	c.log.Debug("search request completed", "query", query, "results", len(products), "duration_ms", time.Since(startedAt).Milliseconds())

	return products, nil
}

func normalizeProduct(raw rawProduct) Product {
	product := Product{
		ID:               raw.ID,
		Name:             raw.Name,
		Type:             ProductType,
		Brand:            raw.Brand,
		Price:            raw.Price,
		Categories:       raw.Categories,
		Images:           raw.Images,
		ShortDescription: raw.ShortDescription,
		Tags:             raw.Tags,
		Keywords:         raw.Keywords,
		SKU:              raw.SKU,
		Meta:             raw.Meta,
	}

	if product.Price.Amount < 0 {
		product.Price.Amount = 0
	}
	if product.Price.Currency == "" {
		product.Price.Currency = "EUR"
	}
	if product.Categories == nil {
		product.Categories = []string{}
	}
	if len(product.Images) == 0 && raw.ImageURL != "" {
		product.Images = []string{raw.ImageURL}
	}
	if product.Images == nil {
		product.Images = []string{}
	}
	if product.Meta == nil {
		product.Meta = map[string]string{}
	}
	if _, ok := product.Meta["source"]; !ok {
		source := raw.Source
		if source == "" {
			source = "Qualiwo"
		}
		product.Meta["source"] = source
	}

	return product
}
