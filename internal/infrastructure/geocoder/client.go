// Package geocoder is the outbound HTTP client for the reverse-geocoding
// collaborator of spec.md §6, shaped like the teacher's deleted
// internal/infrastructure/mapbox client: a struct holding a *http.Client
// with a fixed timeout and a base URL, one method per remote call,
// non-2xx responses folded into an ExternalServiceError.
package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/russellporter/openskidata-processor/internal/config"
	"github.com/russellporter/openskidata-processor/internal/domain"
	"github.com/russellporter/openskidata-processor/internal/domain/repository"
	apperrors "github.com/russellporter/openskidata-processor/internal/pkg/errors"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

func New(cfg *config.GeocoderConfig, logger *zap.Logger) repository.Geocoder {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    cfg.BaseURL,
		logger:     logger,
	}
}

type geocodeResponse struct {
	Country  string `json:"country"`
	Region   string `json:"region"`
	Locality string `json:"locality"`
}

func (c *Client) Geocode(ctx context.Context, lon, lat float64) (*domain.GeocodeResult, error) {
	u := fmt.Sprintf("%s/reverse?%s", c.baseURL, url.Values{
		"lon": {strconv.FormatFloat(lon, 'f', -1, 64)},
		"lat": {strconv.FormatFloat(lat, 'f', -1, 64)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apperrors.ExternalService("failed to build geocode request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.ExternalService("geocode request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.ExternalService(fmt.Sprintf("geocoder returned status %d", resp.StatusCode), nil)
	}

	var body geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperrors.ExternalService("failed to decode geocode response", err)
	}

	return &domain.GeocodeResult{
		Country:  body.Country,
		Region:   body.Region,
		Locality: body.Locality,
		Point:    [2]float64{lon, lat},
	}, nil
}
