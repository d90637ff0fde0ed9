// Package snowcover is the outbound HTTP client for the optional
// snow-cover archive collaborator of spec.md §6, mirroring the shape of
// internal/infrastructure/geocoder.
package snowcover

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

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

func New(cfg *config.SnowCoverConfig, logger *zap.Logger) repository.SnowCoverArchive {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    cfg.BaseURL,
		logger:     logger,
	}
}

type snowCoverResponse struct {
	DaysOfSnowCover int     `json:"daysOfSnowCover"`
	MeanSnowCoverCM float64 `json:"meanSnowCoverCm"`
}

func (c *Client) Lookup(ctx context.Context, pixelID string) (*domain.SnowCoverSample, error) {
	u := fmt.Sprintf("%s/pixels/%s", c.baseURL, url.PathEscape(pixelID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apperrors.ExternalService("failed to build snow cover request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.ExternalService("snow cover request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.ExternalService(fmt.Sprintf("snow cover archive returned status %d", resp.StatusCode), nil)
	}

	var body snowCoverResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperrors.ExternalService("failed to decode snow cover response", err)
	}

	return &domain.SnowCoverSample{
		PixelID:         pixelID,
		DaysOfSnowCover: body.DaysOfSnowCover,
		MeanSnowCoverCM: body.MeanSnowCoverCM,
	}, nil
}
