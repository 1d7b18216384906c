package poultry

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/flockbook/internal/config"
	"github.com/mamadbah2/flockbook/internal/domain/models"
)

// Client exposes the farm backend operations the daily entry flow consumes.
type Client interface {
	GetLot(ctx context.Context, lotID string) (*models.Lot, error)
	ListLots(ctx context.Context, status string) ([]models.Lot, error)
	GetDailyEntry(ctx context.Context, lotID, date string) (*models.DailyEntryResponse, error)
	CreateDailyEntry(ctx context.Context, lotID string, body map[string]any, version string) (*models.EntryWriteResponse, error)
	UpdateDailyEntry(ctx context.Context, lotID string, body map[string]any, version string) (*models.EntryWriteResponse, error)
	ListFeedStocks(ctx context.Context, buildingID string) ([]models.FeedStock, error)
}

// APIClient is a resty-backed implementation of Client.
type APIClient struct {
	httpClient *resty.Client
}

// NewClient builds a backend client using the provided configuration values.
// Only reads are retried; a retried write could record the same entry twice.
func NewClient(cfg config.BackendConfig) *APIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		AddRetryCondition(retryReads)

	if cfg.Token != "" {
		restyClient.SetAuthToken(cfg.Token)
	}

	return &APIClient{httpClient: restyClient}
}

func retryReads(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
		return false
	}
	return err != nil || resp.StatusCode() >= http.StatusInternalServerError
}

// GetLot fetches a single lot.
func (c *APIClient) GetLot(ctx context.Context, lotID string) (*models.Lot, error) {
	result := new(models.Lot)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("lotId", lotID).
		SetResult(result).
		ForceContentType("application/json").
		Get("/lots/{lotId}")
	if err := checkResponse("get lot", resp, err); err != nil {
		return nil, err
	}
	return result, nil
}

// ListLots returns lots filtered by status; an empty status lists all.
func (c *APIClient) ListLots(ctx context.Context, status string) ([]models.Lot, error) {
	var result []models.Lot
	req := c.httpClient.R().
		SetContext(ctx).
		SetResult(&result).
		ForceContentType("application/json")
	if status != "" {
		req.SetQueryParam("status", status)
	}
	resp, err := req.Get("/lots")
	if err := checkResponse("list lots", resp, err); err != nil {
		return nil, err
	}
	return result, nil
}

// GetDailyEntry reads the record stored for a lot on a date.
func (c *APIClient) GetDailyEntry(ctx context.Context, lotID, date string) (*models.DailyEntryResponse, error) {
	result := new(models.DailyEntryResponse)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"lotId": lotID, "date": date}).
		SetResult(result).
		ForceContentType("application/json").
		Get("/lots/{lotId}/daily-entry/{date}")
	if err := checkResponse("get daily entry", resp, err); err != nil {
		return nil, err
	}
	if version := resp.Header().Get("ETag"); result.Version == "" && version != "" {
		result.Version = strings.Trim(version, `"`)
	}
	return result, nil
}

// CreateDailyEntry records a new daily entry.
func (c *APIClient) CreateDailyEntry(ctx context.Context, lotID string, body map[string]any, version string) (*models.EntryWriteResponse, error) {
	return c.writeDailyEntry(ctx, http.MethodPost, "create daily entry", lotID, body, version)
}

// UpdateDailyEntry overwrites values of an existing daily entry.
func (c *APIClient) UpdateDailyEntry(ctx context.Context, lotID string, body map[string]any, version string) (*models.EntryWriteResponse, error) {
	return c.writeDailyEntry(ctx, http.MethodPut, "update daily entry", lotID, body, version)
}

func (c *APIClient) writeDailyEntry(ctx context.Context, method, op, lotID string, body map[string]any, version string) (*models.EntryWriteResponse, error) {
	result := new(models.EntryWriteResponse)
	req := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("lotId", lotID).
		SetBody(body).
		SetResult(result).
		ForceContentType("application/json")
	if version != "" {
		req.SetHeader("If-Match", `"`+version+`"`)
	}

	resp, err := req.Execute(method, "/lots/{lotId}/daily-entry")
	if err := checkResponse(op, resp, err); err != nil {
		return nil, err
	}
	return result, nil
}

// ListFeedStocks lists feed stocks, optionally restricted to a building.
func (c *APIClient) ListFeedStocks(ctx context.Context, buildingID string) ([]models.FeedStock, error) {
	var result []models.FeedStock
	req := c.httpClient.R().
		SetContext(ctx).
		SetResult(&result).
		ForceContentType("application/json")
	if buildingID != "" {
		req.SetQueryParam("building_id", buildingID)
	}
	resp, err := req.Get("/feed/stock/all")
	if err := checkResponse("list feed stocks", resp, err); err != nil {
		return nil, err
	}
	return result, nil
}

// checkResponse separates transport failures, which are wrapped, from
// backend rejections, which become *APIError.
func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		if resp != nil && resp.StatusCode() >= http.StatusBadRequest {
			return parseAPIError(resp.StatusCode(), resp.Body())
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return parseAPIError(resp.StatusCode(), resp.Body())
	}
	return nil
}
