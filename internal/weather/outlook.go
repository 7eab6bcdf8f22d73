package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jwillz7667/CropLens/internal/cache"
	"github.com/jwillz7667/CropLens/internal/utils"
)

type HourlyData struct {
	Time          []string  `json:"time"`
	Precipitation []float64 `json:"precipitation"`
}

type DailyData struct {
	Time           []string  `json:"time"`
	TemperatureMax []float64 `json:"temperature_2m_max"`
}

type ForecastResponse struct {
	Hourly HourlyData `json:"hourly"`
	Daily  DailyData  `json:"daily"`
}

type Outlook struct {
	RainfallNext3Days float64 `json:"rainfallNext3Days"`
	AvgTempNext3Days  float64 `json:"avgTempNext3Days"`
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Cache      cache.CacheService[Outlook]
	Retries    int
	RetryDelay time.Duration
	now        func() time.Time
}

func NewClient(baseURL string, c cache.CacheService[Outlook]) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Cache:      c,
		Retries:    3,
		RetryDelay: 2 * time.Second,
		now:        time.Now,
	}
}

// Summarize reduces a 3-day forecast: precipitation summed over the first 72
// hours, daily maxima averaged over at most 3 days.
func Summarize(resp ForecastResponse) Outlook {
	var out Outlook
	hourly := resp.Hourly.Precipitation
	if len(hourly) > 72 {
		hourly = hourly[:72]
	}
	for _, p := range hourly {
		out.RainfallNext3Days += p
	}

	temps := resp.Daily.TemperatureMax
	if len(temps) > 3 {
		temps = temps[:3]
	}
	if len(temps) > 0 {
		var sum float64
		for _, t := range temps {
			sum += t
		}
		out.AvgTempNext3Days = sum / float64(len(temps))
	}
	return out
}

func (c *Client) FetchOutlook(ctx context.Context, lat, lng float64) (Outlook, error) {
	day := c.now().UTC().Format("2006-01-02")
	var key string
	if c.Cache != nil {
		key = c.Cache.GenerateKey(fmt.Sprintf("%.4f", lat), fmt.Sprintf("%.4f", lng), day)
		if cached, ok := c.Cache.Get(key); ok {
			return cached, nil
		}
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lng, 'f', -1, 64))
	params.Set("hourly", "precipitation")
	params.Set("daily", "temperature_2m_max")
	params.Set("forecast_days", "3")
	params.Set("timezone", "UTC")

	resp, err := c.fetch(ctx, c.BaseURL+"?"+params.Encode())
	if err != nil {
		return Outlook{}, err
	}
	outlook := Summarize(resp)

	if c.Cache != nil {
		if err := c.Cache.Set(key, outlook); err != nil {
			utils.GetLogger().WarnContext(ctx, "failed to cache weather outlook", slog.Any("error", err))
		}
	}
	return outlook, nil
}

func (c *Client) fetch(ctx context.Context, target string) (ForecastResponse, error) {
	retries := max(c.Retries, 1)
	logger := utils.GetLogger()

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ForecastResponse{}, ctx.Err()
			case <-time.After(c.RetryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return ForecastResponse{}, err
		}
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			lastErr = err
			logger.WarnContext(ctx, "weather request failed, retrying", slog.Int("attempt", attempt+1), slog.Int("retries", retries), slog.Any("error", err))
			continue
		}

		var data ForecastResponse
		if resp.StatusCode == http.StatusOK {
			err = json.NewDecoder(resp.Body).Decode(&data)
			resp.Body.Close()
			if err != nil {
				return ForecastResponse{}, fmt.Errorf("failed to parse weather response: %w", err)
			}
			return data, nil
		}
		resp.Body.Close()

		lastErr = fmt.Errorf("weather service returned %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return ForecastResponse{}, lastErr
		}
		logger.WarnContext(ctx, "weather request failed, retrying", slog.Int("attempt", attempt+1), slog.Int("retries", retries), slog.Int("status", resp.StatusCode))
	}

	return ForecastResponse{}, fmt.Errorf("failed to fetch weather outlook after %d attempts: %w", retries, lastErr)
}
