package sentinel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jwillz7667/CropLens/internal/utils"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultSize      = 512
	maxSize          = 2500
	resolutionMeters = 10
	lookback         = 7 * 24 * time.Hour
)

var ErrUnauthorized = errors.New("unauthorized access, check your client ID and secret")

const evalscript = `//VERSION=3
function setup() {
  return {
    input: [{ bands: ["B08", "B04"], units: "REFLECTANCE" }],
    output: {
      id: "default",
      bands: 2,
      sampleType: "FLOAT32",
    },
  };
}

function evaluatePixel(sample) {
  return [sample.B08, sample.B04];
}`

type SceneRequest struct {
	Geometry orb.Geometry
	From     time.Time
	To       time.Time
}

type Credentials struct {
	// ClientIDs and ClientSecrets may hold several comma separated pairs;
	// each pair is tried in turn.
	ClientIDs     string
	ClientSecrets string
	TokenURL      string
	ProcessURL    string
}

type Client struct {
	processURL string
	clients    []*http.Client
	Retries    int
	RetryDelay time.Duration
	now        func() time.Time
}

func NewClient(ctx context.Context, creds Credentials) (*Client, error) {
	if creds.ClientIDs == "" || creds.ClientSecrets == "" || creds.TokenURL == "" {
		return nil, fmt.Errorf("missing required Copernicus credentials: client ID, client secret or token URL")
	}
	ids := strings.Split(creds.ClientIDs, ",")
	secrets := strings.Split(creds.ClientSecrets, ",")
	if len(ids) != len(secrets) {
		return nil, fmt.Errorf("mismatched number of client IDs and secrets")
	}

	c := &Client{
		processURL: creds.ProcessURL,
		Retries:    3,
		RetryDelay: 5 * time.Second,
		now:        time.Now,
	}
	for i := range ids {
		config := &clientcredentials.Config{
			ClientID:     strings.TrimSpace(ids[i]),
			ClientSecret: strings.TrimSpace(secrets[i]),
			TokenURL:     creds.TokenURL,
		}
		c.clients = append(c.clients, config.Client(ctx))
	}
	return c, nil
}

func calculatePixels(distance float64, resolution float64) int {
	pixels := distance * (111_000.0 / resolution)
	if pixels < 1 {
		return 1
	}
	return min(int(pixels), maxSize)
}

// outputSize sizes the scene at 10 m per pixel from the geometry's bounding
// box, falling back to 512x512 for a degenerate box.
func outputSize(g orb.Geometry) (int, int) {
	bound := g.Bound()
	if bound.Max.X() <= bound.Min.X() || bound.Max.Y() <= bound.Min.Y() {
		return defaultSize, defaultSize
	}
	return calculatePixels(bound.Max.X()-bound.Min.X(), resolutionMeters),
		calculatePixels(bound.Max.Y()-bound.Min.Y(), resolutionMeters)
}

func (c *Client) buildPayload(req SceneRequest) ([]byte, error) {
	if req.Geometry == nil {
		return nil, errors.New("scene request needs a geometry")
	}
	to := req.To
	if to.IsZero() {
		to = c.now().UTC()
	}
	from := req.From
	if from.IsZero() {
		from = to.Add(-lookback)
	}
	width, height := outputSize(req.Geometry)

	payload := map[string]any{
		"input": map[string]any{
			"bounds": map[string]any{
				"geometry": geojson.NewGeometry(req.Geometry),
			},
			"data": []map[string]any{
				{
					"type": "sentinel-2-l2a",
					"dataFilter": map[string]any{
						"timeRange": map[string]string{
							"from": from.Format(time.RFC3339),
							"to":   to.Format(time.RFC3339),
						},
						"mosaickingOrder":  "mostRecent",
						"maxCloudCoverage": 40,
					},
				},
			},
		},
		"output": map[string]any{
			"width":  width,
			"height": height,
			"responses": []map[string]any{
				{
					"identifier": "default",
					"format":     map[string]string{"type": "image/tiff"},
				},
			},
		},
		"evalscript": evalscript,
	}
	return json.Marshal(payload)
}

// RequestScene fetches a two-band (B08, B04) float32 GeoTIFF for the geometry.
func (c *Client) RequestScene(ctx context.Context, req SceneRequest) ([]byte, error) {
	body, err := c.buildPayload(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for i, httpClient := range c.clients {
		scene, err := c.requestWithRetries(ctx, httpClient, body)
		if err == nil {
			return scene, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		utils.GetLogger().WarnContext(ctx, "sentinel credentials failed", slog.Int("credential", i), slog.Any("error", err))
	}
	return nil, lastErr
}

func (c *Client) requestWithRetries(ctx context.Context, httpClient *http.Client, body []byte) ([]byte, error) {
	retries := max(c.Retries, 1)
	logger := utils.GetLogger()

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.RetryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.processURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		response, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
			logger.WarnContext(ctx, "sentinel request failed", slog.Int("attempt", attempt), slog.Any("error", err))
			continue
		}

		content, readErr := io.ReadAll(response.Body)
		response.Body.Close()
		if response.StatusCode == http.StatusOK {
			if readErr != nil {
				return nil, fmt.Errorf("failed to read response body: %w", readErr)
			}
			return content, nil
		}
		if response.StatusCode == http.StatusForbidden || response.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}

		lastErr = fmt.Errorf("sentinel request failed: %d %s", response.StatusCode, strings.TrimSpace(string(content)))
		logger.WarnContext(ctx, "sentinel request failed", slog.Int("attempt", attempt), slog.Int("status", response.StatusCode))
	}

	return nil, fmt.Errorf("failed to request image after %d attempts: %w", retries, lastErr)
}
