// Package recommend talks to the remote fish recommendation service.
package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrInvalidTank  = errors.New("tank dimensions must be positive numbers")
	ErrFishNotFound = errors.New("fish not found")
)

// maxErrorBody caps how much of a failed response is kept for the error
const maxErrorBody = 4 << 10

// APIError is a non-2xx answer from the remote service
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Body)
}

// HTTPDoer is the subset of *http.Client the client needs
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Tank dimensions in centimetres
type Tank struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Validate requires every dimension to be finite and above zero
func (t Tank) Validate() error {
	for _, v := range []float64{t.Length, t.Width, t.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return ErrInvalidTank
		}
	}
	return nil
}

// VolumeLiters converts cubic centimetres to litres
func (t Tank) VolumeLiters() float64 {
	return t.Length * t.Width * t.Height / 1000
}

// Fish is one recommended species
type Fish struct {
	Name        string  `json:"Name"`
	EstQuantity float64 `json:"Est. Quantity"`
	MaxSizeCM   float64 `json:"Max Size (cm)"`
	TankSize    float64 `json:"Tank Size"`
	Temp        float64 `json:"Temp"`
}

// FishInfo is the species sheet returned by the lookup endpoint
type FishInfo struct {
	Name               string `json:"Fish Name"`
	Aggression         string `json:"Aggression"`
	Availability       string `json:"Availability"`
	Behavior           string `json:"Behavior"`
	BreedingDifficulty string `json:"Breeding Difficulty"`
	Difficulty         string `json:"Difficulty"`
	MaxSize            string `json:"Max Size"`
	MinimumTankSize    string `json:"Minimum Tank Size"`
	Temperature        string `json:"Temperature"`
	PHRange            string `json:"pH Range"`
}

type recommendRequest struct {
	Tank
	Temperature float64 `json:"temperature"`
}

type lookupRequest struct {
	Name string `json:"name"`
}

// Client calls the recommendation and lookup endpoints
type Client struct {
	recommendURL string
	lookupURL    string
	http         HTTPDoer
	logger       *zap.Logger
}

// NewClient builds a client with its own timeout-bound *http.Client
func NewClient(recommendURL, lookupURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return NewClientWithDoer(recommendURL, lookupURL, &http.Client{Timeout: timeout}, logger)
}

// NewClientWithDoer lets callers supply the transport
func NewClientWithDoer(recommendURL, lookupURL string, doer HTTPDoer, logger *zap.Logger) *Client {
	return &Client{
		recommendURL: recommendURL,
		lookupURL:    lookupURL,
		http:         doer,
		logger:       logger.Named("recommend"),
	}
}

// Recommend asks which species fit the tank at the given water temperature
func (c *Client) Recommend(ctx context.Context, tank Tank, temperature float64) ([]Fish, error) {
	if err := tank.Validate(); err != nil {
		return nil, err
	}

	var fish []Fish
	if err := c.post(ctx, c.recommendURL, recommendRequest{Tank: tank, Temperature: temperature}, &fish); err != nil {
		return nil, fmt.Errorf("failed to get recommendations: %w", err)
	}

	c.logger.Debug("recommendations received",
		zap.Float64("volume_liters", tank.VolumeLiters()),
		zap.Int("count", len(fish)))
	return fish, nil
}

// LookupFish fetches the species sheet for name
func (c *Client) LookupFish(ctx context.Context, name string) (FishInfo, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return FishInfo{}, errors.New("fish name is required")
	}

	var info FishInfo
	err := c.post(ctx, c.lookupURL, lookupRequest{Name: name}, &info)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return FishInfo{}, fmt.Errorf("%w: %q", ErrFishNotFound, name)
	}
	if err != nil {
		return FishInfo{}, fmt.Errorf("failed to look up fish: %w", err)
	}
	return info, nil
}

func (c *Client) post(ctx context.Context, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("recommendation service request failed", zap.String("url", url), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: errorText(raw)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorText prefers the JSON "message" field the service puts on errors
func errorText(raw []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(raw))
}
