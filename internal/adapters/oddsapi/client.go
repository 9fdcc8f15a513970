// Package oddsapi obtiene precios de casas desde un endpoint estilo The Odds API.
package oddsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/sharpline/internal/domain"
)

const (
	defaultBase    = "https://api.the-odds-api.com"
	defaultSport   = "baseball_mlb"
	defaultRegions = "us"

	// La cuota del plan se mide por request; 2/s deja margen de sobra.
	defaultRatePerSec = 2

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Config contiene los parámetros del endpoint de odds.
type Config struct {
	BaseURL    string
	APIKey     string
	Sport      string
	Regions    []string
	Markets    []string
	Bookmakers []string
	RatePerSec float64
	Timeout    time.Duration
}

// Client es el HTTP client de odds con rate limiting y retries.
// Implementa ports.OddsProvider.
type Client struct {
	http    *http.Client
	cfg     Config
	limiter *rate.Limiter
	wait    time.Duration
}

// NewClient crea un Client. Los campos vacíos usan valores de producción.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBase
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Sport == "" {
		cfg.Sport = defaultSport
	}
	if len(cfg.Regions) == 0 {
		cfg.Regions = []string{defaultRegions}
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 2),
		wait:    baseRetryWait,
	}
}

// FetchOdds trae los eventos del deporte configurado y los convierte en líneas.
func (c *Client) FetchOdds(ctx context.Context) ([]domain.MarketLine, error) {
	var events []event
	if err := c.get(ctx, c.oddsURL(), &events); err != nil {
		return nil, fmt.Errorf("oddsapi.FetchOdds: %w", err)
	}
	lines := mapEvents(events)
	slog.Debug("odds fetched", "events", len(events), "lines", len(lines))
	return lines, nil
}

func (c *Client) oddsURL() string {
	q := url.Values{}
	q.Set("apiKey", c.cfg.APIKey)
	q.Set("regions", strings.Join(c.cfg.Regions, ","))
	if len(c.cfg.Markets) > 0 {
		q.Set("markets", strings.Join(c.cfg.Markets, ","))
	}
	if len(c.cfg.Bookmakers) > 0 {
		q.Set("bookmakers", strings.Join(c.cfg.Bookmakers, ","))
	}
	q.Set("oddsFormat", "american")
	return fmt.Sprintf("%s/v4/sports/%s/odds?%s", c.cfg.BaseURL, url.PathEscape(c.cfg.Sport), q.Encode())
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, url string, out any) error {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial.
// 429 y 5xx se reintentan; el resto de 4xx falla sin reintento.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by odds API", "attempt", attempt+1)
			if attempt == maxRetries {
				return fmt.Errorf("rate limited after %d retries", maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		if remaining := resp.Header.Get("x-requests-remaining"); remaining != "" {
			slog.Debug("odds API quota", "remaining", remaining)
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.wait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
