// Package upstream fetches transaction records from the inventory REST API.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"billcard/internal/models"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 64 << 20

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transaction API returned %d: %s", e.StatusCode, e.Body)
}

// Source is anything that can supply raw transactions for a subinventory and part.
type Source interface {
	FetchTransactions(ctx context.Context, subinventory, part string) ([]models.RawTransaction, error)
}

// Client talks to the transaction API over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient returns a Client for baseURL. token, when set, is sent as a Bearer credential.
func NewClient(baseURL, token string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "upstream").Logger(),
	}
}

// FetchTransactions GETs the records for subinventory, narrowed to part when it is non-empty.
// Cancelling ctx aborts the request.
func (c *Client) FetchTransactions(ctx context.Context, subinventory, part string) ([]models.RawTransaction, error) {
	q := url.Values{}
	if subinventory != "" {
		q.Set("subinventory", subinventory)
	}
	if part != "" {
		q.Set("part_number", part)
	}
	endpoint := c.baseURL + "/transactions"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build transaction request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch transactions: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read transaction response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}

	records, err := DecodeTransactions(body)
	if err != nil {
		return nil, err
	}
	c.log.Debug().
		Str("subinventory", subinventory).
		Str("part", part).
		Int("records", len(records)).
		Dur("elapsed", time.Since(start)).
		Msg("fetched transactions")
	return records, nil
}

// DecodeTransactions accepts either a bare JSON array or an object with a "data" array.
func DecodeTransactions(body []byte) ([]models.RawTransaction, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return []models.RawTransaction{}, nil
	}
	var records []models.RawTransaction
	if body[0] == '[' {
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, fmt.Errorf("decode transactions: %w", err)
		}
	} else {
		var envelope struct {
			Data []models.RawTransaction `json:"data"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("decode transactions: %w", err)
		}
		records = envelope.Data
	}
	if records == nil {
		records = []models.RawTransaction{}
	}
	return records, nil
}
