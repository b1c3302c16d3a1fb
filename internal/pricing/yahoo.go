package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// YahooProvider reads the regular market price from the Yahoo Finance v8
// chart endpoint.
type YahooProvider struct {
	baseURL string
	client  *http.Client
}

func NewYahooProvider(baseURL string, timeout time.Duration) *YahooProvider {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &YahooProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *YahooProvider) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return decimal.Zero, ErrNoPrice
	}

	url := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1m&range=1d", p.baseURL, symbol)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("User-Agent", "brokercore/1.0")

	response, err := p.client.Do(request)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch price: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNotFound {
		return decimal.Zero, ErrNoPrice
	}
	if response.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price endpoint returned %d", response.StatusCode)
	}

	var raw struct {
		Chart struct {
			Result []struct {
				Meta struct {
					RegularMarketPrice float64 `json:"regularMarketPrice"`
				} `json:"meta"`
			} `json:"result"`
			Error any `json:"error"`
		} `json:"chart"`
	}
	if err := json.NewDecoder(response.Body).Decode(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("decode price response: %w", err)
	}

	if len(raw.Chart.Result) == 0 || raw.Chart.Result[0].Meta.RegularMarketPrice <= 0 {
		return decimal.Zero, ErrNoPrice
	}

	return decimal.NewFromFloat(raw.Chart.Result[0].Meta.RegularMarketPrice), nil
}
