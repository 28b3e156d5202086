package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// OANDA v3 REST endpoints.
const (
	PracticeURL = "https://api-fxpractice.oanda.com"
	LiveURL     = "https://api-fxtrade.oanda.com"
)

// OandaAccount queries account NAV and open positions from the OANDA v3
// REST API. It implements both BalanceSource and PositionSource.
type OandaAccount struct {
	baseURL    string
	accountID  string
	token      string
	httpClient *http.Client
}

// NewOandaAccount creates a client against the given base URL (PracticeURL
// or LiveURL).
func NewOandaAccount(baseURL, accountID, token string) *OandaAccount {
	return &OandaAccount{
		baseURL:   baseURL,
		accountID: accountID,
		token:     token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type accountSummaryResponse struct {
	Account struct {
		NAV     string `json:"NAV"`
		Balance string `json:"balance"`
	} `json:"account"`
}

// Balance fetches the account NAV, falling back to the balance field when
// NAV is absent.
func (c *OandaAccount) Balance(ctx context.Context) (float64, error) {
	if c.token == "" || c.accountID == "" {
		return 0, fmt.Errorf("missing OANDA credentials")
	}

	var resp accountSummaryResponse
	if err := c.get(ctx, fmt.Sprintf("/v3/accounts/%s/summary", c.accountID), &resp); err != nil {
		return 0, err
	}

	raw := resp.Account.NAV
	if raw == "" {
		raw = resp.Account.Balance
	}
	bal, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse balance %q: %w", raw, err)
	}
	if bal <= 0 {
		return 0, fmt.Errorf("invalid balance %v from OANDA", bal)
	}
	return bal, nil
}

type openPositionsResponse struct {
	Positions []struct {
		Instrument string `json:"instrument"`
		Long       struct {
			Units string `json:"units"`
		} `json:"long"`
		Short struct {
			Units string `json:"units"`
		} `json:"short"`
	} `json:"positions"`
}

// OpenPositions fetches the open-position census per instrument.
func (c *OandaAccount) OpenPositions(ctx context.Context) (PositionCounts, error) {
	if c.token == "" || c.accountID == "" {
		return PositionCounts{}, fmt.Errorf("missing OANDA credentials")
	}

	var resp openPositionsResponse
	if err := c.get(ctx, fmt.Sprintf("/v3/accounts/%s/openPositions", c.accountID), &resp); err != nil {
		return PositionCounts{}, err
	}

	counts := PositionCounts{ByInstrument: make(map[string]int)}
	for _, p := range resp.Positions {
		n := 0
		if units, err := strconv.ParseFloat(p.Long.Units, 64); err == nil && units != 0 {
			n++
		}
		if units, err := strconv.ParseFloat(p.Short.Units, 64); err == nil && units != 0 {
			n++
		}
		if n > 0 {
			counts.ByInstrument[p.Instrument] += n
			counts.Total += n
		}
	}
	return counts, nil
}

func (c *OandaAccount) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("OANDA API error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
