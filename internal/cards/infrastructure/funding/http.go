package funding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"argentum/internal/cards/domain"
	"argentum/internal/common/logging"
	"argentum/internal/common/types"
)

// HTTPGateway is a FundingGateway over the account and credit services.
// Debits and charges are POSTs that answer 200 when funded and 422 when the
// source declines; anything else counts as a failed attempt. Balance queries
// are plain GETs against the account service.
type HTTPGateway struct {
	client         *http.Client
	accountBaseURL string
	creditBaseURL  string
}

// NewHTTPGateway creates an HTTPGateway over the given service base URLs.
// The client's timeout bounds each funding call; callers additionally pass
// a request-scoped context.
func NewHTTPGateway(client *http.Client, accountBaseURL, creditBaseURL string) *HTTPGateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPGateway{
		client:         client,
		accountBaseURL: accountBaseURL,
		creditBaseURL:  creditBaseURL,
	}
}

type fundingRequest struct {
	Amount types.Money `json:"amount"`
}

// DebitAccount attempts to debit the amount from an account.
func (g *HTTPGateway) DebitAccount(ctx context.Context, accountID string, amount types.Money) (domain.FundingResult, error) {
	url := fmt.Sprintf("%s/accounts/%s/debit", g.accountBaseURL, accountID)
	return g.post(ctx, url, amount)
}

// ChargeCredit attempts to charge the amount to a credit line.
func (g *HTTPGateway) ChargeCredit(ctx context.Context, creditID string, amount types.Money) (domain.FundingResult, error) {
	url := fmt.Sprintf("%s/credits/%s/charge", g.creditBaseURL, creditID)
	return g.post(ctx, url, amount)
}

func (g *HTTPGateway) post(ctx context.Context, url string, amount types.Money) (domain.FundingResult, error) {
	body, err := json.Marshal(fundingRequest{Amount: amount})
	if err != nil {
		return domain.FundingResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.FundingResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if corrID := logging.CorrelationIDFromContext(ctx); !corrID.IsEmpty() {
		req.Header.Set("X-Correlation-Id", corrID.String())
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return domain.FundingResult{}, fmt.Errorf("funding call to %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return domain.FundingResult{Status: domain.FundingOK}, nil
	case http.StatusUnprocessableEntity:
		return domain.FundingResult{
			Status: domain.FundingInsufficient,
			Detail: readDetail(resp.Body),
		}, nil
	default:
		return domain.FundingResult{
			Status: domain.FundingFailed,
			Detail: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}, nil
	}
}

// AccountBalance returns the current balance of an account.
func (g *HTTPGateway) AccountBalance(ctx context.Context, accountID string) (types.Money, error) {
	url := fmt.Sprintf("%s/accounts/%s/balance", g.accountBaseURL, accountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.Money{}, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return types.Money{}, fmt.Errorf("balance call to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Money{}, fmt.Errorf("balance call to %s: unexpected status %d", url, resp.StatusCode)
	}

	var payload struct {
		Balance types.Money `json:"balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return types.Money{}, fmt.Errorf("decoding balance response: %w", err)
	}
	return payload.Balance, nil
}

func readDetail(body io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return ""
	}
	return payload.Error
}

var _ domain.FundingGateway = (*HTTPGateway)(nil)
