// Package utility talks to the external utility-provider API. It is used
// to verify account details before a tracker is linked to them.
package utility

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"meterhub-backend/application/ports"
	apperrors "meterhub-backend/pkg/errors"
)

// Client verifies utility accounts against the provider gateway.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a utility gateway client. With no base URL configured,
// verification is skipped and reported as successful.
func NewClient(baseURL string, logger *zap.Logger) ports.UtilityClient {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// VerifyAccount checks that the account number is known to the provider.
func (c *Client) VerifyAccount(ctx context.Context, provider, accountNumber string) (bool, error) {
	if c.baseURL == "" {
		c.logger.Debug("Utility gateway not configured, skipping verification")
		return true, nil
	}

	endpoint := fmt.Sprintf("%s/providers/%s/accounts/%s",
		c.baseURL, url.PathEscape(provider), url.PathEscape(accountNumber))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to build utility request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, apperrors.NewExternalError("utility gateway", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body struct {
			Valid bool `json:"valid"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false, apperrors.NewExternalError("utility gateway", err)
		}
		return body.Valid, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, apperrors.NewExternalError("utility gateway", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
}
