// Package blockchain talks to the external asset gateway over JSON-RPC.
// Contract logic lives entirely behind the gateway; this client only mints
// and queries assets and surfaces failures as distinguishable External
// errors.
package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"meterhub-backend/application/ports"
	apperrors "meterhub-backend/pkg/errors"
)

// Client is a JSON-RPC asset gateway client.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *zap.Logger
}

// NewClient creates a gateway client. An empty endpoint yields a client
// whose calls fail with an External error, which keeps local development
// working without a gateway.
func NewClient(endpoint string, logger *zap.Logger) ports.AssetClient {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.Code, e.Message)
}

// MintAsset mints an asset for an approved project and returns its id.
func (c *Client) MintAsset(ctx context.Context, projectID, wallet string) (string, error) {
	var result struct {
		AssetID string `json:"assetId"`
	}
	if err := c.call(ctx, "asset_mint", map[string]string{
		"projectId": projectID,
		"wallet":    wallet,
	}, &result); err != nil {
		return "", err
	}

	c.logger.Info("Asset minted",
		zap.String("projectID", projectID),
		zap.String("assetID", result.AssetID),
	)
	return result.AssetID, nil
}

// GetAsset fetches the on-chain state of an asset.
func (c *Client) GetAsset(ctx context.Context, assetID string) (map[string]any, error) {
	var result map[string]any
	if err := c.call(ctx, "asset_get", map[string]string{"assetId": assetID}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	if c.endpoint == "" {
		return apperrors.NewExternalError("asset gateway", fmt.Errorf("gateway endpoint not configured"))
	}

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal gateway request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return apperrors.Wrap(err, "failed to build gateway request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.NewExternalError("asset gateway", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.NewExternalError("asset gateway", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return apperrors.NewExternalError("asset gateway", err)
	}
	if rpcResp.Error != nil {
		return apperrors.NewExternalError("asset gateway", rpcResp.Error)
	}
	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return apperrors.NewExternalError("asset gateway", err)
		}
	}
	return nil
}
