package wyvern

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/HappyFeet07/WyvernV3Fork/chain"
	"github.com/HappyFeet07/WyvernV3Fork/exchange"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
)

// APIClient handles HTTP requests to a wyvernd API
type APIClient struct {
	host   string
	client *http.Client
}

// NewAPIClient creates a new API client for host, e.g. http://localhost:8080
func NewAPIClient(host string) *APIClient {
	return &APIClient{
		host: strings.TrimRight(host, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithHTTPClient replaces the underlying HTTP client
func (c *APIClient) WithHTTPClient(client *http.Client) *APIClient {
	c.client = client
	return c
}

// doRequest performs an HTTP request and decodes a JSON answer into result
func (c *APIClient) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return decodeJSONResponse(resp, result)
}

// decodeJSONResponse reads the response body, checks HTTP status, and decodes JSON
func decodeJSONResponse(resp *http.Response, result any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var body struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(bodyBytes, &body) == nil && body.Message != "" {
			apiErr.Code = body.Code
			apiErr.Message = body.Message
		} else if apiErr.Message = string(bodyBytes); apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return apiErr
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, result); err != nil {
		bodyStr := string(bodyBytes)
		if len(bodyStr) > 200 {
			bodyStr = bodyStr[:200] + "..."
		}
		return fmt.Errorf("failed to decode JSON response: %w (body: %s)", err, bodyStr)
	}
	return nil
}

// GetInfo describes the deployment
func (c *APIClient) GetInfo(ctx context.Context) (*InfoResponse, error) {
	var result InfoResponse
	if err := c.doRequest(ctx, http.MethodGet, "/v1/info", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// HashOrder returns the order hash and the digest its maker signs
func (c *APIClient) HashOrder(ctx context.Context, order *chain.Order) (*HashResponse, error) {
	var result HashResponse
	if err := c.doRequest(ctx, http.MethodPost, "/v1/orders/hash", OrderToJSON(order), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ValidateOrder runs the parameter and authorization checks for a signed order
func (c *APIClient) ValidateOrder(ctx context.Context, sender common.Address, signed *chain.SignedOrder) (*ValidateResponse, error) {
	req := ValidateRequest{
		Order:     OrderToJSON(signed.Order),
		Signature: hexutil.Encode(signed.Signature),
		Sender:    sender.Hex(),
	}
	var result ValidateResponse
	if err := c.doRequest(ctx, http.MethodPost, "/v1/orders/validate", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetFill returns maker's fill record for hash
func (c *APIClient) GetFill(ctx context.Context, maker common.Address, hash common.Hash) (*FillResponse, error) {
	endpoint := fmt.Sprintf("/v1/orders/%s/fill?maker=%s", hash.Hex(), maker.Hex())
	var result FillResponse
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetApproved returns maker's approval record for hash
func (c *APIClient) GetApproved(ctx context.Context, maker common.Address, hash common.Hash) (*ApprovedResponse, error) {
	endpoint := fmt.Sprintf("/v1/orders/%s/approved?maker=%s", hash.Hex(), maker.Hex())
	var result ApprovedResponse
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Match submits m for settlement by the daemon's operator
func (c *APIClient) Match(ctx context.Context, m *exchange.Match) (*TransactionResult, error) {
	var result TransactionResult
	if err := c.doRequest(ctx, http.MethodPost, "/v1/match", MatchToRequest(m), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetProxy looks up user's proxy
func (c *APIClient) GetProxy(ctx context.Context, user common.Address) (*ProxyResponse, error) {
	var result ProxyResponse
	if err := c.doRequest(ctx, http.MethodGet, "/v1/registry/proxies/"+user.Hex(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetGrant looks up contract's authentication record
func (c *APIClient) GetGrant(ctx context.Context, contract common.Address) (*GrantResponse, error) {
	var result GrantResponse
	if err := c.doRequest(ctx, http.MethodGet, "/v1/registry/grants/"+contract.Hex(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetEvents returns journaled events, newest first. Empty eventType matches all.
func (c *APIClient) GetEvents(ctx context.Context, eventType string, limit int) (*EventsResponse, error) {
	params := url.Values{}
	if eventType != "" {
		params.Set("type", eventType)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	endpoint := "/v1/events"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var result EventsResponse
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmitAction signs action with key and runs it on the daemon as key's
// account. Exchange, Expiry and Nonce are filled in from /v1/info when unset.
func (c *APIClient) SubmitAction(ctx context.Context, key *ecdsa.PrivateKey, action Action) (*ActionResult, error) {
	info, err := c.GetInfo(ctx)
	if err != nil {
		return nil, err
	}
	if action.Exchange == "" {
		action.Exchange = info.Exchange
	}
	if action.Expiry == 0 {
		action.Expiry = info.Time + uint64(DefaultActionLifetime/time.Second)
	}
	if action.Nonce == "" {
		action.Nonce = uuid.NewString()
	}

	req, err := SignAction(key, info.PersonalPrefix, action)
	if err != nil {
		return nil, err
	}
	return c.ExecuteAction(ctx, req)
}

// ExecuteAction submits an action that is already signed
func (c *APIClient) ExecuteAction(ctx context.Context, req ActionRequest) (*ActionResult, error) {
	var result ActionResult
	if err := c.doRequest(ctx, http.MethodPost, "/v1/actions", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RegisterProxy creates a proxy for key's account
func (c *APIClient) RegisterProxy(ctx context.Context, key *ecdsa.PrivateKey) (common.Address, error) {
	return c.registerProxy(ctx, key, Action{Type: ActionRegisterProxy})
}

// RegisterProxyFor creates a proxy for user, requested by key's account
func (c *APIClient) RegisterProxyFor(ctx context.Context, key *ecdsa.PrivateKey, user common.Address) (common.Address, error) {
	return c.registerProxy(ctx, key, Action{Type: ActionRegisterProxyFor, User: user.Hex()})
}

// RegisterProxyOverride replaces the proxy of key's account
func (c *APIClient) RegisterProxyOverride(ctx context.Context, key *ecdsa.PrivateKey) (common.Address, error) {
	return c.registerProxy(ctx, key, Action{Type: ActionRegisterProxyOverride})
}

func (c *APIClient) registerProxy(ctx context.Context, key *ecdsa.PrivateKey, action Action) (common.Address, error) {
	result, err := c.SubmitAction(ctx, key, action)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(result.Proxy), nil
}

// SetRevoke toggles revocation on the proxy of key's account
func (c *APIClient) SetRevoke(ctx context.Context, key *ecdsa.PrivateKey, revoke bool) (*TransactionResult, error) {
	return c.submitTransaction(ctx, key, Action{Type: ActionSetRevoke, Revoke: revoke})
}

// ApproveOrder pre-approves an order; key must belong to its maker
func (c *APIClient) ApproveOrder(ctx context.Context, key *ecdsa.PrivateKey, order *chain.Order, orderbookInclusionDesired bool) (*TransactionResult, error) {
	j := OrderToJSON(order)
	return c.submitTransaction(ctx, key, Action{
		Type:                      ActionApproveOrder,
		Order:                     &j,
		OrderbookInclusionDesired: orderbookInclusionDesired,
	})
}

// ApproveOrderHash pre-approves hash for key's account
func (c *APIClient) ApproveOrderHash(ctx context.Context, key *ecdsa.PrivateKey, hash common.Hash) (*TransactionResult, error) {
	return c.submitTransaction(ctx, key, Action{Type: ActionApproveOrderHash, Hash: hash.Hex()})
}

// SetOrderFill rewrites the fill record of key's account for hash
func (c *APIClient) SetOrderFill(ctx context.Context, key *ecdsa.PrivateKey, hash common.Hash, fill *big.Int) (*TransactionResult, error) {
	if fill == nil {
		return nil, invalidParam("fill is required")
	}
	return c.submitTransaction(ctx, key, Action{Type: ActionSetOrderFill, Hash: hash.Hex(), Fill: fill.String()})
}

// CancelOrder fills order to its maximum; key must belong to its maker
func (c *APIClient) CancelOrder(ctx context.Context, key *ecdsa.PrivateKey, order *chain.Order) (*TransactionResult, error) {
	j := OrderToJSON(order)
	return c.submitTransaction(ctx, key, Action{Type: ActionCancelOrder, Order: &j})
}

// StartGrantAuthentication opens a grant for contract; key must own the registry
func (c *APIClient) StartGrantAuthentication(ctx context.Context, key *ecdsa.PrivateKey, contract common.Address) (*TransactionResult, error) {
	return c.submitTransaction(ctx, key, Action{Type: ActionStartGrantAuthentication, Contract: contract.Hex()})
}

// EndGrantAuthentication completes a matured grant for contract
func (c *APIClient) EndGrantAuthentication(ctx context.Context, key *ecdsa.PrivateKey, contract common.Address) (*TransactionResult, error) {
	return c.submitTransaction(ctx, key, Action{Type: ActionEndGrantAuthentication, Contract: contract.Hex()})
}

// RevokeAuthentication withdraws contract's authority over proxies
func (c *APIClient) RevokeAuthentication(ctx context.Context, key *ecdsa.PrivateKey, contract common.Address) (*TransactionResult, error) {
	return c.submitTransaction(ctx, key, Action{Type: ActionRevokeAuthentication, Contract: contract.Hex()})
}

func (c *APIClient) submitTransaction(ctx context.Context, key *ecdsa.PrivateKey, action Action) (*TransactionResult, error) {
	result, err := c.SubmitAction(ctx, key, action)
	if err != nil {
		return nil, err
	}
	return result.Transaction, nil
}
