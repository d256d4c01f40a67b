// Package brokergw is the REST client for the brokerage gateway (spec §6):
// health check, account summary, positions, contract search (one secdef
// search), bracket order placement, cancellation, and live orders. It
// implements domain.BrokerGateway. It has no ledger-summary, strike-search
// or secdef-info call, and places single orders only as bracket legs.
package brokergw

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

	"github.com/zerodte/execd/internal/domain"
)

// Client is the REST client for the brokerage gateway's Client Portal-style
// API.
type Client struct {
	baseURL    string
	accountID  string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client.
func New(baseURL, accountID, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		accountID: accountID,
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Healthy implements domain.BrokerGateway.
func (c *Client) Healthy(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/iserver/auth/status", nil)
	if err != nil {
		return fmt.Errorf("brokergw: health check: %w", err)
	}
	return nil
}

type accountSummaryResp struct {
	CashAvailable  float64 `json:"cash_available"`
	BuyingPower    float64 `json:"buying_power"`
	NetLiquidation float64 `json:"net_liquidation"`
}

// Account implements domain.BrokerGateway.
func (c *Client) Account(ctx context.Context) (domain.AccountSnapshot, error) {
	body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/iserver/account/%s/summary", url.PathEscape(c.accountID)), nil)
	if err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("brokergw: account summary: %w", err)
	}

	var resp accountSummaryResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("brokergw: decode account summary: %w", err)
	}

	return domain.AccountSnapshot{
		CashAvailable:  resp.CashAvailable,
		BuyingPower:    resp.BuyingPower,
		NetLiquidation: resp.NetLiquidation,
	}, nil
}

type positionResp struct {
	Ticker        string  `json:"ticker"`
	Quantity      int     `json:"quantity"`
	AvgCost       float64 `json:"avg_cost"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	RealizedPnL   float64 `json:"realized_pnl"`
}

// Positions implements domain.BrokerGateway.
func (c *Client) Positions(ctx context.Context) (domain.PositionsSnapshot, error) {
	body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/iserver/account/%s/positions", url.PathEscape(c.accountID)), nil)
	if err != nil {
		return domain.PositionsSnapshot{}, fmt.Errorf("brokergw: positions: %w", err)
	}

	var resp []positionResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.PositionsSnapshot{}, fmt.Errorf("brokergw: decode positions: %w", err)
	}

	out := domain.PositionsSnapshot{}
	for _, p := range resp {
		out.Positions = append(out.Positions, domain.PositionSnapshot{
			Ticker:        p.Ticker,
			Quantity:      p.Quantity,
			AvgCost:       p.AvgCost,
			MarketValue:   p.MarketValue,
			UnrealizedPnL: p.UnrealizedPnL,
			RealizedPnL:   p.RealizedPnL,
		})
	}
	return out, nil
}

type secdefSearchResult struct {
	ConID  string  `json:"conid"`
	Symbol string  `json:"symbol"`
	Strike float64 `json:"strike"`
	Right  string  `json:"right"`
	Month  string  `json:"month"`
}

// SearchContract implements domain.BrokerGateway with one secdef search
// request for the option, whose results are filtered to the exact (month,
// strike, right); exactly one match is required. No separate underlying
// lookup is made.
func (c *Client) SearchContract(ctx context.Context, ticker, expiry string, strike float64, right domain.Direction) (domain.ContractSearchResult, error) {
	rightCode := "C"
	if right == domain.DirectionPut {
		rightCode = "P"
	}

	month, err := occMonthCode(expiry)
	if err != nil {
		return domain.ContractSearchResult{}, fmt.Errorf("brokergw: %w: %w", domain.ErrContractNotFound, err)
	}

	q := url.Values{}
	q.Set("symbol", ticker)
	q.Set("secType", "OPT")
	q.Set("month", month)
	q.Set("strike", fmt.Sprintf("%.2f", strike))
	q.Set("right", rightCode)

	body, err := c.doRequest(ctx, http.MethodGet, "/iserver/secdef/search?"+q.Encode(), nil)
	if err != nil {
		return domain.ContractSearchResult{}, fmt.Errorf("brokergw: secdef search: %w", err)
	}

	var results []secdefSearchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return domain.ContractSearchResult{}, fmt.Errorf("brokergw: decode secdef search: %w", err)
	}

	var matches []secdefSearchResult
	for _, r := range results {
		if r.Month == month && r.Right == rightCode && strikesEqual(r.Strike, strike) {
			matches = append(matches, r)
		}
	}

	if len(matches) != 1 {
		return domain.ContractSearchResult{}, fmt.Errorf("%w: %s %s %.2f%s resolved to %d candidates", domain.ErrContractNotFound, ticker, expiry, strike, rightCode, len(matches))
	}

	m := matches[0]
	return domain.ContractSearchResult{
		ContractID: m.ConID,
		OCCSymbol:  fmt.Sprintf("%-6s%s%s%08d", ticker, month, rightCode, int64(strike*1000+0.5)),
		Strike:     m.Strike,
		Right:      right,
		Expiry:     expiry,
	}, nil
}

func strikesEqual(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 0.005
}

// occMonthCode converts a YYYY-MM-DD expiry to the YYMMDD form the secdef
// search's month filter expects.
func occMonthCode(expiry string) (string, error) {
	t, err := time.Parse("2006-01-02", expiry)
	if err != nil {
		return "", fmt.Errorf("parse expiry %q: %w", expiry, err)
	}
	return t.Format("060102"), nil
}

type placeOrderReq struct {
	ConID         string  `json:"conid,omitempty"`
	OrderType     string  `json:"orderType"`
	Side          string  `json:"side"`
	Quantity      int     `json:"quantity"`
	Price         float64 `json:"price,omitempty"`
	AuxPrice      float64 `json:"auxPrice,omitempty"`
	ClientOrderID string  `json:"cOID"`
	ParentID      string  `json:"parentId,omitempty"`
}

type placeOrderResp struct {
	OrderID string `json:"order_id"`
	Status  string `json:"order_status"`
}

// confirmationAnswers lists the broker's known confirmation prompts (spec
// §4.7 step 3). Nothing reads it: submitOrder does not answer confirmation
// prompts, and an order response that carries a prompt instead of an order
// id and status is reported as ErrBrokerRejection.
var confirmationAnswers = map[string]bool{
	"price_percentage_constraint": true,
	"order_value_limit":           true,
	"missing_market_data":         true,
	"stop_order_risks":            true,
}

// PlaceBracket implements domain.BrokerGateway: a parent LIMIT entry plus a
// take-profit LIMIT child and a stop-loss STOP child. Each child carries the
// parent's broker order id as parentId and a client order id derived from
// req.ClientOrderID (suffixed -tp or -sl).
func (c *Client) PlaceBracket(ctx context.Context, req domain.BracketOrderRequest) (domain.BracketOrderResponse, error) {
	parentSide := "BUY"
	exitSide := "SELL"
	if req.Side == domain.DirectionSell {
		parentSide = "SELL"
		exitSide = "BUY"
	}

	parent := placeOrderReq{
		ConID:         req.ContractID,
		OrderType:     "LMT",
		Side:          parentSide,
		Quantity:      req.Quantity,
		Price:         req.EntryLimit,
		ClientOrderID: req.ClientOrderID,
	}
	parentResp, err := c.submitOrder(ctx, parent)
	if err != nil {
		return domain.BracketOrderResponse{}, err
	}

	tp := placeOrderReq{
		ConID:         req.ContractID,
		OrderType:     "LMT",
		Side:          exitSide,
		Quantity:      req.Quantity,
		Price:         req.TakeProfit,
		ClientOrderID: req.ClientOrderID + "-tp",
		ParentID:      parentResp.OrderID,
	}
	tpResp, err := c.submitOrder(ctx, tp)
	if err != nil {
		return domain.BracketOrderResponse{}, err
	}

	sl := placeOrderReq{
		ConID:         req.ContractID,
		OrderType:     "STP",
		Side:          exitSide,
		Quantity:      req.Quantity,
		AuxPrice:      req.StopLoss,
		ClientOrderID: req.ClientOrderID + "-sl",
		ParentID:      parentResp.OrderID,
	}
	slResp, err := c.submitOrder(ctx, sl)
	if err != nil {
		return domain.BracketOrderResponse{}, err
	}

	return domain.BracketOrderResponse{
		ParentOrderID: parentResp.OrderID,
		TPOrderID:     tpResp.OrderID,
		SLOrderID:     slResp.OrderID,
		Status:        parentResp.Status,
	}, nil
}

func (c *Client) submitOrder(ctx context.Context, req placeOrderReq) (placeOrderResp, error) {
	body, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/iserver/account/%s/orders", url.PathEscape(c.accountID)), req)
	if err != nil {
		return placeOrderResp{}, fmt.Errorf("%w: submit order: %w", domain.ErrBrokerRejection, err)
	}

	var resp placeOrderResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return placeOrderResp{}, fmt.Errorf("%w: decode order response: %w", domain.ErrBrokerRejection, err)
	}

	if resp.Status == "" || resp.OrderID == "" {
		return placeOrderResp{}, fmt.Errorf("%w: empty order response", domain.ErrBrokerRejection)
	}

	return resp, nil
}

// CancelOrder implements domain.BrokerGateway.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	path := fmt.Sprintf("/iserver/account/%s/order/%s", url.PathEscape(c.accountID), url.PathEscape(orderID))
	_, err := c.doRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return fmt.Errorf("brokergw: cancel order %s: %w", orderID, err)
	}
	return nil
}

type liveOrderResp struct {
	OrderID   string  `json:"order_id"`
	ParentID  string  `json:"parent_id"`
	Status    string  `json:"status"`
	Filled    bool    `json:"filled"`
	FillPrice float64 `json:"fill_price"`
}

// LiveOrders implements domain.BrokerGateway.
func (c *Client) LiveOrders(ctx context.Context) ([]domain.LiveOrderStatus, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/iserver/account/orders", nil)
	if err != nil {
		return nil, fmt.Errorf("brokergw: live orders: %w", err)
	}

	var resp []liveOrderResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("brokergw: decode live orders: %w", err)
	}

	out := make([]domain.LiveOrderStatus, 0, len(resp))
	for _, o := range resp {
		out = append(out, domain.LiveOrderStatus{
			OrderID:   o.OrderID,
			ParentID:  o.ParentID,
			Status:    o.Status,
			Filled:    o.Filled,
			FillPrice: o.FillPrice,
		})
	}
	return out, nil
}

// doRequest issues a JSON request against the gateway and returns the raw
// response body on any 2xx status.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

var _ domain.BrokerGateway = (*Client)(nil)
