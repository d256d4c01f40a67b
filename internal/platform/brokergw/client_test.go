package brokergw

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerodte/execd/internal/domain"
)

func TestAccount_ParsesSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/iserver/account/acct1/summary", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"cash_available": 1000.0, "buying_power": 2000.0, "net_liquidation": 5000.0})
	}))
	defer srv.Close()

	c := New(srv.URL, "acct1", "key", time.Second)
	acct, err := c.Account(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1000.0, acct.CashAvailable)
	assert.Equal(t, 5000.0, acct.NetLiquidation)
}

func TestSearchContract_ExactMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"conid": "C1", "symbol": "SPY", "strike": 605.0, "right": "C", "month": "241209"},
			{"conid": "C2", "symbol": "SPY", "strike": 610.0, "right": "C", "month": "241209"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "acct1", "key", time.Second)
	result, err := c.SearchContract(t.Context(), "SPY", "2024-12-09", 605, domain.DirectionCall)
	require.NoError(t, err)
	assert.Equal(t, "C1", result.ContractID)
}

func TestSearchContract_NoMatchesReturnsContractNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer srv.Close()

	c := New(srv.URL, "acct1", "key", time.Second)
	_, err := c.SearchContract(t.Context(), "SPY", "2024-12-09", 605, domain.DirectionCall)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrContractNotFound)
}

func TestSearchContract_MultipleMatchesReturnsContractNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"conid": "C1", "symbol": "SPY", "strike": 605.0, "right": "C", "month": "241209"},
			{"conid": "C2", "symbol": "SPY", "strike": 605.0, "right": "C", "month": "241209"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "acct1", "key", time.Second)
	_, err := c.SearchContract(t.Context(), "SPY", "2024-12-09", 605, domain.DirectionCall)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrContractNotFound)
}

func TestPlaceBracket_ThreeLinkedOrders(t *testing.T) {
	var orders []placeOrderReq
	counter := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req placeOrderReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		orders = append(orders, req)
		counter++
		_ = json.NewEncoder(w).Encode(map[string]string{
			"order_id":     "ord-" + req.ClientOrderID,
			"order_status": "submitted",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "acct1", "key", time.Second)
	resp, err := c.PlaceBracket(t.Context(), domain.BracketOrderRequest{
		ContractID: "C1", OCCSymbol: "SPY   241209C00605000", Side: domain.DirectionBuy,
		Quantity: 1, EntryLimit: 1.77, TakeProfit: 2.50, StopLoss: 1.20, ClientOrderID: "co-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, counter)
	assert.Equal(t, "ord-co-1", resp.ParentOrderID)
	assert.Equal(t, "LMT", orders[0].OrderType)
	assert.Equal(t, "LMT", orders[1].OrderType)
	assert.Equal(t, "STP", orders[2].OrderType)
	assert.Equal(t, resp.ParentOrderID, orders[1].ParentID)
	assert.Equal(t, resp.ParentOrderID, orders[2].ParentID)
}

func TestPlaceBracket_RejectedSurfacesBrokerRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"insufficient buying power"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "acct1", "key", time.Second)
	_, err := c.PlaceBracket(t.Context(), domain.BracketOrderRequest{
		ContractID: "C1", Side: domain.DirectionBuy, Quantity: 1,
		EntryLimit: 1.77, TakeProfit: 2.50, StopLoss: 1.20, ClientOrderID: "co-1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBrokerRejection)
}
