// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luxfi/settlement/amm"
	"github.com/luxfi/settlement/bridge"
	"github.com/luxfi/settlement/events"
	"github.com/luxfi/settlement/token"
)

var (
	apiOwner   = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	apiCustody = common.HexToAddress("0x0000000000000000000000000000000000D0D0D0")
	apiAsset0  = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	apiAsset1  = common.HexToAddress("0x00000000000000000000000000000000000000BB")
	apiLP      = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func newTestServer(t *testing.T) (*Server, *amm.Exchange, common.Hash) {
	t.Helper()

	vault := token.NewVault()
	recorder := events.NewRecorder()

	gateway, err := bridge.NewGateway(bridge.GatewayConfig{
		Owner:      apiOwner,
		Custody:    apiCustody,
		FeeSink:    apiOwner,
		Validators: []common.Address{apiOwner},
		Threshold:  1,
		Ledger:     vault,
		Emitter:    recorder,
	})
	require.NoError(t, err)

	exchange, err := amm.NewExchange(amm.ExchangeConfig{
		Owner:   apiOwner,
		Custody: apiCustody,
		Ledger:  vault,
		Emitter: recorder,
	})
	require.NoError(t, err)

	pool, err := exchange.CreatePool(apiOwner, apiAsset0, apiAsset1, 30)
	require.NoError(t, err)
	for _, asset := range []common.Address{apiAsset0, apiAsset1} {
		require.NoError(t, vault.Mint(asset, apiLP, big.NewInt(1_000_000)))
		require.NoError(t, vault.Approve(asset, apiLP, apiCustody, big.NewInt(1_000_000)))
	}
	_, err = exchange.AddLiquidity(apiLP, pool.ID, big.NewInt(1_000_000), big.NewInt(1_000_000), nil)
	require.NoError(t, err)

	return NewServer(gateway, exchange, recorder, zap.NewNop()), exchange, pool.ID
}

func get(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	var body map[string]any
	if w.Body.Len() > 0 && json.Unmarshal(w.Body.Bytes(), &body) != nil {
		body = nil
	}
	return w, body
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w, body := get(t, srv, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", body["status"])
}

func TestPoolEndpoint(t *testing.T) {
	srv, _, poolID := newTestServer(t)

	w, body := get(t, srv, "/amm/pools/"+poolID.Hex())
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "0.3", body["feeRatePercent"])

	w, _ = get(t, srv, "/amm/pools/"+common.HexToHash("0xff").Hex())
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestQuoteEndpoint(t *testing.T) {
	srv, _, poolID := newTestServer(t)

	w, body := get(t, srv, "/amm/quote?pool="+poolID.Hex()+"&tokenIn="+apiAsset0.Hex()+"&amountIn=1000")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "996", body["amountOut"])

	w, _ = get(t, srv, "/amm/quote?pool="+poolID.Hex()+"&tokenIn="+apiAsset0.Hex()+"&amountIn=bogus")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidatorsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w, body := get(t, srv, "/bridge/validators")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), body["threshold"])
	require.Len(t, body["validators"], 1)
}

func TestSequenceEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w, body := get(t, srv, "/bridge/accounts/"+apiLP.Hex()+"/sequence")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(0), body["sequence"])
}

func TestPositionEndpoint(t *testing.T) {
	srv, _, poolID := newTestServer(t)

	w, _ := get(t, srv, "/amm/pools/"+poolID.Hex()+"/positions/"+apiLP.Hex())
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = get(t, srv, "/amm/pools/"+poolID.Hex()+"/positions/"+apiOwner.Hex())
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestEventsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/events?type=pool_created", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var evs []events.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &evs))
	require.Len(t, evs, 1)
	require.Equal(t, events.TypePoolCreated, evs[0].Type)
}

func TestDepositNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w, body := get(t, srv, "/bridge/deposits/"+common.HexToHash("0x01").Hex())
	require.Equal(t, http.StatusNotFound, w.Code)
	require.NotEmpty(t, body["error"])
}
