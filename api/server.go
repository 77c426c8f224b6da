// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/luxfi/geth/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/luxfi/settlement/amm"
	"github.com/luxfi/settlement/bridge"
	"github.com/luxfi/settlement/events"
)

// Server exposes the read-only query surface over HTTP. It never mutates
// settlement state; transactions enter through the host's submission path,
// not here.
type Server struct {
	gateway  *bridge.Gateway
	exchange *amm.Exchange
	recorder *events.Recorder
	log      *zap.Logger
}

// NewServer wires the query handlers to the two cores.
func NewServer(gateway *bridge.Gateway, exchange *amm.Exchange, recorder *events.Recorder, log *zap.Logger) *Server {
	return &Server{gateway: gateway, exchange: exchange, recorder: recorder, log: log}
}

// Router returns the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/bridge/deposits/{id}", s.handleDeposit).Methods(http.MethodGet)
	r.HandleFunc("/bridge/withdrawals/{id}", s.handleWithdrawal).Methods(http.MethodGet)
	r.HandleFunc("/bridge/validators", s.handleValidators).Methods(http.MethodGet)
	r.HandleFunc("/bridge/accounts/{addr}/sequence", s.handleSequence).Methods(http.MethodGet)

	r.HandleFunc("/amm/pools/{id}", s.handlePool).Methods(http.MethodGet)
	r.HandleFunc("/amm/pools/{id}/positions/{addr}", s.handlePosition).Methods(http.MethodGet)
	r.HandleFunc("/amm/quote", s.handleQuote).Methods(http.MethodGet)

	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	id := common.HexToHash(mux.Vars(r)["id"])
	rec, err := s.gateway.GetDeposit(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleWithdrawal(w http.ResponseWriter, r *http.Request) {
	id := common.HexToHash(mux.Vars(r)["id"])
	rec, err := s.gateway.GetWithdrawal(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleValidators(w http.ResponseWriter, _ *http.Request) {
	validators, threshold := s.gateway.ValidatorSet()
	out := make([]string, 0, len(validators))
	for _, v := range validators {
		out = append(out, v.Hex())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"validators": out,
		"threshold":  threshold,
	})
}

func (s *Server) handleSequence(w http.ResponseWriter, r *http.Request) {
	addr := common.HexToAddress(mux.Vars(r)["addr"])
	writeJSON(w, http.StatusOK, map[string]any{
		"account":  addr.Hex(),
		"sequence": s.gateway.Sequence(addr),
	})
}

// poolView renders a pool with human-readable fee rates alongside the raw
// basis points.
type poolView struct {
	*amm.Pool
	FeeRatePercent string `json:"feeRatePercent"`
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	id := common.HexToHash(mux.Vars(r)["id"])
	pool, err := s.exchange.GetPool(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	percent := decimal.NewFromInt(int64(pool.FeeRateBps)).Div(decimal.NewFromInt(100))
	writeJSON(w, http.StatusOK, poolView{Pool: pool, FeeRatePercent: percent.String()})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := common.HexToHash(vars["id"])
	addr := common.HexToAddress(vars["addr"])
	pos, err := s.exchange.GetPosition(id, addr)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	poolID := common.HexToHash(q.Get("pool"))
	tokenIn := common.HexToAddress(q.Get("tokenIn"))
	amountIn, ok := new(big.Int).SetString(q.Get("amountIn"), 10)
	if !ok {
		writeError(w, http.StatusBadRequest, errBadAmount)
		return
	}
	out, err := s.exchange.Quote(poolID, tokenIn, amountIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"pool":      poolID.Hex(),
		"tokenIn":   tokenIn.Hex(),
		"amountIn":  amountIn.String(),
		"amountOut": out.String(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeJSON(w, http.StatusOK, []events.Event{})
		return
	}
	if t := r.URL.Query().Get("type"); t != "" {
		writeJSON(w, http.StatusOK, s.recorder.Filter(events.Type(t)))
		return
	}
	writeJSON(w, http.StatusOK, s.recorder.Events())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
