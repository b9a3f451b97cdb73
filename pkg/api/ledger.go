package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/uhyunpark/fillguard/pkg/chain"
	"github.com/uhyunpark/fillguard/pkg/ledger"
	"github.com/uhyunpark/fillguard/pkg/numeric"
	"github.com/uhyunpark/fillguard/pkg/order"
)

// Settler executes fills and cancels against a simulated exchange.
type Settler interface {
	Fill(ctx context.Context, signed *order.SignedOrder, requested *big.Int, taker common.Address) (*chain.LogFill, error)
	FillOrKill(ctx context.Context, signed *order.SignedOrder, amount *big.Int, taker common.Address) (*chain.LogFill, error)
	Cancel(ctx context.Context, o *order.Order, amount *big.Int, sender common.Address) (*chain.LogCancel, error)
	Credit(token, owner common.Address, amount *big.Int) error
	Approve(token, owner, spender common.Address, amount *big.Int) error
}

func (s *Server) setupLedgerRoutes(api *mux.Router, settler Settler) {
	h := &ledgerHandlers{s: s, settler: settler}
	api.HandleFunc("/ledger/fill", h.fill).Methods("POST")
	api.HandleFunc("/ledger/cancel", h.cancel).Methods("POST")
	api.HandleFunc("/ledger/credit", h.credit).Methods("POST")
	api.HandleFunc("/ledger/approve", h.approve).Methods("POST")
}

type ledgerHandlers struct {
	s       *Server
	settler Settler
}

func (h *ledgerHandlers) fill(w http.ResponseWriter, r *http.Request) {
	var req SettleFillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	so, hash, err := decodeSigned(req.SignedOrder)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	amount, err := parseAmount("fillTakerTokenAmount", req.FillTakerTokenAmount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}
	taker, err := parseAddress("takerAddress", req.TakerAddress)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid taker", err.Error())
		return
	}

	var ev *chain.LogFill
	if req.FillOrKill {
		ev, err = h.settler.FillOrKill(r.Context(), so, amount, taker)
	} else {
		ev, err = h.settler.Fill(r.Context(), so, amount, taker)
	}
	if err != nil {
		h.s.respondRejection(w, err)
		return
	}
	h.s.logTransaction("LEDGER_FILL", map[string]interface{}{
		"order_hash": hash.Hex(),
		"taker":      taker.Hex(),
		"filled":     ev.FilledTakerTokenAmount.String(),
	})
	respondJSON(w, FillResponse{OrderHash: hash.Hex(), FillTakerTokenAmount: ev.FilledTakerTokenAmount.String()})
}

func (h *ledgerHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	var req SettleCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	o, hash, err := decodeOrder(req.Order)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	amount, err := parseAmount("cancelTakerTokenAmount", req.CancelTakerTokenAmount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}
	sender, err := parseAddress("senderAddress", req.SenderAddress)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid sender", err.Error())
		return
	}

	ev, err := h.settler.Cancel(r.Context(), o, amount, sender)
	if err != nil {
		if errors.Is(err, ledger.ErrSenderNotMaker) {
			respondError(w, http.StatusForbidden, "forbidden", err.Error())
			return
		}
		h.s.respondRejection(w, err)
		return
	}
	respondJSON(w, CancelResponse{OrderHash: hash.Hex(), CancelTakerTokenAmount: ev.CancelledTakerTokenAmount.String()})
}

func (h *ledgerHandlers) credit(w http.ResponseWriter, r *http.Request) {
	var req CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid token", err.Error())
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid owner", err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}
	if err := h.settler.Credit(token, owner, amount); err != nil {
		respondError(w, http.StatusBadRequest, "credit failed", err.Error())
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (h *ledgerHandlers) approve(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid token", err.Error())
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid owner", err.Error())
		return
	}
	spender, err := parseAddress("spender", req.Spender)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid spender", err.Error())
		return
	}
	amount := numeric.UnlimitedAllowance
	if req.Amount != "unlimited" {
		if amount, err = parseAmount("amount", req.Amount); err != nil {
			respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
			return
		}
	}
	if err := h.settler.Approve(token, owner, spender, amount); err != nil {
		respondError(w, http.StatusBadRequest, "approve failed", err.Error())
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}
