package api

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/fillguard/pkg/order"
	"github.com/uhyunpark/fillguard/pkg/validation"
)

// Handlers below reject malformed input with 400 before the validator runs,
// so any non-kind error the validator returns is a failed state read.

func (s *Server) handleValidateFill(w http.ResponseWriter, r *http.Request) {
	s.validateFill(w, r, false)
}

func (s *Server) handleValidateFillOrKill(w http.ResponseWriter, r *http.Request) {
	s.validateFill(w, r, true)
}

func (s *Server) validateFill(w http.ResponseWriter, r *http.Request, fillOrKill bool) {
	var req ValidateFillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	v, err := s.validatorAt(req.Block)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid block", err.Error())
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

	fill := amount
	if fillOrKill {
		err = v.ValidateFillOrKill(r.Context(), so, amount, taker)
	} else {
		fill, err = v.ValidateFill(r.Context(), so, amount, taker)
	}
	if err != nil {
		s.respondRejection(w, err)
		return
	}
	respondJSON(w, FillResponse{OrderHash: hash.Hex(), FillTakerTokenAmount: fill.String()})
}

func (s *Server) handleValidateCancel(w http.ResponseWriter, r *http.Request) {
	var req ValidateCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	v, err := s.validatorAt(req.Block)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid block", err.Error())
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

	cancel, err := v.ValidateCancel(r.Context(), o, amount)
	if err != nil {
		s.respondRejection(w, err)
		return
	}
	respondJSON(w, CancelResponse{OrderHash: hash.Hex(), CancelTakerTokenAmount: cancel.String()})
}

func (s *Server) handleValidateBatchFill(w http.ResponseWriter, r *http.Request) {
	var req BatchFillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	v, err := s.validatorAt(req.Block)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid block", err.Error())
		return
	}
	orders, err := decodeSignedList(req.SignedOrders)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	amounts, err := parseAmounts("fillTakerTokenAmounts", req.FillTakerTokenAmounts)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}
	if len(amounts) != len(orders) {
		respondError(w, http.StatusBadRequest, "length mismatch", "one fill amount per order")
		return
	}
	taker, err := parseAddress("takerAddress", req.TakerAddress)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid taker", err.Error())
		return
	}

	var results validation.Results
	if req.FillOrKill {
		results, err = v.ValidateBatchFillOrKill(r.Context(), orders, amounts, taker)
	} else {
		results, err = v.ValidateBatchFill(r.Context(), orders, amounts, taker)
	}
	if err != nil {
		s.respondRejection(w, err)
		return
	}
	respondJSON(w, batchResponse(results))
}

func (s *Server) handleValidateFillUpTo(w http.ResponseWriter, r *http.Request) {
	var req FillUpToRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	v, err := s.validatorAt(req.Block)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid block", err.Error())
		return
	}
	orders, err := decodeSignedList(req.SignedOrders)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	total, err := parseAmount("fillTakerTokenAmount", req.FillTakerTokenAmount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}
	taker, err := parseAddress("takerAddress", req.TakerAddress)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid taker", err.Error())
		return
	}

	results, err := v.ValidateFillUpTo(r.Context(), orders, total, taker)
	if err != nil {
		s.respondRejection(w, err)
		return
	}
	respondJSON(w, batchResponse(results))
}

func (s *Server) handleValidateBatchCancel(w http.ResponseWriter, r *http.Request) {
	var req BatchCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	v, err := s.validatorAt(req.Block)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid block", err.Error())
		return
	}
	orders := make([]*order.Order, len(req.Orders))
	for i, p := range req.Orders {
		o, _, err := decodeOrder(p)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid order", err.Error())
			return
		}
		orders[i] = o
	}
	amounts, err := parseAmounts("cancelTakerTokenAmounts", req.CancelTakerTokenAmounts)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}
	if len(amounts) != len(orders) {
		respondError(w, http.StatusBadRequest, "length mismatch", "one cancel amount per order")
		return
	}

	results, err := v.ValidateBatchCancel(r.Context(), orders, amounts)
	if err != nil {
		s.respondRejection(w, err)
		return
	}
	respondJSON(w, batchResponse(results))
}

func (s *Server) validatorAt(block string) (*validation.Validator, error) {
	b, err := parseBlock(block)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return s.cfg.Validator, nil
	}
	return s.cfg.Validator.WithBlock(b), nil
}

func batchResponse(results validation.Results) BatchResponse {
	out := BatchResponse{
		Results: make([]OrderResult, len(results)),
		Total:   results.Total().String(),
	}
	for i, res := range results {
		entry := OrderResult{OrderHash: res.OrderHash.Hex()}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		} else if res.Amount != nil {
			entry.Amount = res.Amount.String()
		}
		out.Results[i] = entry
	}
	return out
}

func decodeOrder(p order.OrderPayload) (*order.Order, common.Hash, error) {
	o, err := p.ToOrder()
	if err != nil {
		return nil, common.Hash{}, err
	}
	hash, err := order.HashOrder(o)
	if err != nil {
		return nil, common.Hash{}, err
	}
	return o, hash, nil
}

func decodeSigned(p order.SignedOrderPayload) (*order.SignedOrder, common.Hash, error) {
	so, err := p.ToSignedOrder()
	if err != nil {
		return nil, common.Hash{}, err
	}
	hash, err := order.HashOrder(&so.Order)
	if err != nil {
		return nil, common.Hash{}, err
	}
	return so, hash, nil
}

func decodeSignedList(ps []order.SignedOrderPayload) ([]*order.SignedOrder, error) {
	out := make([]*order.SignedOrder, len(ps))
	for i, p := range ps {
		so, _, err := decodeSigned(p)
		if err != nil {
			return nil, err
		}
		out[i] = so
	}
	return out, nil
}
