package api

import "github.com/uhyunpark/fillguard/pkg/order"

// API request and response types for REST endpoints and WebSocket messages.
// Amounts are base-unit decimal strings, hashes and addresses are 0x hex.

// ==============================
// REST Request Types
// ==============================

// ValidateFillRequest is the payload for /orders/validate/fill and
// /orders/validate/fill-or-kill
type ValidateFillRequest struct {
	SignedOrder          order.SignedOrderPayload `json:"signedOrder"`
	FillTakerTokenAmount string                   `json:"fillTakerTokenAmount"`
	TakerAddress         string                   `json:"takerAddress"`
	Block                string                   `json:"block,omitempty"` // pins oracle reads; empty = latest
}

// ValidateCancelRequest is the payload for /orders/validate/cancel
type ValidateCancelRequest struct {
	Order                  order.OrderPayload `json:"order"`
	CancelTakerTokenAmount string             `json:"cancelTakerTokenAmount"`
	Block                  string             `json:"block,omitempty"`
}

// BatchFillRequest is the payload for /orders/validate/batch-fill
type BatchFillRequest struct {
	SignedOrders          []order.SignedOrderPayload `json:"signedOrders"`
	FillTakerTokenAmounts []string                   `json:"fillTakerTokenAmounts"`
	TakerAddress          string                     `json:"takerAddress"`
	FillOrKill            bool                       `json:"fillOrKill"`
	Block                 string                     `json:"block,omitempty"`
}

// FillUpToRequest is the payload for /orders/validate/fill-up-to
type FillUpToRequest struct {
	SignedOrders         []order.SignedOrderPayload `json:"signedOrders"`
	FillTakerTokenAmount string                     `json:"fillTakerTokenAmount"`
	TakerAddress         string                     `json:"takerAddress"`
	Block                string                     `json:"block,omitempty"`
}

// BatchCancelRequest is the payload for /orders/validate/batch-cancel
type BatchCancelRequest struct {
	Orders                  []order.OrderPayload `json:"orders"`
	CancelTakerTokenAmounts []string             `json:"cancelTakerTokenAmounts"`
	Block                   string               `json:"block,omitempty"`
}

// ==============================
// REST Response Types
// ==============================

type OrderHashResponse struct {
	OrderHash string `json:"orderHash"`
}

// FillResponse reports the taker amount that would actually fill
type FillResponse struct {
	OrderHash            string `json:"orderHash"`
	FillTakerTokenAmount string `json:"fillTakerTokenAmount"`
}

type CancelResponse struct {
	OrderHash              string `json:"orderHash"`
	CancelTakerTokenAmount string `json:"cancelTakerTokenAmount"`
}

// OrderResult is one entry of a batch response; exactly one of Amount and
// Error is set
type OrderResult struct {
	OrderHash string `json:"orderHash"`
	Amount    string `json:"amount,omitempty"`
	Error     string `json:"error,omitempty"`
}

type BatchResponse struct {
	Results []OrderResult `json:"results"`
	Total   string        `json:"total"`
}

// OrderStateResponse is returned by GET /orders/{hash}/state
type OrderStateResponse struct {
	OrderHash                   string `json:"orderHash"`
	FilledTakerTokenAmount      string `json:"filledTakerTokenAmount"`
	CancelledTakerTokenAmount   string `json:"cancelledTakerTokenAmount"`
	UnavailableTakerTokenAmount string `json:"unavailableTakerTokenAmount"`
	RemainingTakerTokenAmount   string `json:"remainingTakerTokenAmount,omitempty"` // only for stored orders
}

type RoundingErrorResponse struct {
	IsRoundingError bool `json:"isRoundingError"`
}

// SubmitOrderResponse is the response from order submission
type SubmitOrderResponse struct {
	Status    string `json:"status"` // "submitted" or "duplicate"
	OrderHash string `json:"orderHash"`
}

type OrderEntry struct {
	OrderHash   string                   `json:"orderHash"`
	SignedOrder order.SignedOrderPayload `json:"signedOrder"`
}

// ErrorResponse is returned for all errors. For rejected orders Error is the
// machine-readable kind, e.g. ORDER_FILL_EXPIRED.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g. ["orders", "fills", "order:0x..."]
}

// OrderUpdate is broadcast when an order is admitted
type OrderUpdate struct {
	Type        string                   `json:"type"` // "order"
	OrderHash   string                   `json:"orderHash"`
	SignedOrder order.SignedOrderPayload `json:"signedOrder"`
}

// FillUpdate is broadcast for every settled fill
type FillUpdate struct {
	Type                   string `json:"type"` // "fill"
	OrderHash              string `json:"orderHash"`
	Maker                  string `json:"maker"`
	Taker                  string `json:"taker"`
	FilledMakerTokenAmount string `json:"filledMakerTokenAmount"`
	FilledTakerTokenAmount string `json:"filledTakerTokenAmount"`
	PaidMakerFee           string `json:"paidMakerFee"`
	PaidTakerFee           string `json:"paidTakerFee"`
}

// CancelUpdate is broadcast for every cancel
type CancelUpdate struct {
	Type                      string `json:"type"` // "cancel"
	OrderHash                 string `json:"orderHash"`
	Maker                     string `json:"maker"`
	CancelledMakerTokenAmount string `json:"cancelledMakerTokenAmount"`
	CancelledTakerTokenAmount string `json:"cancelledTakerTokenAmount"`
}

// ErrorUpdate is broadcast when the exchange logs a rejected fill or cancel
type ErrorUpdate struct {
	Type      string `json:"type"` // "error"
	OrderHash string `json:"orderHash"`
	Error     string `json:"error"`
}

// ==============================
// Ledger Types
// ==============================

// SettleFillRequest fills an order on the local ledger
type SettleFillRequest struct {
	SignedOrder          order.SignedOrderPayload `json:"signedOrder"`
	FillTakerTokenAmount string                   `json:"fillTakerTokenAmount"`
	TakerAddress         string                   `json:"takerAddress"`
	FillOrKill           bool                     `json:"fillOrKill"`
}

// SettleCancelRequest cancels an order on the local ledger
type SettleCancelRequest struct {
	Order                  order.OrderPayload `json:"order"`
	CancelTakerTokenAmount string             `json:"cancelTakerTokenAmount"`
	SenderAddress          string             `json:"senderAddress"`
}

// CreditRequest mints token balance to owner
type CreditRequest struct {
	Token  string `json:"token"`
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

// ApproveRequest sets owner's allowance for spender
type ApproveRequest struct {
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"` // "unlimited" for 2^256-1
}
