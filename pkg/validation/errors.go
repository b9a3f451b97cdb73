package validation

import "errors"

// ExchangeContractErr is a machine-checkable reason the exchange contract
// would reject a fill or cancel. Values compare with == and errors.Is.
type ExchangeContractErr string

func (e ExchangeContractErr) Error() string { return string(e) }

const (
	ErrOrderFillExpired                            ExchangeContractErr = "ORDER_FILL_EXPIRED"
	ErrOrderCancelExpired                          ExchangeContractErr = "ORDER_CANCEL_EXPIRED"
	ErrOrderCancelAmountZero                       ExchangeContractErr = "ORDER_CANCEL_AMOUNT_ZERO"
	ErrOrderAlreadyCancelledOrFilled               ExchangeContractErr = "ORDER_ALREADY_CANCELLED_OR_FILLED"
	ErrOrderFillAmountZero                         ExchangeContractErr = "ORDER_FILL_AMOUNT_ZERO"
	ErrOrderRemainingFillAmountZero                ExchangeContractErr = "ORDER_REMAINING_FILL_AMOUNT_ZERO"
	ErrOrderFillRoundingError                      ExchangeContractErr = "ORDER_FILL_ROUNDING_ERROR"
	ErrFillBalanceAllowanceError                   ExchangeContractErr = "FILL_BALANCE_ALLOWANCE_ERROR"
	ErrInvalidSignature                            ExchangeContractErr = "INVALID_SIGNATURE"
	ErrInsufficientTakerBalance                    ExchangeContractErr = "INSUFFICIENT_TAKER_BALANCE"
	ErrInsufficientTakerAllowance                  ExchangeContractErr = "INSUFFICIENT_TAKER_ALLOWANCE"
	ErrInsufficientMakerBalance                    ExchangeContractErr = "INSUFFICIENT_MAKER_BALANCE"
	ErrInsufficientMakerAllowance                  ExchangeContractErr = "INSUFFICIENT_MAKER_ALLOWANCE"
	ErrInsufficientTakerFeeBalance                 ExchangeContractErr = "INSUFFICIENT_TAKER_FEE_BALANCE"
	ErrInsufficientTakerFeeAllowance               ExchangeContractErr = "INSUFFICIENT_TAKER_FEE_ALLOWANCE"
	ErrInsufficientMakerFeeBalance                 ExchangeContractErr = "INSUFFICIENT_MAKER_FEE_BALANCE"
	ErrInsufficientMakerFeeAllowance               ExchangeContractErr = "INSUFFICIENT_MAKER_FEE_ALLOWANCE"
	ErrTransactionSenderIsNotFillOrderTaker        ExchangeContractErr = "TRANSACTION_SENDER_IS_NOT_FILL_ORDER_TAKER"
	ErrMultipleMakersInSingleCancelBatchDisallowed ExchangeContractErr = "MULTIPLE_MAKERS_IN_SINGLE_CANCEL_BATCH_DISALLOWED"
	ErrInsufficientRemainingFillAmount             ExchangeContractErr = "INSUFFICIENT_REMAINING_FILL_AMOUNT"
	ErrMultipleTakerTokensInFillUpToDisallowed     ExchangeContractErr = "MULTIPLE_TAKER_TOKENS_IN_FILL_UP_TO_DISALLOWED"
	ErrBatchOrdersMustHaveSameExchangeAddress      ExchangeContractErr = "BATCH_ORDERS_MUST_HAVE_SAME_EXCHANGE_ADDRESS"
	ErrBatchOrdersMustHaveAtLeastOneItem           ExchangeContractErr = "BATCH_ORDERS_MUST_HAVE_AT_LEAST_ONE_ITEM"
)

// AsExchangeContractErr unwraps err looking for a validation kind.
// ok is false for infrastructure errors.
func AsExchangeContractErr(err error) (ExchangeContractErr, bool) {
	var kind ExchangeContractErr
	if errors.As(err, &kind) {
		return kind, true
	}
	return "", false
}

// ExchangeContractErrCode is the errorId carried by the contract's LogError event.
type ExchangeContractErrCode uint8

const (
	ErrorOrderExpired ExchangeContractErrCode = iota
	ErrorOrderFullyFilledOrCancelled
	ErrorRoundingErrorTooLarge
	ErrorInsufficientBalanceOrAllowance
	ErrorCancelExpired
	ErrorCancelNoValue
)

// FromErrorCode maps a LogError id to the matching validation kind.
// Unknown ids return ok=false.
func FromErrorCode(code ExchangeContractErrCode) (ExchangeContractErr, bool) {
	switch code {
	case ErrorOrderExpired:
		return ErrOrderFillExpired, true
	case ErrorOrderFullyFilledOrCancelled:
		return ErrOrderRemainingFillAmountZero, true
	case ErrorRoundingErrorTooLarge:
		return ErrOrderFillRoundingError, true
	case ErrorInsufficientBalanceOrAllowance:
		return ErrFillBalanceAllowanceError, true
	case ErrorCancelExpired:
		return ErrOrderCancelExpired, true
	case ErrorCancelNoValue:
		return ErrOrderAlreadyCancelledOrFilled, true
	}
	return "", false
}
