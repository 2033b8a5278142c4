package services

// ErrorKind classifies engine failures for callers: validation errors are
// fixed by resubmitting corrected input, state-conflict by waiting or picking
// another target, rate-limit by waiting for the next logical block, and
// resource by topping up balance or allowance. Nothing is retried internally;
// a failed call leaves no partial side effects.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindStateConflict ErrorKind = "state_conflict"
	KindRateLimit     ErrorKind = "rate_limit"
	KindResource      ErrorKind = "resource"
)

// MarketError is a typed engine error with a stable machine-readable code.
type MarketError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *MarketError) Error() string {
	return e.Message
}

var (
	ErrEmptyString              = &MarketError{KindValidation, "EmptyString", "required text field is empty"}
	ErrInvalidQuestionLength    = &MarketError{KindValidation, "InvalidQuestionLength", "question exceeds the maximum length"}
	ErrInvalidAnswerLength      = &MarketError{KindValidation, "InvalidAnswerLength", "answer exceeds the maximum length"}
	ErrInvalidDescriptionLength = &MarketError{KindValidation, "InvalidDescriptionLength", "description exceeds the maximum length"}
	ErrInvalidLinkLength        = &MarketError{KindValidation, "InvalidLinkLength", "link exceeds the maximum length"}
	ErrInvalidCategoryCount     = &MarketError{KindValidation, "InvalidCategoryCount", "between 1 and 3 categories are required"}
	ErrUnknownCategory          = &MarketError{KindValidation, "UnknownCategory", "category is not on the allow-list"}
	ErrDuplicateCategory        = &MarketError{KindValidation, "DuplicateCategory", "duplicate category"}
	ErrInitialPriceOutOfRange   = &MarketError{KindValidation, "InitialPriceOutOfRange", "initial price is out of the allowed range"}
	ErrInvalidAmount            = &MarketError{KindValidation, "InvalidAmount", "amount must be positive"}
	ErrPoolDeadlineInvalid      = &MarketError{KindValidation, "PoolDeadlineInvalid", "pool deadline must be in the future"}
	ErrPoolSameAnswer           = &MarketError{KindValidation, "PoolSameAnswer", "pool must propose a different answer than the current one"}

	ErrOpinionNotFound     = &MarketError{KindStateConflict, "OpinionNotFound", "opinion does not exist"}
	ErrOpinionNotActive    = &MarketError{KindStateConflict, "OpinionNotActive", "opinion is not active"}
	ErrSameOwner           = &MarketError{KindStateConflict, "SameOwner", "caller already owns the current answer"}
	ErrPaused              = &MarketError{KindStateConflict, "Paused", "the market is paused"}
	ErrPoolNotFound        = &MarketError{KindStateConflict, "PoolNotFound", "pool does not exist"}
	ErrPoolNotActive       = &MarketError{KindStateConflict, "PoolNotActive", "pool is not active"}
	ErrPoolNotExpired      = &MarketError{KindStateConflict, "PoolNotExpired", "pool has not expired"}
	ErrPoolNoContribution  = &MarketError{KindStateConflict, "PoolNoContribution", "caller has no contribution to refund"}
	ErrPoolAlreadyFunded   = &MarketError{KindStateConflict, "PoolAlreadyFunded", "pool is already fully funded"}
	ErrPoolInsufficientFunds = &MarketError{KindStateConflict, "PoolInsufficientFunds", "pool has not reached its funding target"}
	ErrNothingToWithdraw   = &MarketError{KindStateConflict, "NothingToWithdraw", "no accumulated fees to withdraw"}

	ErrMaxTradesPerBlock = &MarketError{KindRateLimit, "MaxTradesPerBlockExceeded", "too many trades in the current block"}
	ErrOneTradePerBlock  = &MarketError{KindRateLimit, "OneTradePerBlock", "opinion already traded by caller in the current block"}

	ErrInsufficientAllowance = &MarketError{KindResource, "InsufficientAllowance", "caller has not authorized sufficient funds"}
	ErrInsufficientBalance   = &MarketError{KindResource, "InsufficientBalance", "caller balance is too low"}
)
