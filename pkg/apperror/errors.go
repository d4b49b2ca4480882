package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// HasCode reports whether err is (or wraps) an AppError carrying code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// ---- Platform Registry & Fee Treasury (PLT) ----

func ErrInvalidFeeBps() *AppError {
	return New("PLT_001", "Platform fee must be between 0 and 1000 basis points", http.StatusBadRequest)
}

func ErrInvalidMinPaymentAmount() *AppError {
	return New("PLT_002", "Minimum payment amount must be greater than zero", http.StatusBadRequest)
}

func ErrInvalidAssetConfiguration() *AppError {
	return New("PLT_003", "Recognized asset must use 6 decimal places", http.StatusBadRequest)
}

func ErrPlatformInactive() *AppError {
	return New("PLT_004", "Platform is not active", http.StatusConflict)
}

func ErrUnauthorized() *AppError {
	return New("PLT_005", "Caller is not the required authority", http.StatusForbidden)
}

func ErrNoFeesToClaim() *AppError {
	return New("PLT_006", "Treasury holds no fees to claim", http.StatusConflict)
}

func ErrPlatformAlreadyInitialized() *AppError {
	return New("PLT_007", "Platform is already initialized", http.StatusConflict)
}

// ---- Merchant Directory (MER) ----

func ErrInvalidMerchantID() *AppError {
	return New("MER_001", "Merchant id must be 1 to 64 bytes", http.StatusBadRequest)
}

func ErrFeeTooHigh() *AppError {
	return New("MER_002", "Merchant fee must not exceed 1000 basis points", http.StatusBadRequest)
}

func ErrMerchantInactive() *AppError {
	return New("MER_003", "Merchant is not active", http.StatusConflict)
}

func ErrMerchantAlreadyExists() *AppError {
	return New("MER_004", "Merchant id is already registered", http.StatusConflict)
}

// ---- Settlement (PAY) ----

func ErrInsufficientFunds() *AppError {
	return New("PAY_001", "Insufficient balance in token account", http.StatusPaymentRequired)
}

func ErrInvalidAmount() *AppError {
	return New("PAY_002", "Invalid amount", http.StatusBadRequest)
}

func ErrPaymentAlreadyExists() *AppError {
	return New("PAY_003", "Payment id has already been processed", http.StatusConflict)
}

func ErrNotFound(entity string) *AppError {
	return New("PAY_004", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrInvalidTokenMint() *AppError {
	return New("PAY_005", "Asset does not match the platform's recognized asset", http.StatusBadRequest)
}

func ErrPaymentAlreadyRefunded() *AppError {
	return New("PAY_006", "Payment has already been refunded", http.StatusConflict)
}

func ErrRefundNotAuthorized() *AppError {
	return New("PAY_007", "Refund not authorized for this payment", http.StatusForbidden)
}

func ErrPaymentBelowMinimum() *AppError {
	return New("PAY_008", "Payment amount is below the platform minimum", http.StatusUnprocessableEntity)
}

func ErrInvalidPaymentID() *AppError {
	return New("PAY_009", "Payment id must be 1 to 64 bytes", http.StatusBadRequest)
}

func ErrCalculation(err error) *AppError {
	return Wrap("PAY_010", "Amount calculation overflowed", http.StatusUnprocessableEntity, err)
}

func ErrTransferUnauthorized() *AppError {
	return New("PAY_011", "Signer does not own the source token account", http.StatusForbidden)
}

// ---- Security & Authentication (SEC) ----

func ErrInvalidAccessKey() *AppError {
	return New("SEC_001", "Invalid access key", http.StatusUnauthorized)
}

func ErrInvalidSignature() *AppError {
	return New("SEC_002", "Invalid signature", http.StatusUnauthorized)
}

func ErrTimestampExpired() *AppError {
	return New("SEC_003", "Request timestamp expired", http.StatusForbidden)
}

func ErrNonceUsed() *AppError {
	return New("SEC_004", "Nonce has already been used", http.StatusForbidden)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrUsernameExists() *AppError {
	return New("AUTH_002", "Username already exists", http.StatusConflict)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrAccountSuspended() *AppError {
	return New("AUTH_004", "Account is suspended", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_003", "Encryption service failure", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a PAY_002-style validation error.
func Validation(message string) *AppError {
	return New("PAY_002", message, http.StatusBadRequest)
}
