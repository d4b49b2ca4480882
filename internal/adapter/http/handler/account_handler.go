package handler

import (
	"settlement-ledger/internal/adapter/http/dto"
	"settlement-ledger/internal/adapter/http/middleware"
	"settlement-ledger/internal/core/domain"
	"settlement-ledger/internal/core/ports"
	"settlement-ledger/pkg/apperror"
	"settlement-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// AccountHandler handles account registration, login and balance endpoints.
type AccountHandler struct {
	authSvc      ports.AuthService
	reportingSvc ports.ReportingService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(authSvc ports.AuthService, reportingSvc ports.ReportingService) *AccountHandler {
	return &AccountHandler{authSvc: authSvc, reportingSvc: reportingSvc}
}

// Register handles POST /api/v1/accounts/register.
func (h *AccountHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.authSvc.Register(c.Request.Context(), ports.RegisterRequest{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.RegisterResponse{
		AccountID: result.AccountID.String(),
		Address:   result.Address,
		AccessKey: result.AccessKey,
		SecretKey: result.SecretKey,
	})
}

// Login handles POST /api/v1/accounts/login.
func (h *AccountHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	token, expiry, err := h.authSvc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.LoginResponse{
		Token:  token,
		Expiry: expiry.Unix(),
	})
}

// GetBalance handles GET /api/v1/accounts/me/balance.
func (h *AccountHandler) GetBalance(c *gin.Context) {
	address := middleware.Address(c)
	if address == "" {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	balance, mint, err := h.reportingSvc.GetBalance(c.Request.Context(), address)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		Address:        address,
		Mint:           mint,
		Balance:        balance,
		BalanceDisplay: domain.FormatUnits(balance, domain.RecognizedAssetDecimals),
	})
}
