package handler

import (
	"time"

	"settlement-ledger/internal/adapter/http/dto"
	"settlement-ledger/internal/adapter/http/middleware"
	"settlement-ledger/internal/core/domain"
	"settlement-ledger/internal/core/ports"
	"settlement-ledger/pkg/apperror"
	"settlement-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// PlatformHandler handles the platform registry and fee treasury endpoints.
type PlatformHandler struct {
	platformSvc ports.PlatformService
}

// NewPlatformHandler creates a new PlatformHandler.
func NewPlatformHandler(platformSvc ports.PlatformService) *PlatformHandler {
	return &PlatformHandler{platformSvc: platformSvc}
}

// Initialize handles POST /api/v1/platform. The signer becomes the authority.
func (h *PlatformHandler) Initialize(c *gin.Context) {
	var req dto.InitializePlatformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	platform, err := h.platformSvc.Initialize(c.Request.Context(), ports.InitializePlatformRequest{
		Caller:           middleware.Address(c),
		FeeBps:           req.FeeBps,
		MinPaymentAmount: req.MinPaymentAmount,
		RecognizedAsset:  req.RecognizedAsset,
		ClientIP:         c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toPlatformResponse(platform))
}

// Update handles PATCH /api/v1/platform.
func (h *PlatformHandler) Update(c *gin.Context) {
	var req dto.UpdatePlatformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	platform, err := h.platformSvc.Update(c.Request.Context(), ports.UpdatePlatformRequest{
		Caller:           middleware.Address(c),
		FeeBps:           req.FeeBps,
		MinPaymentAmount: req.MinPaymentAmount,
		IsActive:         req.IsActive,
		ClientIP:         c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toPlatformResponse(platform))
}

// Get handles GET /api/v1/platform.
func (h *PlatformHandler) Get(c *gin.Context) {
	platform, err := h.platformSvc.Get(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toPlatformResponse(platform))
}

// Treasury handles GET /api/v1/platform/treasury.
func (h *PlatformHandler) Treasury(c *gin.Context) {
	balance, err := h.platformSvc.TreasuryBalance(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.TreasuryResponse{
		Balance:        balance,
		BalanceDisplay: domain.FormatUnits(balance, domain.RecognizedAssetDecimals),
	})
}

// ClaimFees handles POST /api/v1/platform/claim.
func (h *PlatformHandler) ClaimFees(c *gin.Context) {
	result, err := h.platformSvc.ClaimFees(c.Request.Context(), middleware.Address(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ClaimResponse{
		Amount:        result.Amount,
		AmountDisplay: domain.FormatUnits(result.Amount, domain.RecognizedAssetDecimals),
		Destination:   result.Destination,
		ClaimedAt:     result.ClaimedAt.Format(time.RFC3339),
	})
}

// Mint handles POST /api/v1/platform/mint.
func (h *PlatformHandler) Mint(c *gin.Context) {
	var req dto.MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	balance, err := h.platformSvc.Mint(c.Request.Context(), ports.MintRequest{
		Caller: middleware.Address(c),
		Owner:  req.Owner,
		Amount: req.Amount,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.MintResponse{
		Owner:          req.Owner,
		Balance:        balance,
		BalanceDisplay: domain.FormatUnits(balance, domain.RecognizedAssetDecimals),
	})
}

func toPlatformResponse(p *domain.Platform) dto.PlatformResponse {
	return dto.PlatformResponse{
		Authority:               p.Authority,
		Treasury:                p.Treasury,
		RecognizedAsset:         p.RecognizedAsset,
		FeeBps:                  p.FeeBps,
		MinPaymentAmount:        p.MinPaymentAmount,
		MinPaymentAmountDisplay: domain.FormatUnits(p.MinPaymentAmount, domain.RecognizedAssetDecimals),
		IsActive:                p.IsActive,
	}
}
