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

// PaymentHandler handles payment, refund and customer endpoints.
type PaymentHandler struct {
	settlementSvc ports.SettlementService
	reportingSvc  ports.ReportingService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(settlementSvc ports.SettlementService, reportingSvc ports.ReportingService) *PaymentHandler {
	return &PaymentHandler{settlementSvc: settlementSvc, reportingSvc: reportingSvc}
}

// ProcessPayment handles POST /api/v1/payments. The signer pays.
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	var req dto.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	payment, err := h.settlementSvc.ProcessPayment(c.Request.Context(), ports.PaymentRequest{
		Caller:     middleware.Address(c),
		MerchantID: req.MerchantID,
		PaymentID:  req.PaymentID,
		Amount:     req.Amount,
		Mint:       req.Mint,
		ClientIP:   c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toPaymentResponse(payment))
}

// RefundPayment handles POST /api/v1/payments/:id/refund. The signer must be
// the merchant authority.
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	var req dto.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	payment, err := h.settlementSvc.RefundPayment(c.Request.Context(), ports.RefundRequest{
		Caller:    middleware.Address(c),
		PaymentID: c.Param("id"),
		Customer:  req.Customer,
		ClientIP:  c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toPaymentResponse(payment))
}

// GetPayment handles GET /api/v1/payments/:id.
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	payment, err := h.reportingSvc.GetPayment(c.Request.Context(), middleware.Address(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toPaymentResponse(payment))
}

// GetCustomer handles GET /api/v1/customers/:id.
func (h *PaymentHandler) GetCustomer(c *gin.Context) {
	customer, err := h.reportingSvc.GetCustomer(c.Request.Context(), middleware.Address(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.CustomerResponse{
		Customer:          customer.Customer,
		TotalSpent:        customer.TotalSpent,
		TotalSpentDisplay: domain.FormatUnits(customer.TotalSpent, domain.RecognizedAssetDecimals),
		TransactionCount:  customer.TransactionCount,
		CreatedAt:         customer.CreatedAt.Format(time.RFC3339),
	})
}

func toPaymentResponse(p *domain.Payment) dto.PaymentResponse {
	resp := dto.PaymentResponse{
		PaymentID:             p.PaymentID,
		Customer:              p.Customer,
		Merchant:              p.Merchant,
		Amount:                p.Amount,
		AmountDisplay:         domain.FormatUnits(p.Amount, domain.RecognizedAssetDecimals),
		FeeAmount:             p.FeeAmount,
		MerchantAmount:        p.MerchantAmount,
		MerchantAmountDisplay: domain.FormatUnits(p.MerchantAmount, domain.RecognizedAssetDecimals),
		Status:                string(p.Status),
		CreatedAt:             p.CreatedAt.Format(time.RFC3339),
	}
	if p.RefundedAt != nil {
		s := p.RefundedAt.Format(time.RFC3339)
		resp.RefundedAt = &s
	}
	return resp
}
