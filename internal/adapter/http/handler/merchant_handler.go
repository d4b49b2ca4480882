package handler

import (
	"strconv"
	"time"

	"settlement-ledger/internal/adapter/http/dto"
	"settlement-ledger/internal/adapter/http/middleware"
	"settlement-ledger/internal/core/domain"
	"settlement-ledger/internal/core/ports"
	"settlement-ledger/pkg/apperror"
	"settlement-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// MerchantHandler handles merchant directory, webhook and merchant reporting
// endpoints.
type MerchantHandler struct {
	merchantSvc  ports.MerchantService
	webhookSvc   ports.WebhookService
	reportingSvc ports.ReportingService
}

// NewMerchantHandler creates a new MerchantHandler.
func NewMerchantHandler(
	merchantSvc ports.MerchantService,
	webhookSvc ports.WebhookService,
	reportingSvc ports.ReportingService,
) *MerchantHandler {
	return &MerchantHandler{
		merchantSvc:  merchantSvc,
		webhookSvc:   webhookSvc,
		reportingSvc: reportingSvc,
	}
}

// Register handles POST /api/v1/merchants. The signer becomes the merchant
// authority.
func (h *MerchantHandler) Register(c *gin.Context) {
	var req dto.RegisterMerchantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	merchant, err := h.merchantSvc.Register(c.Request.Context(), ports.RegisterMerchantRequest{
		Caller:                middleware.Address(c),
		MerchantID:            req.MerchantID,
		FeeBps:                req.FeeBps,
		SettlementDestination: req.SettlementDestination,
		ClientIP:              c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toMerchantResponse(merchant))
}

// SetStatus handles PATCH /api/v1/merchants/:id/status.
func (h *MerchantHandler) SetStatus(c *gin.Context) {
	var req dto.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	merchant, err := h.merchantSvc.SetActive(c.Request.Context(), middleware.Address(c), c.Param("id"), *req.IsActive)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toMerchantResponse(merchant))
}

// ConfigureWebhook handles PUT /api/v1/merchants/:id/webhook.
func (h *MerchantHandler) ConfigureWebhook(c *gin.Context) {
	var req dto.WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	result, err := h.webhookSvc.Configure(c.Request.Context(), middleware.Address(c), c.Param("id"), req.URL)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.WebhookResponse{
		MerchantID: result.MerchantID,
		URL:        result.URL,
		Secret:     result.Secret,
	})
}

// WebhookDeliveries handles GET /api/v1/merchants/:id/payments/:payment_id/webhooks.
func (h *MerchantHandler) WebhookDeliveries(c *gin.Context) {
	deliveries, err := h.webhookSvc.Deliveries(c.Request.Context(), middleware.Address(c), c.Param("id"), c.Param("payment_id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.WebhookDeliveryResponse, 0, len(deliveries))
	for _, d := range deliveries {
		item := dto.WebhookDeliveryResponse{
			ID:         d.ID.String(),
			Event:      string(d.Event),
			WebhookURL: d.WebhookURL,
			Attempt:    d.Attempt,
			Status:     string(d.Status),
			HTTPStatus: d.HTTPStatus,
			LastError:  d.LastError,
			CreatedAt:  d.CreatedAt.Format(time.RFC3339),
		}
		if d.NextRetryAt != nil {
			next := d.NextRetryAt.Format(time.RFC3339)
			item.NextRetryAt = &next
		}
		items = append(items, item)
	}
	response.OK(c, items)
}

// Get handles GET /api/v1/merchants/:id.
func (h *MerchantHandler) Get(c *gin.Context) {
	merchant, err := h.merchantSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toMerchantResponse(merchant))
}

// List handles GET /api/v1/merchants, returning the caller's merchants.
func (h *MerchantHandler) List(c *gin.Context) {
	merchants, err := h.merchantSvc.ListByAuthority(c.Request.Context(), middleware.Address(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.MerchantResponse, 0, len(merchants))
	for i := range merchants {
		items = append(items, toMerchantResponse(&merchants[i]))
	}
	response.OK(c, items)
}

// Payments handles GET /api/v1/merchants/:id/payments.
func (h *MerchantHandler) Payments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	params := ports.PaymentListParams{
		MerchantID: c.Param("id"),
		Page:       page,
		PageSize:   pageSize,
	}
	if s := c.Query("status"); s != "" {
		status := domain.PaymentStatus(s)
		if status != domain.PaymentStatusCompleted && status != domain.PaymentStatusRefunded {
			response.Error(c, apperror.Validation("status must be COMPLETED or REFUNDED"))
			return
		}
		params.Status = &status
	}
	if cust := c.Query("customer"); cust != "" {
		params.Customer = &cust
	}

	payments, total, err := h.reportingSvc.ListPayments(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.PaymentResponse, 0, len(payments))
	for i := range payments {
		items = append(items, toPaymentResponse(&payments[i]))
	}
	response.Paginated(c, items, page, pageSize, total)
}

// Stats handles GET /api/v1/merchants/:id/stats.
func (h *MerchantHandler) Stats(c *gin.Context) {
	stats, err := h.reportingSvc.GetMerchantStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	const d = domain.RecognizedAssetDecimals
	response.OK(c, dto.MerchantStatsResponse{
		TotalPayments:         stats.TotalPayments,
		Completed:             stats.Completed,
		Refunded:              stats.Refunded,
		GrossVolume:           stats.GrossVolume,
		GrossVolumeDisplay:    domain.FormatUnits(stats.GrossVolume, d),
		MerchantVolume:        stats.MerchantVolume,
		MerchantVolumeDisplay: domain.FormatUnits(stats.MerchantVolume, d),
		FeesCollected:         stats.FeesCollected,
		FeesCollectedDisplay:  domain.FormatUnits(stats.FeesCollected, d),
		RefundedVolume:        stats.RefundedVolume,
		UniqueCustomers:       stats.UniqueCustomers,
	})
}

func toMerchantResponse(m *domain.Merchant) dto.MerchantResponse {
	return dto.MerchantResponse{
		MerchantID:            m.MerchantID,
		Authority:             m.Authority,
		SettlementDestination: m.SettlementDestination,
		Fee:                   m.Fee,
		Volume:                m.Volume,
		VolumeDisplay:         domain.FormatUnits(m.Volume, domain.RecognizedAssetDecimals),
		TotalFees:             m.TotalFees,
		TotalFeesDisplay:      domain.FormatUnits(m.TotalFees, domain.RecognizedAssetDecimals),
		TransactionCount:      m.TransactionCount,
		CreatedAt:             m.CreatedAt.Format(time.RFC3339),
		IsActive:              m.IsActive,
	}
}
