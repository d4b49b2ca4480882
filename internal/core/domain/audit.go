package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionPlatformInitialized AuditAction = "PLATFORM_INITIALIZED"
	AuditActionPlatformUpdated     AuditAction = "PLATFORM_UPDATED"
	AuditActionFeesClaimed         AuditAction = "FEES_CLAIMED"
	AuditActionMint                AuditAction = "MINT"
	AuditActionMerchantRegistered  AuditAction = "MERCHANT_REGISTERED"
	AuditActionMerchantStatus      AuditAction = "MERCHANT_STATUS"
	AuditActionPayment             AuditAction = "PAYMENT"
	AuditActionRefund              AuditAction = "REFUND"
	AuditActionRegister            AuditAction = "REGISTER"
	AuditActionLogin               AuditAction = "LOGIN"
	AuditActionUpdateWebhook       AuditAction = "UPDATE_WEBHOOK"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	Actor        string      `json:"actor,omitempty"` // ledger address of the caller
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
