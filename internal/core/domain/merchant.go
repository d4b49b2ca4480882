package domain

import "time"

// MaxMerchantIDLen is the byte limit for a merchant id.
const MaxMerchantIDLen = 64

// Merchant is a registered payee. Aggregates are mutated only by the
// settlement engine.
type Merchant struct {
	MerchantID            string    `json:"merchant_id"`
	Authority             string    `json:"authority"`
	SettlementDestination string    `json:"settlement_destination"`
	Fee                   uint16    `json:"fee"` // bps override, validated but not applied
	Volume                uint64    `json:"volume"`
	TotalFees             uint64    `json:"total_fees"`
	TransactionCount      uint64    `json:"transaction_count"`
	CreatedAt             time.Time `json:"created_at"`
	IsActive              bool      `json:"is_active"`
}

// ValidMerchantID reports whether id is 1..64 bytes.
func ValidMerchantID(id string) bool {
	return len(id) > 0 && len(id) <= MaxMerchantIDLen
}

// IsAuthority reports whether caller controls the merchant.
func (m *Merchant) IsAuthority(caller string) bool {
	return caller != "" && m.Authority == caller
}

// ApplyPayment adds a settled payment to the merchant aggregates. Nothing is
// modified when any counter would overflow.
func (m *Merchant) ApplyPayment(merchantAmount, fee uint64) error {
	count, err := CheckedAdd(m.TransactionCount, 1)
	if err != nil {
		return err
	}
	volume, err := CheckedAdd(m.Volume, merchantAmount)
	if err != nil {
		return err
	}
	totalFees, err := CheckedAdd(m.TotalFees, fee)
	if err != nil {
		return err
	}
	m.TransactionCount, m.Volume, m.TotalFees = count, volume, totalFees
	return nil
}

// ReverseRefund removes a refunded payment from the aggregates, flooring
// every counter at zero.
func (m *Merchant) ReverseRefund(merchantAmount, fee uint64) {
	m.TransactionCount = SaturatingSub(m.TransactionCount, 1)
	m.Volume = SaturatingSub(m.Volume, merchantAmount)
	m.TotalFees = SaturatingSub(m.TotalFees, fee)
}
