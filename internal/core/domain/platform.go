package domain

// RegistryAddress is the identity of the platform registry itself. The
// registry owns the treasury token account, so only transfers it signs can
// move collected fees.
const RegistryAddress = "platform_registry"

const (
	// MaxFeeBps caps both the platform fee and a merchant's fee override.
	MaxFeeBps uint64 = 1000
	// BpsDenominator converts basis points into a fraction.
	BpsDenominator uint64 = 10_000
	// RecognizedAssetDecimals is the only precision the platform accepts.
	RecognizedAssetDecimals uint8 = 6
)

// Platform is the singleton registry configuration. Field order is part of
// the persisted record layout read by external indexers.
type Platform struct {
	Authority        string `json:"authority"`
	Treasury         string `json:"treasury"`
	RecognizedAsset  string `json:"recognized_asset"`
	FeeBps           uint64 `json:"fee_bps"`
	MinPaymentAmount uint64 `json:"min_payment_amount"`
	IsActive         bool   `json:"is_active"`
}

// IsAuthority reports whether caller controls the platform.
func (p *Platform) IsAuthority(caller string) bool {
	return caller != "" && p.Authority == caller
}
