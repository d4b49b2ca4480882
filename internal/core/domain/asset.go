package domain

import (
	"time"

	"github.com/google/uuid"
)

// Asset is a fungible asset known to the ledger.
type Asset struct {
	Mint      string    `json:"mint"`
	Symbol    string    `json:"symbol"`
	Decimals  uint8     `json:"decimals"`
	CreatedAt time.Time `json:"created_at"`
}

// Recognizable reports whether the platform may adopt the asset.
func (a *Asset) Recognizable() bool {
	return a.Decimals == RecognizedAssetDecimals
}

// TokenAccount holds one owner's balance of one asset. The balance is
// stored sealed and is only ever handled in plaintext inside a transaction.
type TokenAccount struct {
	ID               uuid.UUID `json:"id"`
	Owner            string    `json:"owner"`
	Mint             string    `json:"mint"`
	EncryptedBalance string    `json:"-"` // AES-256 encrypted, never expose raw
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
