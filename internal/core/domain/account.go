package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AccountStatus represents the state of an API account.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
)

// AddressPrefix marks ledger identities issued to API accounts.
const AddressPrefix = "acct_"

// Account is an authenticated principal. Its Address is the identity used as
// platform authority, merchant authority, customer or settlement destination.
type Account struct {
	ID           uuid.UUID     `json:"id"`
	Address      string        `json:"address"`
	Username     string        `json:"username"`
	PasswordHash string        `json:"-"` // Never expose
	AccessKey    string        `json:"access_key"`
	SecretKeyEnc string        `json:"-"` // Encrypted, never expose
	Status       AccountStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// IsActive returns true if the account may sign requests.
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// NewAddress issues a fresh ledger identity.
func NewAddress() string {
	return AddressPrefix + strings.ReplaceAll(uuid.New().String(), "-", "")
}
