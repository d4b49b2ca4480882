package domain

import "time"

// Customer holds lifetime payment statistics for one payer. Refunds do not
// decrement them.
type Customer struct {
	Customer         string    `json:"customer"`
	TotalSpent       uint64    `json:"total_spent"`
	TransactionCount uint64    `json:"transaction_count"`
	CreatedAt        time.Time `json:"created_at"`
}

// ApplyPayment records a gross payment amount. Nothing is modified on overflow.
func (c *Customer) ApplyPayment(amount uint64) error {
	count, err := CheckedAdd(c.TransactionCount, 1)
	if err != nil {
		return err
	}
	spent, err := CheckedAdd(c.TotalSpent, amount)
	if err != nil {
		return err
	}
	c.TransactionCount, c.TotalSpent = count, spent
	return nil
}
