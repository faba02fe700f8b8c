package model

import "time"

// Payment is the record of a captured tier-upgrade payment. Amount is in
// minor currency units. TransactionID is unique per payment provider capture.
type Payment struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Amount        int64     `json:"amount"`
	TransactionID string    `json:"transactionId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AdminStats holds the aggregate counts shown on the admin dashboard.
type AdminStats struct {
	Users    int `json:"users"`
	Posts    int `json:"posts"`
	Comments int `json:"comments"`
	Payments int `json:"payments"`
}
