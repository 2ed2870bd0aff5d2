// internal/model/sending_history.go
package model

import "time"

type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "SENT"
	DeliveryFailed DeliveryStatus = "FAILED"
)

// SendingHistory is one append-only ledger row per delivery attempt.
type SendingHistory struct {
	ID          int            `db:"id" json:"id"`
	CampaignID  int            `db:"campaign_id" json:"campaignId"`
	RecipientID int            `db:"recipient_id" json:"recipientId"`
	Status      DeliveryStatus `db:"status" json:"status"`
	Error       string         `db:"error" json:"error,omitempty"`
	SentAt      time.Time      `db:"sent_at" json:"sentAt"`
}

type LedgerStats struct {
	Total  int `json:"total"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}
