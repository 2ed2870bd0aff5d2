// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	StatusDraft     CampaignStatus = "Draft"
	StatusScheduled CampaignStatus = "Scheduled"
	StatusSending   CampaignStatus = "Sending"
	StatusSent      CampaignStatus = "Sent"
	StatusFailed    CampaignStatus = "Failed"
)

// Sendable reports whether send() may move a campaign out of this status.
// Sending is excluded so a campaign mid-dispatch is never picked up twice.
func (s CampaignStatus) Sendable() bool {
	return s == StatusDraft || s == StatusScheduled || s == StatusFailed
}

type Campaign struct {
	ID         int            `db:"id" json:"id"`
	OwnerID    int            `db:"user_id" json:"userId"`
	Name       string         `db:"name" json:"name"`
	TemplateID int            `db:"template_id" json:"templateId"`
	Status     CampaignStatus `db:"status" json:"status"`
	// RecipientIDs nil or empty means every valid recipient of the owner at send time.
	RecipientIDs []int      `db:"recipient_ids" json:"recipientIds"`
	ScheduledAt  *time.Time `db:"scheduled_at" json:"scheduledAt,omitempty"`
	SentAt       *time.Time `db:"sent_at" json:"sentAt,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
}

// TargetsAll reports whether the recipient set is late-bound to all valid recipients.
func (c *Campaign) TargetsAll() bool {
	return len(c.RecipientIDs) == 0
}
