// internal/model/dispatch.go
package model

import "time"

type RecipientOutcome struct {
	RecipientID int            `json:"recipientId"`
	Email       string         `json:"email"`
	Status      DeliveryStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
}

// DispatchResult is the aggregate of one pipeline run over a campaign.
type DispatchResult struct {
	CampaignID   int                `json:"campaignId"`
	RunID        string             `json:"runId"`
	Total        int                `json:"total"`
	Succeeded    int                `json:"success"`
	Failed       int                `json:"failed"`
	PerRecipient []RecipientOutcome `json:"details"`
}

// CampaignEvent is published on the campaign_events topic.
type CampaignEvent struct {
	CampaignID int            `json:"campaignId"`
	OwnerID    int            `json:"ownerId"`
	Status     CampaignStatus `json:"status"`
	RunID      string         `json:"runId,omitempty"`
	Total      int            `json:"total"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	At         time.Time      `json:"at"`
}
