// internal/model/recipient.go
package model

import "time"

type Recipient struct {
	ID        int        `db:"id" json:"id"`
	OwnerID   int        `db:"user_id" json:"userId"`
	Email     string     `db:"email" json:"email"`
	Name      string     `db:"name" json:"name"`
	IsValid   bool       `db:"is_valid" json:"isValid"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
}

// RecipientRow is one candidate row of a bulk import, before anything is persisted.
type RecipientRow struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ClassifiedRow is a RecipientRow with the reason it landed in its bucket.
type ClassifiedRow struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	IsValid bool   `json:"isValid,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type BulkSummary struct {
	Total              int `json:"total"`
	Valid              int `json:"valid"`
	Invalid            int `json:"invalid"`
	DuplicatesInCsv    int `json:"duplicatesInCsv"`
	DuplicatesExisting int `json:"duplicatesExisting"`
	TotalDuplicates    int `json:"totalDuplicates"`
}

// BulkClassification buckets every input row into exactly one of four lists.
type BulkClassification struct {
	Summary            BulkSummary     `json:"summary"`
	Valid              []ClassifiedRow `json:"valid"`
	Invalid            []ClassifiedRow `json:"invalid"`
	DuplicatesInCsv    []ClassifiedRow `json:"duplicatesInCsv"`
	DuplicatesExisting []ClassifiedRow `json:"duplicatesExisting"`
}

// EmailCheck is the outcome of the heuristic email validator.
type EmailCheck struct {
	Email   string `json:"email"`
	IsValid bool   `json:"isValid"`
	Reason  string `json:"reason"`
}
