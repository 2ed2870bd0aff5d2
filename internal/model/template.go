// internal/model/template.go
package model

import "time"

type Template struct {
	ID        int        `db:"id" json:"id"`
	OwnerID   int        `db:"user_id" json:"userId"`
	Name      string     `db:"name" json:"name"`
	Subject   string     `db:"subject" json:"subject"`
	Body      string     `db:"body" json:"body"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
}
