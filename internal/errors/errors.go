package appErrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state")
	ErrMissingTemplate    = errors.New("no template linked to this campaign")
	ErrNoRecipients       = errors.New("no valid recipients found for this user")
	ErrStoreFault         = errors.New("store unavailable")
	ErrDuplicateRecipient = errors.New("recipient with this email already exists for this user")
	ErrEmailTaken         = errors.New("user with that email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// NotFoundError covers both absent and not-owned entities; callers cannot tell them apart.
type NotFoundError struct {
	Entity string
	ID     int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func NewNotFound(entity string, id int) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// NewCampaignNotFound is kept for the campaign lookups that predate NotFoundError.
func NewCampaignNotFound(id int) error {
	return NewNotFound("campaign", id)
}

type InvalidStateError struct {
	CampaignID int
	Status     string
	Op         string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("campaign %d cannot %s in status %s", e.CampaignID, e.Op, e.Status)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

func NewInvalidState(campaignID int, status, op string) error {
	return &InvalidStateError{CampaignID: campaignID, Status: status, Op: op}
}

// TransportError is a per-recipient delivery failure. It never fails a dispatch.
type TransportError struct {
	Recipient string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.Recipient, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type storeFault struct {
	op  string
	err error
}

func (e *storeFault) Error() string { return fmt.Sprintf("%s: %v", e.op, e.err) }

func (e *storeFault) Unwrap() []error { return []error{ErrStoreFault, e.err} }

// NewStoreFault marks err as a persistence failure while keeping it inspectable.
func NewStoreFault(op string, err error) error {
	if err == nil {
		return nil
	}
	return &storeFault{op: op, err: err}
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
