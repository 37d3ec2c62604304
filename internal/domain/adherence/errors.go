package adherence

import "errors"

var (
	// ErrNotFound covers both a missing alert and one the caller may not see.
	ErrNotFound = errors.New("not found")
	// ErrNotUnderCare means the doctor has no active care relationship with the patient.
	ErrNotUnderCare = errors.New("patient not under your care")
	// ErrAlertNotPending is returned when resolving an alert that is already resolved or ignored.
	ErrAlertNotPending = errors.New("alert is not pending")
	// ErrInvalidInput is wrapped with a description of the offending field.
	ErrInvalidInput = errors.New("invalid input")
)
