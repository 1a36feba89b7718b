package domain

import (
	"time"
)

// Operation is the kind of mutation applied to an address.
type Operation string

const (
	OpAdd     Operation = "add"
	OpRemove  Operation = "remove"
	OpReplace Operation = "replace"
	// OpExpand marks an address spec that could not be expanded during collection.
	OpExpand Operation = "expand"
)

// OutcomeStatus is the result of one mutation.
type OutcomeStatus string

const (
	StatusSuccess OutcomeStatus = "success"
	StatusError   OutcomeStatus = "error"
)

// Outcome is the result for a single address.
type Outcome struct {
	Pairing    string        `json:"pairing"`
	Target     string        `json:"target"`
	Address    Address       `json:"address"`
	Operation  Operation     `json:"operation"`
	Status     OutcomeStatus `json:"status"`
	Message    string        `json:"message,omitempty"`
	HTTPStatus int           `json:"http_status,omitempty"`
	Err        error         `json:"-"`
}

// PairingFailure records a pairing whose reconciliation was aborted.
type PairingFailure struct {
	Pairing string `json:"pairing"`
	Stage   string `json:"stage"`
	Error   string `json:"error"`
	Err     error  `json:"-"`
}

// Plan is the change set computed for one pairing.
type Plan struct {
	Pairing    string    `json:"pairing"`
	Target     string    `json:"target"`
	Collection string    `json:"collection"`
	Mode       string    `json:"mode"`
	Additions  []Address `json:"additions"`
	Removals   []Address `json:"removals"`
	Applied    bool      `json:"applied"`
}

// SyncReport aggregates the outcomes of one run.
type SyncReport struct {
	RunID           string           `json:"run_id,omitempty"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`
	Successes       int              `json:"successes"`
	Failures        int              `json:"failures"`
	Outcomes        []Outcome        `json:"outcomes"`
	PairingFailures []PairingFailure `json:"pairing_failures,omitempty"`
	Plans           []Plan           `json:"plans,omitempty"`
}

// Record appends an outcome and updates the tally.
func (r *SyncReport) Record(o Outcome) {
	if o.Status == StatusSuccess {
		r.Successes++
	} else {
		r.Failures++
	}
	r.Outcomes = append(r.Outcomes, o)
}

// RecordPairingFailure marks a whole pairing as failed. It counts as one failure.
func (r *SyncReport) RecordPairingFailure(f PairingFailure) {
	if f.Err != nil && f.Error == "" {
		f.Error = f.Err.Error()
	}
	r.Failures++
	r.PairingFailures = append(r.PairingFailures, f)
}

// Merge folds other into r.
func (r *SyncReport) Merge(other *SyncReport) {
	if other == nil {
		return
	}
	r.Successes += other.Successes
	r.Failures += other.Failures
	r.Outcomes = append(r.Outcomes, other.Outcomes...)
	r.PairingFailures = append(r.PairingFailures, other.PairingFailures...)
	r.Plans = append(r.Plans, other.Plans...)
}

// HasFailures reports whether any outcome or pairing failed.
func (r *SyncReport) HasFailures() bool {
	return r.Failures > 0
}

// ResponseStatus classifies a provider response.
type ResponseStatus int

const (
	ResponseSuccess ResponseStatus = iota
	ResponseRateLimited
	ResponseError
)

// String returns a readable status name.
func (s ResponseStatus) String() string {
	switch s {
	case ResponseSuccess:
		return "success"
	case ResponseRateLimited:
		return "rate_limited"
	default:
		return "error"
	}
}

// Response is a provider's classification of a single call.
type Response struct {
	Status     ResponseStatus
	HTTPStatus int
	Message    string
	// RetryAfter is an explicit wait requested by the provider on a rate-limited response.
	RetryAfter time.Duration
}

// OK returns a success response with the given HTTP status.
func OK(httpStatus int) *Response {
	return &Response{Status: ResponseSuccess, HTTPStatus: httpStatus}
}
