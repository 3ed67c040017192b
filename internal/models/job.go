package models

import "time"

type JobType string

const (
	JobTypeBillAll       JobType = "bill_all"
	JobTypeSendUnsent    JobType = "send_unsent_invoices"
	JobTypeSepaExport    JobType = "sepa_export"
	JobTypePaymentImport JobType = "payment_import"
)

// Job is the audit record of one batch operation.
type Job struct {
	ID       int        `json:"id"`
	Type     JobType    `json:"type"`
	Note     string     `json:"note,omitempty"`
	Started  time.Time  `json:"started"`
	Finished *time.Time `json:"finished,omitempty"`
	UserID   *int       `json:"user_id,omitempty"`
}
