package documents

import "time"

// Kind enumerates billing document types.
type Kind string

const (
	KindInvoice    Kind = "INVOICE"
	KindCreditNote Kind = "CREDIT_NOTE"
	KindStatement  Kind = "STATEMENT"
)

// Valid reports whether the kind is one of the known document types.
func (k Kind) Valid() bool {
	switch k {
	case KindInvoice, KindCreditNote, KindStatement:
		return true
	}
	return false
}

// Status enumerates document lifecycle states.
type Status string

const (
	StatusOpen Status = "OPEN"
	StatusPaid Status = "PAID"
	StatusVoid Status = "VOID"
)

// Document is a billing document issued to a company.
type Document struct {
	ID        int64     `json:"id"`
	Number    string    `json:"number"`
	CompanyID int64     `json:"company_id"`
	Kind      Kind      `json:"kind"`
	Status    Status    `json:"status"`
	Currency  string    `json:"currency"`
	Total     float64   `json:"total"`
	IssuedAt  time.Time `json:"issued_at"`
	DueAt     time.Time `json:"due_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Overdue reports whether the document is open past its due date.
func (d Document) Overdue(now time.Time) bool {
	return d.Status == StatusOpen && d.DueAt.Before(now)
}

// ListQuery restricts and pages a document listing.
type ListQuery struct {
	Kind        Kind
	Status      Status
	OverdueOnly bool
	Search      string
	Page        int
	PerPage     int
}

// KindCount aggregates documents of one kind for the dashboard.
type KindCount struct {
	Kind    Kind    `json:"kind"`
	Open    int     `json:"open"`
	Overdue int     `json:"overdue"`
	Total   float64 `json:"total"`
}
