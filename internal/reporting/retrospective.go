// Package reporting keeps a journal of purchase attempts and summarizes it.
package reporting

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusSuccess  = "success"
	StatusFailure  = "failure"
	StatusRedirect = "redirect"
)

// Entry is one terminal purchase outcome.
type Entry struct {
	Timestamp time.Time       `json:"timestamp"`
	OrderID   string          `json:"order_id,omitempty"`
	Backend   string          `json:"backend"`
	Phase     string          `json:"phase"`
	Status    string          `json:"status"`
	Kind      string          `json:"kind,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Message   string          `json:"message,omitempty"`
}

const defaultJournalSize = 1024

// Journal is a bounded in-memory ring of entries.
type Journal struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

func NewJournal(size int) *Journal {
	if size <= 0 {
		size = defaultJournalSize
	}
	return &Journal{entries: make([]Entry, size)}
}

func (j *Journal) Record(e Entry) {
	if j == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[j.next] = e
	j.next = (j.next + 1) % len(j.entries)
	if j.next == 0 {
		j.full = true
	}
}

// Entries returns a copy, oldest first.
func (j *Journal) Entries() []Entry {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.full {
		out := make([]Entry, j.next)
		copy(out, j.entries[:j.next])
		return out
	}
	out := make([]Entry, 0, len(j.entries))
	out = append(out, j.entries[j.next:]...)
	return append(out, j.entries[:j.next]...)
}

// Report summarizes a set of entries.
type Report struct {
	TotalAttempts    int                        `json:"total_attempts"`
	Successful       int                        `json:"successful"`
	Failed           int                        `json:"failed"`
	Redirects        int                        `json:"redirects"`
	AmountByCurrency map[string]decimal.Decimal `json:"amount_by_currency"`
	FailuresByKind   map[string]int             `json:"failures_by_kind"`
	BackendUsage     map[string]int             `json:"backend_usage"`
	DateFrom         time.Time                  `json:"date_from"`
	DateTo           time.Time                  `json:"date_to"`
	Duration         time.Duration              `json:"duration"`
}

type RetrospectiveReporter struct{}

func NewRetrospectiveReporter() *RetrospectiveReporter {
	return &RetrospectiveReporter{}
}

// Generate folds entries into a Report. Only successful purchases count
// toward AmountByCurrency.
func (rr *RetrospectiveReporter) Generate(entries []Entry) *Report {
	report := &Report{
		AmountByCurrency: make(map[string]decimal.Decimal),
		FailuresByKind:   make(map[string]int),
		BackendUsage:     make(map[string]int),
	}

	for i, e := range entries {
		report.TotalAttempts++

		if i == 0 || e.Timestamp.Before(report.DateFrom) {
			report.DateFrom = e.Timestamp
		}
		if i == 0 || e.Timestamp.After(report.DateTo) {
			report.DateTo = e.Timestamp
		}

		if e.Backend != "" {
			report.BackendUsage[e.Backend]++
		}

		switch e.Status {
		case StatusSuccess:
			report.Successful++
			report.AmountByCurrency[e.Currency] = report.AmountByCurrency[e.Currency].Add(e.Amount)
		case StatusFailure:
			report.Failed++
			if e.Kind != "" {
				report.FailuresByKind[e.Kind]++
			}
		case StatusRedirect:
			report.Redirects++
		}
	}

	report.Duration = report.DateTo.Sub(report.DateFrom)
	return report
}
