package billing

// SummaryEntry is one tenant's row in a multi-tenant summary.
// Exactly one of Invoice and Err is set.
type SummaryEntry struct {
	TenantID   string
	TenantName string
	Invoice    *Invoice
	Err        error
}

// Failed reports whether the tenant's computation failed.
func (e SummaryEntry) Failed() bool { return e.Err != nil }

// FailureMessage is the recorded error text, empty on success.
func (e SummaryEntry) FailureMessage() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Summary collects invoices of many tenants for one period.
type Summary struct {
	Period   Period
	Entries  []SummaryEntry
	Total    float64
	Failures int
}

// NewSummary totals successful entries and counts failures.
func NewSummary(period Period, entries []SummaryEntry) Summary {
	s := Summary{Period: period, Entries: entries}
	for _, e := range entries {
		if e.Failed() || e.Invoice == nil {
			s.Failures++
			continue
		}
		s.Total += e.Invoice.Total
	}
	return s
}

// SummaryEntryFor computes one tenant's invoice, capturing any error in the entry.
func SummaryEntryFor(facts Facts, period Period) SummaryEntry {
	entry := SummaryEntry{TenantID: facts.Tenant.ID, TenantName: facts.Tenant.Name}
	inv, err := ComputeInvoice(facts, period)
	if err != nil {
		entry.Err = err
		return entry
	}
	entry.Invoice = &inv
	return entry
}
