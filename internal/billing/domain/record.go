package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// invoiceNamespace scopes deterministic invoice ids.
var invoiceNamespace = uuid.MustParse("6f1c3d0e-58a4-4b8e-9d67-2f1b7c0a9e41")

// InvoiceAdjustment is a signed monetary correction applied to a stored invoice.
type InvoiceAdjustment struct {
	ID          string
	InvoiceID   string
	Amount      float64
	Description string
	CreatedAt   time.Time
}

// InvoiceRecord is the persisted form of an invoice.
// Recomputing a tenant/period yields the same ID, so storing it upserts.
type InvoiceRecord struct {
	ID          string
	TenantID    string
	Period      Period
	Currency    string
	Invoice     Invoice
	Fingerprint string
	// PublishedFingerprint is the fingerprint last announced to publishers.
	PublishedFingerprint string
	Adjustments          []InvoiceAdjustment
	// Amount is the rounded invoice total plus all adjustments.
	Amount    float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BuildInvoiceID derives the record id from tenant and period.
func BuildInvoiceID(tenantID string, period Period) (string, error) {
	if tenantID == "" {
		return "", ErrEmptyTenantID
	}
	if err := period.Validate(); err != nil {
		return "", err
	}
	return uuid.NewSHA1(invoiceNamespace, []byte(tenantID+"|"+period.Key())).String(), nil
}

// NewInvoiceRecord wraps a computed invoice for storage.
func NewInvoiceRecord(inv Invoice, currency string, now time.Time) (*InvoiceRecord, error) {
	id, err := BuildInvoiceID(inv.TenantID, inv.Period)
	if err != nil {
		return nil, err
	}
	r := &InvoiceRecord{
		ID:        id,
		TenantID:  inv.TenantID,
		Period:    inv.Period,
		Currency:  currency,
		CreatedAt: now.UTC(),
	}
	if err := r.Refresh(inv, now); err != nil {
		return nil, err
	}
	return r, nil
}

// Refresh replaces the computed invoice, keeping adjustments.
func (r *InvoiceRecord) Refresh(inv Invoice, now time.Time) error {
	if inv.TenantID != r.TenantID || !inv.Period.Equal(r.Period) {
		return errors.New("billing: invoice does not belong to record")
	}
	fp, err := Fingerprint(inv)
	if err != nil {
		return err
	}
	r.Invoice = inv
	r.Fingerprint = fp
	r.UpdatedAt = now.UTC()
	r.recalculate()
	return nil
}

// Unpublished reports whether the current content has not been announced yet.
func (r *InvoiceRecord) Unpublished() bool {
	return r.PublishedFingerprint != r.Fingerprint
}

// MarkPublished records that the current content was announced.
func (r *InvoiceRecord) MarkPublished() {
	r.PublishedFingerprint = r.Fingerprint
}

// AddAdjustment appends a correction and updates the amount.
func (r *InvoiceRecord) AddAdjustment(amount float64, description string, now time.Time) (InvoiceAdjustment, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return InvoiceAdjustment{}, errors.New("billing: adjustment description required")
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return InvoiceAdjustment{}, ErrNonFiniteValue
	}
	adj := InvoiceAdjustment{
		ID:          uuid.NewString(),
		InvoiceID:   r.ID,
		Amount:      amount,
		Description: description,
		CreatedAt:   now.UTC(),
	}
	r.Adjustments = append(r.Adjustments, adj)
	r.UpdatedAt = now.UTC()
	r.recalculate()
	return adj, nil
}

func (r *InvoiceRecord) recalculate() {
	amount := decimal.NewFromFloat(r.Invoice.Total).Round(2)
	for _, adj := range r.Adjustments {
		amount = amount.Add(decimal.NewFromFloat(adj.Amount))
	}
	r.Amount = amount.Round(2).InexactFloat64()
}

// Clone returns a deep copy.
func (r *InvoiceRecord) Clone() *InvoiceRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Invoice.LineItems = append([]LineItem(nil), r.Invoice.LineItems...)
	c.Invoice.Subtotals = append([]Subtotal(nil), r.Invoice.Subtotals...)
	c.Invoice.Deductions = append([]DeductionInfo(nil), r.Invoice.Deductions...)
	c.Invoice.Anomalies = append([]NegativeConsumptionClamped(nil), r.Invoice.Anomalies...)
	c.Adjustments = append([]InvoiceAdjustment(nil), r.Adjustments...)
	return &c
}

// Fingerprint hashes the computed content of an invoice. Equal facts give
// equal fingerprints.
func Fingerprint(inv Invoice) (string, error) {
	payload, err := json.Marshal(struct {
		TenantID string
		Period   string
		Items    []LineItem
		Totals   []Subtotal
		Total    float64
	}{inv.TenantID, inv.Period.Key(), inv.LineItems, inv.Subtotals, inv.Total})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
