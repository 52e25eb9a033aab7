package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/hoa-ledger/generic"
)

// =============================================================================
// JSON DOCUMENTS - Column payloads
// =============================================================================

// paymentRecord is the stored shape of a bill payment entry. Legacy slot
// arrays used the same keys without transaction_id.
type paymentRecord struct {
	Amount         int64             `json:"amount"`
	BaseChargePaid int64             `json:"base_charge_paid,omitempty"`
	PenaltyPaid    int64             `json:"penalty_paid,omitempty"`
	Date           generic.TimePoint `json:"date"`
	Method         string            `json:"method,omitempty"`
	Reference      string            `json:"reference,omitempty"`
	TransactionID  string            `json:"transaction_id,omitempty"`
	RecordedAt     *time.Time        `json:"recorded_at,omitempty"`
}

func toPaymentRecord(p generic.PaymentEntry) paymentRecord {
	rec := paymentRecord{
		Amount:         int64(p.Amount),
		BaseChargePaid: int64(p.BaseChargePaid),
		PenaltyPaid:    int64(p.PenaltyPaid),
		Date:           p.Date,
		Method:         string(p.Method),
		Reference:      p.Reference,
		TransactionID:  string(p.TransactionID),
	}
	if !p.RecordedAt.IsZero() {
		t := p.RecordedAt.UTC()
		rec.RecordedAt = &t
	}
	return rec
}

func (r paymentRecord) entry() generic.PaymentEntry {
	p := generic.PaymentEntry{
		Amount:         generic.Cents(r.Amount),
		BaseChargePaid: generic.Cents(r.BaseChargePaid),
		PenaltyPaid:    generic.Cents(r.PenaltyPaid),
		Date:           r.Date,
		Method:         generic.PaymentMethod(r.Method),
		Reference:      r.Reference,
		TransactionID:  generic.TransactionID(r.TransactionID),
	}
	if r.RecordedAt != nil {
		p.RecordedAt = *r.RecordedAt
	}
	// Legacy slot: the reference is the paying transaction and the whole
	// amount went to the base charge.
	if p.TransactionID == "" && r.Reference != "" {
		p.TransactionID = generic.TransactionID(r.Reference)
		if p.BaseChargePaid == 0 && p.PenaltyPaid == 0 {
			p.BaseChargePaid = p.Amount
		}
	}
	return p
}

func encodePayments(entries []generic.PaymentEntry) (string, error) {
	recs := make([]paymentRecord, 0, len(entries))
	for _, p := range entries {
		recs = append(recs, toPaymentRecord(p))
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return "", fmt.Errorf("encode payments: %w", err)
	}
	return string(data), nil
}

// normalizePayments decodes either the open list or the legacy 12-slot
// array. Null and empty slots are dropped.
func normalizePayments(raw string) ([]generic.PaymentEntry, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var slots []*paymentRecord
	if err := json.Unmarshal([]byte(raw), &slots); err != nil {
		return nil, fmt.Errorf("decode payments: %w", err)
	}
	var out []generic.PaymentEntry
	for _, s := range slots {
		if s == nil || (s.Amount == 0 && s.TransactionID == "" && s.Reference == "") {
			continue
		}
		out = append(out, s.entry())
	}
	return out, nil
}

// monthRecord is one slot of a dues record's months_json array.
type monthRecord struct {
	Amount    int64             `json:"amount"`
	Date      generic.TimePoint `json:"date"`
	Reference string            `json:"reference,omitempty"`
	Notes     string            `json:"notes,omitempty"`
	Entries   []paymentRecord   `json:"entries,omitempty"`
}

func encodeMonths(months [generic.MonthsPerYear]generic.MonthPayment) (string, error) {
	recs := make([]monthRecord, 0, generic.MonthsPerYear)
	for _, m := range months {
		rec := monthRecord{
			Amount:    int64(m.Amount),
			Date:      m.Date,
			Reference: m.Reference,
			Notes:     m.Notes,
		}
		for _, e := range m.Entries {
			rec.Entries = append(rec.Entries, toPaymentRecord(e))
		}
		recs = append(recs, rec)
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return "", fmt.Errorf("encode months: %w", err)
	}
	return string(data), nil
}

func decodeMonths(raw string) ([generic.MonthsPerYear]generic.MonthPayment, error) {
	var months [generic.MonthsPerYear]generic.MonthPayment
	var recs []*monthRecord
	if err := json.Unmarshal([]byte(raw), &recs); err != nil {
		return months, fmt.Errorf("decode months: %w", err)
	}
	if len(recs) > generic.MonthsPerYear {
		return months, fmt.Errorf("decode months: %d slots", len(recs))
	}
	for i, r := range recs {
		if r == nil {
			continue
		}
		months[i] = generic.MonthPayment{
			Amount:    generic.Cents(r.Amount),
			Date:      r.Date,
			Reference: r.Reference,
			Notes:     r.Notes,
		}
		for _, e := range r.Entries {
			months[i].Entries = append(months[i].Entries, e.entry())
		}
	}
	return months, nil
}

// encodeJSON marshals a document column. nil maps to SQL NULL.
func encodeJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeJSON(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseDate(s string) generic.TimePoint {
	if s == "" {
		return generic.TimePoint{}
	}
	tp, _ := generic.ParseDate(s)
	return tp
}
