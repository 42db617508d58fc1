package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Canonical field names every uploaded spreadsheet is normalized to.
const (
	FieldDocNumber      = "doc_number"
	FieldDocDate        = "doc_date"
	FieldDebit          = "debit"
	FieldCredit         = "credit"
	FieldDescription    = "description"
	FieldSubsidiaryCode = "subsidiary_code"
	FieldDetailCode     = "detail_code"
	FieldGeneralCode    = "general_code"
	FieldCounterparty   = "counterparty"
	FieldBranch         = "branch"
)

// CanonicalFields lists the fixed vocabulary in a stable order.
var CanonicalFields = []string{
	FieldDocNumber,
	FieldDocDate,
	FieldDebit,
	FieldCredit,
	FieldDescription,
	FieldSubsidiaryCode,
	FieldDetailCode,
	FieldGeneralCode,
	FieldCounterparty,
	FieldBranch,
}

// IsCanonical reports whether name belongs to the canonical vocabulary.
func IsCanonical(name string) bool {
	for _, f := range CanonicalFields {
		if f == name {
			return true
		}
	}
	return false
}

// Row is a normalized ledger entry. DocDate stays a string in YYYY/MM/DD
// shape so non-Gregorian calendars survive round trips. Debit and credit are
// independently non-negative; the table balance may legitimately be nonzero.
type Row struct {
	DocNumber      string            `json:"doc_number,omitempty"`
	DocDate        string            `json:"doc_date,omitempty"`
	Debit          decimal.Decimal   `json:"debit"`
	Credit         decimal.Decimal   `json:"credit"`
	Description    string            `json:"description,omitempty"`
	SubsidiaryCode string            `json:"subsidiary_code,omitempty"`
	DetailCode     string            `json:"detail_code,omitempty"`
	GeneralCode    string            `json:"general_code,omitempty"`
	Counterparty   string            `json:"counterparty,omitempty"`
	Branch         string            `json:"branch,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// Table holds one user's parsed accounting data.
type Table struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// HasColumn reports whether the table carries the named column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Totals returns the debit and credit sums over all rows.
func (t *Table) Totals() (debit, credit decimal.Decimal) {
	for _, row := range t.Rows {
		debit = debit.Add(row.Debit)
		credit = credit.Add(row.Credit)
	}
	return debit, credit
}

// Balance is sum(debit) - sum(credit). Imbalance is a reportable condition,
// not an error.
func (t *Table) Balance() decimal.Decimal {
	debit, credit := t.Totals()
	return debit.Sub(credit)
}

// Field returns the canonical field value of a row by name. The second
// return is false when the field is not part of the vocabulary.
func (r *Row) Field(name string) (string, bool) {
	switch name {
	case FieldDocNumber:
		return r.DocNumber, true
	case FieldDocDate:
		return r.DocDate, true
	case FieldDebit:
		return r.Debit.String(), true
	case FieldCredit:
		return r.Credit.String(), true
	case FieldDescription:
		return r.Description, true
	case FieldSubsidiaryCode:
		return r.SubsidiaryCode, true
	case FieldDetailCode:
		return r.DetailCode, true
	case FieldGeneralCode:
		return r.GeneralCode, true
	case FieldCounterparty:
		return r.Counterparty, true
	case FieldBranch:
		return r.Branch, true
	}
	if v, ok := r.Extra[name]; ok {
		return v, true
	}
	return "", false
}

// Amount returns the numeric value of a field, zero when the field is not
// numeric or absent.
func (r *Row) Amount(name string) decimal.Decimal {
	switch name {
	case FieldDebit:
		return r.Debit
	case FieldCredit:
		return r.Credit
	}
	if v, ok := r.Extra[name]; ok {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return decimal.Zero
}

// UploadEvent records one processed upload for a user.
type UploadEvent struct {
	Filename    string            `json:"filename"`
	RowCount    int               `json:"rowCount"`
	Mapping     map[string]string `json:"mapping"`
	Confidence  string            `json:"confidence"`
	TotalDebit  decimal.Decimal   `json:"totalDebit"`
	TotalCredit decimal.Decimal   `json:"totalCredit"`
	UploadedAt  time.Time         `json:"uploadedAt"`
}
