package ingest

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/hesabyar/hesabyar/internal/model/ledger"
)

// synonyms maps each canonical field to the bilingual header fragments that
// identify it. Matching is case-insensitive substring containment.
var synonyms = map[string][]string{
	ledger.FieldDocNumber: {
		"شماره سند", "شماره", "سند", "doc", "voucher", "document", "number", "no",
	},
	ledger.FieldDocDate: {
		"تاریخ", "تاريخ", "date",
	},
	ledger.FieldDebit: {
		"بدهکار", "بدهكار", "بدهي", "debit", "dr",
	},
	ledger.FieldCredit: {
		"بستانکار", "بستانكار", "بستان", "credit", "cr",
	},
	ledger.FieldDescription: {
		"شرح", "توضیحات", "توضيحات", "بابت", "description", "desc", "narration",
	},
	ledger.FieldSubsidiaryCode: {
		"معین", "معين", "subsidiary", "sub",
	},
	ledger.FieldDetailCode: {
		"تفصیلی", "تفصيلي", "تفضیلی", "detail",
	},
	ledger.FieldGeneralCode: {
		"کل", "كل", "general", "gl",
	},
	ledger.FieldCounterparty: {
		"طرف حساب", "طرف", "counterparty", "party",
	},
	ledger.FieldBranch: {
		"شعبه", "branch",
	},
}

// fallbackOrder fixes which canonical field wins when a header contains
// synonyms of several. More specific fields come first so "کد معین" does
// not land on general_code via "کل".
var fallbackOrder = []string{
	ledger.FieldDocNumber,
	ledger.FieldDocDate,
	ledger.FieldDebit,
	ledger.FieldCredit,
	ledger.FieldDescription,
	ledger.FieldSubsidiaryCode,
	ledger.FieldDetailCode,
	ledger.FieldCounterparty,
	ledger.FieldBranch,
	ledger.FieldGeneralCode,
}

// FallbackMapping matches headers against the synonym lists. Every header
// gets an entry: unmatched ones map to themselves. The fallback never fails
// and always reports low confidence.
func FallbackMapping(headers []string) *ledger.ColumnMapping {
	fields := make(map[string]string, len(headers))
	taken := make(map[string]bool)

	for _, header := range headers {
		normalized := strings.ToLower(strings.TrimSpace(header))
		mapped := header
		for _, field := range fallbackOrder {
			if taken[field] {
				continue
			}
			if matchesAny(normalized, synonyms[field]) {
				mapped = field
				taken[field] = true
				break
			}
		}
		fields[header] = mapped
	}

	return &ledger.ColumnMapping{
		Fields:     fields,
		Confidence: ledger.ConfidenceLow,
		Source:     "fallback",
	}
}

func matchesAny(header string, fragments []string) bool {
	for _, fragment := range fragments {
		if strings.Contains(header, fragment) {
			return true
		}
	}
	return false
}

// BuildTable applies the mapping to the raw grid and coerces values.
// Monetary cells that fail to parse become zero; dirty data is expected.
func BuildTable(headers []string, dataRows [][]string, mapping *ledger.ColumnMapping) *ledger.Table {
	columns := make([]string, len(headers))
	for i, header := range headers {
		columns[i] = mapping.Canonical(header)
	}

	rows := make([]ledger.Row, 0, len(dataRows))
	for _, raw := range dataRows {
		row := ledger.Row{}
		for i, column := range columns {
			if i >= len(raw) {
				break
			}
			value := strings.TrimSpace(raw[i])
			switch column {
			case ledger.FieldDocNumber:
				row.DocNumber = foldDigits(value)
			case ledger.FieldDocDate:
				row.DocDate = NormalizeDate(value)
			case ledger.FieldDebit:
				row.Debit = ParseAmount(value)
			case ledger.FieldCredit:
				row.Credit = ParseAmount(value)
			case ledger.FieldDescription:
				row.Description = value
			case ledger.FieldSubsidiaryCode:
				row.SubsidiaryCode = foldDigits(value)
			case ledger.FieldDetailCode:
				row.DetailCode = foldDigits(value)
			case ledger.FieldGeneralCode:
				row.GeneralCode = foldDigits(value)
			case ledger.FieldCounterparty:
				row.Counterparty = value
			case ledger.FieldBranch:
				row.Branch = value
			default:
				if row.Extra == nil {
					row.Extra = make(map[string]string)
				}
				row.Extra[column] = value
			}
		}
		rows = append(rows, row)
	}

	return &ledger.Table{
		Name:    "accounting_data",
		Columns: columns,
		Rows:    rows,
	}
}

// ParseAmount coerces a locale-formatted monetary string. Thousands
// separators and whitespace are stripped, Persian and Arabic-Indic digits
// folded to ASCII. Unparsable input yields zero; amounts are kept
// non-negative.
func ParseAmount(value string) decimal.Decimal {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == ',' || r == '٬' || r == '‏' || unicode.IsSpace(r):
			return -1
		case r == '٫':
			return '.'
		}
		return foldDigit(r)
	}, strings.TrimSpace(value))

	if cleaned == "" {
		return decimal.Zero
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return amount.Abs()
}

// NormalizeDate zero-pads date segments into the YYYY/MM/DD shape without
// calendar conversion; the string may be a Jalali date.
func NormalizeDate(value string) string {
	cleaned := foldDigits(strings.TrimSpace(value))
	cleaned = strings.NewReplacer("-", "/", ".", "/").Replace(cleaned)

	parts := strings.Split(cleaned, "/")
	if len(parts) != 3 {
		return cleaned
	}

	year := strings.TrimSpace(parts[0])
	month := padSegment(parts[1])
	day := padSegment(parts[2])
	return year + "/" + month + "/" + day
}

func padSegment(s string) string {
	s = strings.TrimSpace(s)
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// foldDigits rewrites Persian and Arabic-Indic digits as ASCII.
func foldDigits(s string) string {
	return strings.Map(foldDigit, s)
}

func foldDigit(r rune) rune {
	switch {
	case r >= '۰' && r <= '۹': // Persian
		return '0' + (r - '۰')
	case r >= '٠' && r <= '٩': // Arabic-Indic
		return '0' + (r - '٠')
	}
	return r
}
