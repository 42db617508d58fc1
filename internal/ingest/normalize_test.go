package ingest_test

import (
	"testing"

	"github.com/hesabyar/hesabyar/internal/ingest"
	"github.com/hesabyar/hesabyar/internal/model/ledger"
)

func TestFallbackMappingCoversEveryHeader(t *testing.T) {
	headers := []string{"شماره سند", "تاریخ", "بدهکار", "بستانکار", "شرح", "ستون ناشناخته"}

	mapping := ingest.FallbackMapping(headers)

	if len(mapping.Fields) != len(headers) {
		t.Fatalf("expected an entry per header, got %d for %d headers", len(mapping.Fields), len(headers))
	}
	if mapping.Confidence != ledger.ConfidenceLow {
		t.Fatalf("fallback must report low confidence, got %s", mapping.Confidence)
	}

	expected := map[string]string{
		"شماره سند":     ledger.FieldDocNumber,
		"تاریخ":         ledger.FieldDocDate,
		"بدهکار":        ledger.FieldDebit,
		"بستانکار":      ledger.FieldCredit,
		"شرح":           ledger.FieldDescription,
		"ستون ناشناخته": "ستون ناشناخته", // identity for unrecognized headers
	}
	for raw, want := range expected {
		if got := mapping.Fields[raw]; got != want {
			t.Fatalf("header %q mapped to %q, want %q", raw, got, want)
		}
	}
}

func TestFallbackMappingEnglishHeaders(t *testing.T) {
	mapping := ingest.FallbackMapping([]string{"Doc Number", "Date", "Debit", "Credit", "Description"})

	wants := []string{
		ledger.FieldDocNumber,
		ledger.FieldDocDate,
		ledger.FieldDebit,
		ledger.FieldCredit,
		ledger.FieldDescription,
	}
	for raw, want := range map[string]string{
		"Doc Number":  wants[0],
		"Date":        wants[1],
		"Debit":       wants[2],
		"Credit":      wants[3],
		"Description": wants[4],
	} {
		if got := mapping.Fields[raw]; got != want {
			t.Fatalf("header %q mapped to %q, want %q", raw, got, want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1,000,000", "1000000"},
		{"۲۵۰٬۰۰۰", "250000"},   // Persian digits with Persian thousands separator
		{"٥٠٠", "500"},          // Arabic-Indic digits
		{" 1 200 ", "1200"},     // stray whitespace
		{"-3000", "3000"},       // amounts are kept non-negative
		{"12٫5", "12.5"},        // Persian decimal separator
		{"", "0"},
		{"نامشخص", "0"},         // dirty data coerces to zero
	}

	for _, tc := range cases {
		if got := ingest.ParseAmount(tc.in).String(); got != tc.want {
			t.Fatalf("ParseAmount(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1402/1/5", "1402/01/05"},
		{"1402-01-05", "1402/01/05"},
		{"۱۴۰۲/۱/۵", "1402/01/05"}, // Persian digits folded, calendar untouched
		{"2024/12/31", "2024/12/31"},
		{"نامشخص", "نامشخص"}, // non-date strings pass through
	}

	for _, tc := range cases {
		if got := ingest.NormalizeDate(tc.in); got != tc.want {
			t.Fatalf("NormalizeDate(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
