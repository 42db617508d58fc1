package tools_test

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/hesabyar/hesabyar/internal/model/ledger"
	"github.com/hesabyar/hesabyar/internal/tools"
)

func testTable() *ledger.Table {
	rows := []struct {
		num    string
		debit  int64
		credit int64
		desc   string
	}{
		{"1", 1000000, 500000, "خرید مواد اولیه"},
		{"2", 2000000, 1000000, "پرداخت حقوق"},
		{"3", 1500000, 1500000, "خرید مواد اولیه"},
		{"4", 800000, 2000000, "فروش کالا"},
		{"5", 3000000, 1000000, "پرداخت اجاره"},
	}

	table := &ledger.Table{
		Name:    "accounting_data",
		Columns: []string{ledger.FieldDocNumber, ledger.FieldDebit, ledger.FieldCredit, ledger.FieldDescription},
	}
	for _, r := range rows {
		table.Rows = append(table.Rows, ledger.Row{
			DocNumber:   r.num,
			Debit:       decimal.NewFromInt(r.debit),
			Credit:      decimal.NewFromInt(r.credit),
			Description: r.desc,
		})
	}
	return table
}

func TestCalculatorTotals(t *testing.T) {
	result, err := tools.CalculatorTool{}.Run(context.Background(), testTable(), nil)
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}

	if got := result.Data["total_debit"]; got != "8300000" {
		t.Fatalf("total_debit = %v, want 8300000", got)
	}
	if got := result.Data["total_credit"]; got != "6000000" {
		t.Fatalf("total_credit = %v, want 6000000", got)
	}
	if got := result.Data["balance"]; got != "2300000" {
		t.Fatalf("balance = %v, want 2300000", got)
	}
	// Unbalanced books get a warning line.
	if !strings.Contains(result.Text, "برابر نیستند") {
		t.Fatalf("expected imbalance note in %q", result.Text)
	}
}

func TestCalculatorEmptyTable(t *testing.T) {
	if _, err := (tools.CalculatorTool{}.Run(context.Background(), &ledger.Table{}, nil)); err == nil {
		t.Fatal("expected error for empty table")
	}
	if _, err := (tools.CalculatorTool{}.Run(context.Background(), nil, nil)); err == nil {
		t.Fatal("expected error for nil table")
	}
}

func TestSearchMatchesDescription(t *testing.T) {
	result, err := tools.SearchTool{}.Run(context.Background(), testTable(), tools.Params{"query": "اولیه"})
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}
	if got := result.Data["match_count"]; got != 2 {
		t.Fatalf("match_count = %v, want 2", got)
	}
}

func TestSearchNoMatch(t *testing.T) {
	result, err := tools.SearchTool{}.Run(context.Background(), testTable(), tools.Params{"query": "ناموجود"})
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}
	if got := result.Data["match_count"]; got != 0 {
		t.Fatalf("match_count = %v, want 0", got)
	}
	if result.Text == "" {
		t.Fatal("no-match case still needs user-facing text")
	}
}

func TestFilterExplicitThreshold(t *testing.T) {
	result, err := tools.FilterTool{}.Run(context.Background(), testTable(), tools.Params{"min_amount": "1500000"})
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}
	// Debits strictly above 1500000: rows 2 and 5.
	if got := result.Data["match_count"]; got != 2 {
		t.Fatalf("match_count = %v, want 2", got)
	}
}

func TestFilterDefaultsToAverage(t *testing.T) {
	result, err := tools.FilterTool{}.Run(context.Background(), testTable(), nil)
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}
	// Average debit is 1660000; rows 2 and 5 clear it.
	if got := result.Data["threshold"]; got != "1660000" {
		t.Fatalf("threshold = %v, want 1660000", got)
	}
	if got := result.Data["match_count"]; got != 2 {
		t.Fatalf("match_count = %v, want 2", got)
	}
}

func TestPatternFindsRecurringDescriptions(t *testing.T) {
	result, err := tools.PatternTool{}.Run(context.Background(), testTable(), nil)
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}
	if !strings.Contains(result.Text, "خرید مواد اولیه") {
		t.Fatalf("expected recurring description in %q", result.Text)
	}
	// The largest transaction is the 3000000 debit.
	if !strings.Contains(result.Text, "3000000") {
		t.Fatalf("expected largest transaction in %q", result.Text)
	}
}

func TestSelectStatic(t *testing.T) {
	d := tools.NewDispatcher(nil, nil)

	cases := []struct {
		query string
		want  string
	}{
		{"جمع بدهکارها چقدر است؟", "calculator"},
		{"تراز آزمایشی را حساب کن", "calculator"},
		{"اسناد خرید را پیدا کن", "search"},
		{"اسناد بیشتر از یک میلیون", "filter"},
		{"الگوهای هزینه را تحلیل کن", "pattern"},
		{"find salary documents", "search"},
	}
	for _, tc := range cases {
		got := d.SelectStatic(tc.query)
		if got == nil {
			t.Fatalf("SelectStatic(%q) = nil, want %s", tc.query, tc.want)
		}
		if got.Name() != tc.want {
			t.Fatalf("SelectStatic(%q) = %s, want %s", tc.query, got.Name(), tc.want)
		}
	}

	if got := d.SelectStatic("هوا امروز خوب است"); got != nil {
		t.Fatalf("expected no static match, got %s", got.Name())
	}
}
