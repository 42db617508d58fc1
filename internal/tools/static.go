package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hesabyar/hesabyar/internal/model/ledger"
	"github.com/hesabyar/hesabyar/internal/model/tool"
)

// staticKeywords selects a static tool by category. The first tool whose
// keyword set matches the lowercased query wins; with no match the first
// registered tool is the default.
var staticKeywords = map[string][]string{
	"search":     {"جستجو", "پیدا", "بگرد", "یافتن", "search", "find", "lookup"},
	"filter":     {"فیلتر", "بیشتر از", "کمتر از", "بزرگتر", "کوچکتر", "filter", "above", "below"},
	"calculator": {"جمع", "مجموع", "محاسبه", "تراز", "مانده", "میانگین", "چقدر", "total", "sum", "balance", "calculate", "average"},
	"pattern":    {"الگو", "تحلیل", "روند", "بررسی", "pattern", "trend", "analysis", "analyze"},
}

const resultRowLimit = 10

// formatRow renders one ledger row for user-facing result text.
func formatRow(row ledger.Row) string {
	parts := []string{}
	if row.DocNumber != "" {
		parts = append(parts, "سند "+row.DocNumber)
	}
	if row.DocDate != "" {
		parts = append(parts, row.DocDate)
	}
	parts = append(parts,
		"بدهکار: "+row.Debit.String(),
		"بستانکار: "+row.Credit.String(),
	)
	if row.Description != "" {
		parts = append(parts, row.Description)
	}
	return strings.Join(parts, " | ")
}

// SearchTool finds rows whose description or document number contains the
// query terms.
type SearchTool struct{}

func (SearchTool) Name() string        { return "search" }
func (SearchTool) Description() string { return "جستجوی عبارت در شرح و شماره اسناد حسابداری" }

func (SearchTool) Parameters() []tool.ParamSpec {
	return []tool.ParamSpec{
		{Name: "user_id", Type: "string", Description: "شناسه کاربر", Required: true},
		{Name: "query", Type: "string", Description: "عبارت جستجو", Required: true},
	}
}

func (SearchTool) Run(_ context.Context, table *ledger.Table, params Params) (*tool.Result, error) {
	if table == nil || len(table.Rows) == 0 {
		return nil, fmt.Errorf("no table rows to search")
	}
	if !table.HasColumn(ledger.FieldDescription) && !table.HasColumn(ledger.FieldDocNumber) {
		return &tool.Result{Text: "ستون شرح یا شماره سند در داده‌های شما وجود ندارد و جستجو ممکن نیست."}, nil
	}

	terms := queryTerms(params.String("query"))
	matches := []ledger.Row{}
	for _, row := range table.Rows {
		haystack := strings.ToLower(row.Description + " " + row.DocNumber)
		for _, term := range terms {
			if strings.Contains(haystack, term) {
				matches = append(matches, row)
				break
			}
		}
	}

	if len(matches) == 0 {
		return &tool.Result{
			Text: "هیچ ردیفی مطابق جستجوی شما پیدا نشد.",
			Data: map[string]any{"match_count": 0},
		}, nil
	}

	lines := []string{fmt.Sprintf("%d ردیف مطابق جستجو یافت شد:", len(matches))}
	for i, row := range matches {
		if i == resultRowLimit {
			lines = append(lines, "…")
			break
		}
		lines = append(lines, formatRow(row))
	}

	return &tool.Result{
		Text: strings.Join(lines, "\n"),
		Data: map[string]any{"match_count": len(matches)},
	}, nil
}

// queryTerms lowercases and splits a query, dropping single-rune tokens
// that would match everything.
func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) > 1 {
			terms = append(terms, f)
		}
	}
	if len(terms) == 0 {
		terms = fields
	}
	return terms
}

// FilterTool keeps rows whose debit or credit clears a threshold.
type FilterTool struct{}

func (FilterTool) Name() string        { return "filter" }
func (FilterTool) Description() string { return "فیلتر اسناد بر اساس آستانه مبلغ بدهکار یا بستانکار" }

func (FilterTool) Parameters() []tool.ParamSpec {
	return []tool.ParamSpec{
		{Name: "user_id", Type: "string", Description: "شناسه کاربر", Required: true},
		{Name: "field", Type: "string", Description: "debit یا credit", Required: false},
		{Name: "min_amount", Type: "string", Description: "آستانه مبلغ", Required: false},
	}
}

func (FilterTool) Run(_ context.Context, table *ledger.Table, params Params) (*tool.Result, error) {
	if table == nil || len(table.Rows) == 0 {
		return nil, fmt.Errorf("no table rows to filter")
	}

	field := params.String("field")
	if field != ledger.FieldCredit {
		field = ledger.FieldDebit
	}
	if !table.HasColumn(field) {
		return &tool.Result{Text: fmt.Sprintf("ستون %s در داده‌های شما وجود ندارد و فیلتر ممکن نیست.", field)}, nil
	}

	threshold, err := decimal.NewFromString(params.String("min_amount"))
	if err != nil {
		// Without an explicit threshold, filter above the column average.
		threshold = averageAmount(table, field)
	}

	matches := []ledger.Row{}
	for _, row := range table.Rows {
		if row.Amount(field).GreaterThan(threshold) {
			matches = append(matches, row)
		}
	}

	lines := []string{fmt.Sprintf("%d ردیف با مبلغ %s بیش از %s:", len(matches), field, threshold.String())}
	for i, row := range matches {
		if i == resultRowLimit {
			lines = append(lines, "…")
			break
		}
		lines = append(lines, formatRow(row))
	}

	return &tool.Result{
		Text: strings.Join(lines, "\n"),
		Data: map[string]any{"match_count": len(matches), "threshold": threshold.String()},
	}, nil
}

func averageAmount(table *ledger.Table, field string) decimal.Decimal {
	if len(table.Rows) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, row := range table.Rows {
		sum = sum.Add(row.Amount(field))
	}
	return sum.Div(decimal.NewFromInt(int64(len(table.Rows))))
}

// CalculatorTool computes the table totals and balance.
type CalculatorTool struct{}

func (CalculatorTool) Name() string        { return "calculator" }
func (CalculatorTool) Description() string { return "محاسبه جمع بدهکار، جمع بستانکار و تراز کل اسناد" }

func (CalculatorTool) Parameters() []tool.ParamSpec {
	return []tool.ParamSpec{
		{Name: "user_id", Type: "string", Description: "شناسه کاربر", Required: true},
	}
}

func (CalculatorTool) Run(_ context.Context, table *ledger.Table, _ Params) (*tool.Result, error) {
	if table == nil || len(table.Rows) == 0 {
		return nil, fmt.Errorf("no table rows to calculate")
	}

	debit, credit := table.Totals()
	balance := debit.Sub(credit)

	lines := []string{
		"جمع بدهکار: " + debit.String(),
		"جمع بستانکار: " + credit.String(),
		"تراز (بدهکار منهای بستانکار): " + balance.String(),
		fmt.Sprintf("تعداد اسناد: %d", len(table.Rows)),
	}
	if !balance.IsZero() {
		lines = append(lines, "توجه: جمع بدهکار و بستانکار برابر نیستند.")
	}

	return &tool.Result{
		Text: strings.Join(lines, "\n"),
		Data: map[string]any{
			"total_debit":  debit.String(),
			"total_credit": credit.String(),
			"balance":      balance.String(),
			"row_count":    len(table.Rows),
		},
	}, nil
}

// PatternTool reports recurring descriptions and the largest entries.
type PatternTool struct{}

func (PatternTool) Name() string        { return "pattern" }
func (PatternTool) Description() string { return "تحلیل الگوهای تکرارشونده و تراکنش‌های بزرگ در اسناد" }

func (PatternTool) Parameters() []tool.ParamSpec {
	return []tool.ParamSpec{
		{Name: "user_id", Type: "string", Description: "شناسه کاربر", Required: true},
	}
}

func (PatternTool) Run(_ context.Context, table *ledger.Table, _ Params) (*tool.Result, error) {
	if table == nil || len(table.Rows) == 0 {
		return nil, fmt.Errorf("no table rows to analyze")
	}

	lines := []string{}

	if table.HasColumn(ledger.FieldDescription) {
		counts := map[string]int{}
		for _, row := range table.Rows {
			desc := strings.TrimSpace(row.Description)
			if desc != "" {
				counts[desc]++
			}
		}
		type freq struct {
			desc  string
			count int
		}
		frequent := []freq{}
		for desc, count := range counts {
			if count > 1 {
				frequent = append(frequent, freq{desc, count})
			}
		}
		sort.Slice(frequent, func(i, j int) bool { return frequent[i].count > frequent[j].count })
		if len(frequent) > 0 {
			lines = append(lines, "شرح‌های پرتکرار:")
			for i, f := range frequent {
				if i == 5 {
					break
				}
				lines = append(lines, fmt.Sprintf("- «%s» (%d بار)", f.desc, f.count))
			}
		}
	}

	largest := ledger.Row{}
	largestAmount := decimal.Zero
	for _, row := range table.Rows {
		if amount := decimal.Max(row.Debit, row.Credit); amount.GreaterThan(largestAmount) {
			largestAmount = amount
			largest = row
		}
	}
	if largestAmount.GreaterThan(decimal.Zero) {
		lines = append(lines, "بزرگ‌ترین تراکنش: "+formatRow(largest))
	}

	if balance := table.Balance(); !balance.IsZero() {
		lines = append(lines, "اختلاف تراز اسناد: "+balance.String())
	}

	if len(lines) == 0 {
		lines = append(lines, "الگوی قابل توجهی در داده‌های شما یافت نشد.")
	}

	return &tool.Result{Text: strings.Join(lines, "\n")}, nil
}
