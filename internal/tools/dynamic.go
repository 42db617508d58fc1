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

// DynamicTool executes a persisted definition. Definitions are data-driven
// configurations interpreted against the table; nothing generated at
// runtime is ever executed as code.
type DynamicTool struct {
	def *tool.Definition
}

// NewDynamicTool wraps a stored definition.
func NewDynamicTool(def *tool.Definition) *DynamicTool {
	return &DynamicTool{def: def}
}

func (t *DynamicTool) Name() string                 { return t.def.Name }
func (t *DynamicTool) Description() string          { return t.def.Description }
func (t *DynamicTool) Parameters() []tool.ParamSpec { return t.def.Parameters }

// Definition exposes the underlying record for registry bookkeeping.
func (t *DynamicTool) Definition() *tool.Definition { return t.def }

// Run interprets the operation list in order. Filters narrow the working
// row set; aggregations emit output lines.
func (t *DynamicTool) Run(_ context.Context, table *ledger.Table, params Params) (*tool.Result, error) {
	if table == nil || len(table.Rows) == 0 {
		return nil, fmt.Errorf("no table rows to evaluate")
	}

	rows := table.Rows
	lines := []string{}
	data := map[string]any{}

	for _, op := range t.def.Operations {
		operand := resolveOperand(op.Value, params)

		switch op.Op {
		case tool.OpFilterEq:
			rows = filterRows(rows, op.Field, func(v string, _ decimal.Decimal) bool {
				return strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(operand))
			})
		case tool.OpFilterContains:
			needle := strings.ToLower(strings.TrimSpace(operand))
			rows = filterRows(rows, op.Field, func(v string, _ decimal.Decimal) bool {
				return strings.Contains(strings.ToLower(v), needle)
			})
		case tool.OpFilterGt:
			threshold, err := decimal.NewFromString(operand)
			if err != nil {
				return nil, fmt.Errorf("filter_gt on %s: bad operand %q", op.Field, operand)
			}
			rows = filterRows(rows, op.Field, func(_ string, amount decimal.Decimal) bool {
				return amount.GreaterThan(threshold)
			})
		case tool.OpFilterLt:
			threshold, err := decimal.NewFromString(operand)
			if err != nil {
				return nil, fmt.Errorf("filter_lt on %s: bad operand %q", op.Field, operand)
			}
			rows = filterRows(rows, op.Field, func(_ string, amount decimal.Decimal) bool {
				return amount.LessThan(threshold)
			})
		case tool.OpSum:
			total := sumRows(rows, op.Field)
			lines = append(lines, fmt.Sprintf("جمع %s: %s", fieldLabel(op.Field), total.String()))
			data["sum_"+op.Field] = total.String()
		case tool.OpAvg:
			if len(rows) == 0 {
				lines = append(lines, fmt.Sprintf("میانگین %s: 0", fieldLabel(op.Field)))
				continue
			}
			avg := sumRows(rows, op.Field).Div(decimal.NewFromInt(int64(len(rows))))
			lines = append(lines, fmt.Sprintf("میانگین %s: %s", fieldLabel(op.Field), avg.String()))
			data["avg_"+op.Field] = avg.String()
		case tool.OpMin, tool.OpMax:
			value, ok := extremum(rows, op.Field, op.Op == tool.OpMax)
			if ok {
				label := "کمترین"
				if op.Op == tool.OpMax {
					label = "بیشترین"
				}
				lines = append(lines, fmt.Sprintf("%s %s: %s", label, fieldLabel(op.Field), value.String()))
				data[op.Op+"_"+op.Field] = value.String()
			}
		case tool.OpCount:
			lines = append(lines, fmt.Sprintf("تعداد ردیف‌ها: %d", len(rows)))
			data["count"] = len(rows)
		case tool.OpGroupSum:
			lines = append(lines, groupSum(rows, op.Field, operand)...)
		default:
			return nil, fmt.Errorf("operation %q is not in the whitelist", op.Op)
		}
	}

	if len(lines) == 0 {
		lines = append(lines, fmt.Sprintf("%d ردیف مطابق شرایط یافت شد.", len(rows)))
		data["count"] = len(rows)
	}

	return &tool.Result{Text: strings.Join(lines, "\n"), Data: data}, nil
}

// resolveOperand lets an operation reference a runtime parameter by name;
// otherwise the operand is a literal.
func resolveOperand(value string, params Params) string {
	if params != nil {
		if v := params.String(value); v != "" {
			return v
		}
	}
	return value
}

func filterRows(rows []ledger.Row, field string, keep func(string, decimal.Decimal) bool) []ledger.Row {
	out := rows[:0:0]
	for _, row := range rows {
		v, _ := row.Field(field)
		if keep(v, row.Amount(field)) {
			out = append(out, row)
		}
	}
	return out
}

func sumRows(rows []ledger.Row, field string) decimal.Decimal {
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Amount(field))
	}
	return total
}

func extremum(rows []ledger.Row, field string, max bool) (decimal.Decimal, bool) {
	if len(rows) == 0 {
		return decimal.Zero, false
	}
	best := rows[0].Amount(field)
	for _, row := range rows[1:] {
		amount := row.Amount(field)
		if (max && amount.GreaterThan(best)) || (!max && amount.LessThan(best)) {
			best = amount
		}
	}
	return best, true
}

// groupSum groups rows by the given field and sums an amount field per
// group. amountField defaults to debit.
func groupSum(rows []ledger.Row, groupField, amountField string) []string {
	if amountField == "" {
		amountField = ledger.FieldDebit
	}

	totals := map[string]decimal.Decimal{}
	for _, row := range rows {
		key, _ := row.Field(groupField)
		if key == "" {
			key = "(بدون مقدار)"
		}
		totals[key] = totals[key].Add(row.Amount(amountField))
	}

	keys := make([]string, 0, len(totals))
	for key := range totals {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys)+1)
	lines = append(lines, fmt.Sprintf("جمع %s به تفکیک %s:", fieldLabel(amountField), fieldLabel(groupField)))
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("- %s: %s", key, totals[key].String()))
	}
	return lines
}

// fieldLabel translates canonical field names for result text.
func fieldLabel(field string) string {
	switch field {
	case ledger.FieldDebit:
		return "بدهکار"
	case ledger.FieldCredit:
		return "بستانکار"
	case ledger.FieldDescription:
		return "شرح"
	case ledger.FieldDocNumber:
		return "شماره سند"
	case ledger.FieldDocDate:
		return "تاریخ"
	case ledger.FieldSubsidiaryCode:
		return "کد معین"
	case ledger.FieldDetailCode:
		return "کد تفصیلی"
	case ledger.FieldGeneralCode:
		return "کد کل"
	case ledger.FieldCounterparty:
		return "طرف حساب"
	case ledger.FieldBranch:
		return "شعبه"
	}
	return field
}
