package tool

import "time"

// ParamSpec declares one parameter a tool accepts.
type ParamSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Result is what a tool invocation produces: a pre-formatted text block
// plus optional structured values for handlers that want numbers.
type Result struct {
	Text string         `json:"text"`
	Data map[string]any `json:"data,omitempty"`
}

// Operation names form the closed execution vocabulary for synthesized
// tools. Definitions are data-driven configurations, never generated code.
const (
	OpSum            = "sum"
	OpAvg            = "avg"
	OpMin            = "min"
	OpMax            = "max"
	OpCount          = "count"
	OpFilterEq       = "filter_eq"
	OpFilterContains = "filter_contains"
	OpFilterGt       = "filter_gt"
	OpFilterLt       = "filter_lt"
	OpGroupSum       = "group_sum"
)

// KnownOp reports whether op belongs to the whitelist.
func KnownOp(op string) bool {
	switch op {
	case OpSum, OpAvg, OpMin, OpMax, OpCount,
		OpFilterEq, OpFilterContains, OpFilterGt, OpFilterLt, OpGroupSum:
		return true
	}
	return false
}

// Operation is one whitelisted step of a dynamic tool. Filters narrow the
// row set; aggregations produce output values.
type Operation struct {
	Op    string `json:"op"`
	Field string `json:"field"`
	Value string `json:"value,omitempty"`
}

// Definition is a persisted dynamic tool. Definitions are shared across all
// users and never deleted automatically.
type Definition struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Parameters   []ParamSpec `json:"parameters"`
	Operations   []Operation `json:"operations"`
	CreatedAt    time.Time   `json:"createdAt"`
	UsageCount   int64       `json:"usageCount"`
	SuccessCount int64       `json:"successCount"`
}

// Valid checks the four fields synthesis must provide.
func (d *Definition) Valid() bool {
	if d == nil || d.Name == "" || d.Description == "" {
		return false
	}
	if len(d.Operations) == 0 {
		return false
	}
	for _, op := range d.Operations {
		if !KnownOp(op.Op) {
			return false
		}
		// count works on the whole row set and needs no field.
		if op.Field == "" && op.Op != OpCount {
			return false
		}
	}
	return d.Parameters != nil
}
