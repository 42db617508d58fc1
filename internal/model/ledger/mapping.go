package ledger

// Confidence grades how much of a column mapping was inferred by the model
// versus matched from synonym lists. The fallback path always reports low.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ColumnMapping maps every raw spreadsheet header to either a canonical
// field name or, when nothing matched, the header itself.
type ColumnMapping struct {
	Fields     map[string]string `json:"fields"`
	Confidence Confidence        `json:"confidence"`
	Source     string            `json:"source"` // "model" or "fallback"
}

// Canonical returns the mapped name for a raw header, falling back to the
// header unchanged.
func (m *ColumnMapping) Canonical(header string) string {
	if m == nil || m.Fields == nil {
		return header
	}
	if mapped, ok := m.Fields[header]; ok && mapped != "" {
		return mapped
	}
	return header
}
