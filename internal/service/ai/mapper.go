package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/hesabyar/hesabyar/internal/model/ledger"
)

type mappingPayload struct {
	Mappings   map[string]string `json:"mappings"`
	Confidence string            `json:"confidence"`
}

// MapColumns asks the model to map raw headers onto the canonical
// vocabulary. Any error here sends ingestion to the synonym fallback.
func (s *Service) MapColumns(ctx context.Context, headers []string, samples [][]string) (*ledger.ColumnMapping, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("chat model not configured")
	}

	msg, err := s.mapper.Invoke(ctx, map[string]any{
		"headers": strings.Join(headers, " | "),
		"samples": formatSamples(samples),
	})
	if err != nil {
		return nil, fmt.Errorf("mapping chain failed: %w", err)
	}

	payload := &mappingPayload{}
	if err := decodeJSON(msg.Content, payload); err != nil {
		return nil, fmt.Errorf("mapping output unparsable: %w", err)
	}
	if len(payload.Mappings) == 0 {
		return nil, fmt.Errorf("mapping output empty")
	}

	fields := make(map[string]string, len(payload.Mappings))
	for raw, mapped := range payload.Mappings {
		// Targets outside the vocabulary keep the original header.
		if ledger.IsCanonical(mapped) {
			fields[raw] = mapped
		} else {
			fields[raw] = raw
		}
	}

	return &ledger.ColumnMapping{
		Fields:     fields,
		Confidence: parseConfidence(payload.Confidence),
		Source:     "model",
	}, nil
}

func parseConfidence(raw string) ledger.Confidence {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high":
		return ledger.ConfidenceHigh
	case "medium":
		return ledger.ConfidenceMedium
	default:
		return ledger.ConfidenceLow
	}
}

func formatSamples(samples [][]string) string {
	if len(samples) == 0 {
		return "(no sample rows)"
	}

	var builder strings.Builder
	for _, row := range samples {
		builder.WriteString(strings.Join(row, " | "))
		builder.WriteString("\n")
	}
	return builder.String()
}
