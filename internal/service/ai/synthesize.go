package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hesabyar/hesabyar/internal/model/tool"
)

type synthesisPayload struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parameters  []tool.ParamSpec `json:"parameters"`
	Operations  []tool.Operation `json:"operations"`
}

// SynthesizeTool asks the model for a data-driven tool specification. The
// response must carry all four fields and only whitelisted operations;
// anything else is a synthesis failure and the caller falls back to
// narrative-only handling.
func (s *Service) SynthesizeTool(ctx context.Context, query, schemaDesc string) (*tool.Definition, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("chat model not configured")
	}

	msg, err := s.synth.Invoke(ctx, map[string]any{
		"query":  query,
		"schema": schemaDesc,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesis chain failed: %w", err)
	}

	payload := &synthesisPayload{}
	if err := decodeJSON(msg.Content, payload); err != nil {
		return nil, fmt.Errorf("synthesis output unparsable: %w", err)
	}

	def := &tool.Definition{
		ID:          uuid.NewString(),
		Name:        payload.Name,
		Description: payload.Description,
		Parameters:  payload.Parameters,
		Operations:  payload.Operations,
		CreatedAt:   time.Now().UTC(),
	}
	if !def.Valid() {
		return nil, fmt.Errorf("synthesis output missing required fields")
	}
	return def, nil
}
