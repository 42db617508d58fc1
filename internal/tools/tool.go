// Package tools holds the analyzers the agent dispatches queries to: a
// fixed set of static tools plus dynamic, data-driven tool definitions
// persisted in a local registry.
package tools

import (
	"context"

	"github.com/hesabyar/hesabyar/internal/model/ledger"
	"github.com/hesabyar/hesabyar/internal/model/tool"
)

// Params is the parameter bag passed to every tool run. It always carries
// "user_id" and "query".
type Params map[string]any

// String reads a string parameter, empty when absent or mistyped.
func (p Params) String(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// Tool is the capability contract every analyzer implements. Selection and
// execution go through this interface only; there is no attribute probing.
type Tool interface {
	Name() string
	Description() string
	Parameters() []tool.ParamSpec
	Run(ctx context.Context, table *ledger.Table, params Params) (*tool.Result, error)
}
