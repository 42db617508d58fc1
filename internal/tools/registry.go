package tools

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hesabyar/hesabyar/internal/model/tool"
)

// Registry persists dynamic tool definitions in a local sqlite file.
// Definitions are shared across all users and never deleted automatically;
// the table is append-mostly and duplicate synthesis under concurrent
// requests is acceptable.
type Registry struct {
	db *sql.DB
}

// OpenRegistry opens (and if needed creates) the registry database.
func OpenRegistry(path string) (*Registry, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create registry dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS dynamic_tools (
	tool_id         TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	description     TEXT NOT NULL,
	parameters_json TEXT NOT NULL,
	operations_json TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	usage_count     INTEGER NOT NULL DEFAULT 0,
	success_count   INTEGER NOT NULL DEFAULT 0
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create registry schema: %w", err)
	}

	return &Registry{db: db}, nil
}

// Close releases the database handle.
func (r *Registry) Close() error { return r.db.Close() }

// Save persists a new definition.
func (r *Registry) Save(def *tool.Definition) error {
	params, err := json.Marshal(def.Parameters)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	ops, err := json.Marshal(def.Operations)
	if err != nil {
		return fmt.Errorf("encode operations: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO dynamic_tools (tool_id, name, description, parameters_json, operations_json, created_at, usage_count, success_count)
		 VALUES (?, ?, ?, ?, ?, ?, 0, 0)`,
		def.ID, def.Name, def.Description, string(params), string(ops), def.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert tool %s: %w", def.Name, err)
	}
	return nil
}

// All returns every stored definition.
func (r *Registry) All() ([]*tool.Definition, error) {
	rows, err := r.db.Query(
		`SELECT tool_id, name, description, parameters_json, operations_json, created_at, usage_count, success_count
		 FROM dynamic_tools ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defer rows.Close()

	defs := []*tool.Definition{}
	for rows.Next() {
		def := &tool.Definition{}
		var params, ops string
		var createdAt time.Time
		if err := rows.Scan(&def.ID, &def.Name, &def.Description, &params, &ops, &createdAt, &def.UsageCount, &def.SuccessCount); err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		def.CreatedAt = createdAt
		if err := json.Unmarshal([]byte(params), &def.Parameters); err != nil {
			return nil, fmt.Errorf("decode parameters of %s: %w", def.Name, err)
		}
		if err := json.Unmarshal([]byte(ops), &def.Operations); err != nil {
			return nil, fmt.Errorf("decode operations of %s: %w", def.Name, err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// RecordUsage bumps the usage counter and, when the run completed without
// error, the success counter.
func (r *Registry) RecordUsage(toolID string, success bool) error {
	query := `UPDATE dynamic_tools SET usage_count = usage_count + 1 WHERE tool_id = ?`
	if success {
		query = `UPDATE dynamic_tools SET usage_count = usage_count + 1, success_count = success_count + 1 WHERE tool_id = ?`
	}
	if _, err := r.db.Exec(query, toolID); err != nil {
		return fmt.Errorf("record usage for %s: %w", toolID, err)
	}
	return nil
}

// ToolUsage is one row of the statistics report.
type ToolUsage struct {
	Name         string `json:"name"`
	UsageCount   int64  `json:"usageCount"`
	SuccessCount int64  `json:"successCount"`
}

// Stats summarizes the registry: total tools, total usage, most-used.
type Stats struct {
	TotalTools int         `json:"totalTools"`
	TotalUsage int64       `json:"totalUsage"`
	MostUsed   []ToolUsage `json:"mostUsed"`
}

// Stats reports registry-wide usage counters.
func (r *Registry) Stats() (*Stats, error) {
	stats := &Stats{}

	row := r.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(usage_count), 0) FROM dynamic_tools`)
	if err := row.Scan(&stats.TotalTools, &stats.TotalUsage); err != nil {
		return nil, fmt.Errorf("aggregate stats: %w", err)
	}

	rows, err := r.db.Query(
		`SELECT name, usage_count, success_count FROM dynamic_tools ORDER BY usage_count DESC, name LIMIT 5`)
	if err != nil {
		return nil, fmt.Errorf("query most used: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		usage := ToolUsage{}
		if err := rows.Scan(&usage.Name, &usage.UsageCount, &usage.SuccessCount); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		stats.MostUsed = append(stats.MostUsed, usage)
	}
	return stats, rows.Err()
}
