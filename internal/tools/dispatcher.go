package tools

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/hesabyar/hesabyar/internal/model/ledger"
	"github.com/hesabyar/hesabyar/internal/model/tool"
	"github.com/hesabyar/hesabyar/internal/service/ai"
)

// domainKeywords anchor dynamic tool matching: a stored definition is a
// candidate when the query shares at least two words with its description
// or with this list.
var domainKeywords = []string{
	"بدهکار", "بستانکار", "سند", "تراز", "حساب", "مانده", "جمع", "مبلغ", "تاریخ", "شرح",
	"debit", "credit", "balance", "total", "amount", "account", "document", "date",
}

const matchThreshold = 2

// Synthesizer is the generation backend for new dynamic tools.
type Synthesizer interface {
	SynthesizeTool(ctx context.Context, query, schemaDesc string) (*tool.Definition, error)
}

// Dispatcher selects and runs tools. Tool failures never escape: they are
// converted into user-visible text.
type Dispatcher struct {
	static   []Tool
	registry *Registry   // nil disables the dynamic tier
	synth    Synthesizer // nil disables synthesis

	mu          sync.Mutex
	staticUsage map[string]*ToolUsage
}

// NewDispatcher registers the static tools in their fixed order.
func NewDispatcher(registry *Registry, synth Synthesizer) *Dispatcher {
	d := &Dispatcher{
		static:      []Tool{SearchTool{}, FilterTool{}, CalculatorTool{}, PatternTool{}},
		registry:    registry,
		synth:       synth,
		staticUsage: make(map[string]*ToolUsage),
	}
	for _, t := range d.static {
		d.staticUsage[t.Name()] = &ToolUsage{Name: t.Name()}
	}
	return d
}

var _ Synthesizer = (*ai.Service)(nil)

// SelectStatic picks the first static tool whose keyword set matches the
// query, or nil when no category matches.
func (d *Dispatcher) SelectStatic(query string) Tool {
	lowered := strings.ToLower(query)
	for _, t := range d.static {
		for _, keyword := range staticKeywords[t.Name()] {
			if strings.Contains(lowered, keyword) {
				return t
			}
		}
	}
	return nil
}

// Dispatch routes a query to a tool and runs it. The boolean is false only
// when no tool could serve the query at all, in which case the caller
// falls back to narrative-only handling.
func (d *Dispatcher) Dispatch(ctx context.Context, query string, table *ledger.Table, params Params) (string, string, bool) {
	if t := d.SelectStatic(query); t != nil {
		return d.run(ctx, t, table, params), t.Name(), true
	}

	if t, ok := d.findDynamic(ctx, query); ok {
		return d.run(ctx, t, table, params), t.Name(), true
	}

	if t, err := d.synthesize(ctx, query, table); err == nil {
		return d.run(ctx, t, table, params), t.Name(), true
	} else if d.synth != nil {
		log.Printf("[dispatch] tool synthesis failed: %v", err)
	}

	// Never "no tool found" while any static tool exists.
	if len(d.static) > 0 {
		t := d.static[0]
		return d.run(ctx, t, table, params), t.Name(), true
	}
	return "", "", false
}

// run executes a tool, catching errors and panics at the dispatch boundary
// and recording usage counters.
func (d *Dispatcher) run(ctx context.Context, t Tool, table *ledger.Table, params Params) (text string) {
	var runErr error

	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("panic: %v", r)
			text = toolFailureText(t, runErr)
		}
		d.recordUsage(t, runErr == nil)
	}()

	result, err := t.Run(ctx, table, params)
	if err != nil {
		runErr = err
		return toolFailureText(t, err)
	}
	if result == nil || strings.TrimSpace(result.Text) == "" {
		runErr = fmt.Errorf("empty result")
		return toolFailureText(t, runErr)
	}
	return result.Text
}

func toolFailureText(t Tool, err error) string {
	log.Printf("[dispatch] tool %s failed: %v", t.Name(), err)
	return fmt.Sprintf("اجرای ابزار «%s» با خطا مواجه شد و نتیجه‌ای محاسبه نشد. لطفاً پرسش را به شکل دیگری مطرح کنید.", t.Name())
}

func (d *Dispatcher) recordUsage(t Tool, success bool) {
	if dyn, ok := t.(*DynamicTool); ok {
		if d.registry != nil {
			if err := d.registry.RecordUsage(dyn.Definition().ID, success); err != nil {
				log.Printf("[dispatch] %v", err)
			}
		}
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	usage := d.staticUsage[t.Name()]
	if usage == nil {
		usage = &ToolUsage{Name: t.Name()}
		d.staticUsage[t.Name()] = usage
	}
	usage.UsageCount++
	if success {
		usage.SuccessCount++
	}
}

// findDynamic scans stored definitions for a word-overlap match.
func (d *Dispatcher) findDynamic(ctx context.Context, query string) (*DynamicTool, bool) {
	if d.registry == nil {
		return nil, false
	}

	defs, err := d.registry.All()
	if err != nil {
		log.Printf("[dispatch] registry scan failed: %v", err)
		return nil, false
	}

	queryWords := wordSet(query)
	for _, def := range defs {
		if overlap(queryWords, wordSet(def.Description)) >= matchThreshold ||
			overlap(queryWords, wordList(domainKeywords)) >= matchThreshold {
			return NewDynamicTool(def), true
		}
	}
	return nil, false
}

// synthesize requests a brand-new definition and persists it.
func (d *Dispatcher) synthesize(ctx context.Context, query string, table *ledger.Table) (*DynamicTool, error) {
	if d.synth == nil || d.registry == nil {
		return nil, fmt.Errorf("synthesis unavailable")
	}

	def, err := d.synth.SynthesizeTool(ctx, query, schemaDescription(table))
	if err != nil {
		return nil, err
	}

	if err := d.registry.Save(def); err != nil {
		return nil, err
	}

	log.Printf("[dispatch] synthesized dynamic tool %s (%s)", def.Name, def.ID)
	return NewDynamicTool(def), nil
}

// Stats merges static in-memory counters with the persisted registry.
func (d *Dispatcher) Stats() *Stats {
	stats := &Stats{}
	if d.registry != nil {
		if s, err := d.registry.Stats(); err == nil {
			stats = s
		} else {
			log.Printf("[dispatch] registry stats failed: %v", err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, usage := range d.staticUsage {
		stats.TotalTools++
		stats.TotalUsage += usage.UsageCount
		stats.MostUsed = append(stats.MostUsed, *usage)
	}
	sort.Slice(stats.MostUsed, func(i, j int) bool {
		if stats.MostUsed[i].UsageCount != stats.MostUsed[j].UsageCount {
			return stats.MostUsed[i].UsageCount > stats.MostUsed[j].UsageCount
		}
		return stats.MostUsed[i].Name < stats.MostUsed[j].Name
	})
	return stats
}

// schemaDescription renders the table structure for the synthesis prompt.
func schemaDescription(table *ledger.Table) string {
	if table == nil {
		return "(no table uploaded)"
	}
	return fmt.Sprintf("columns: %s; rows: %d", strings.Join(table.Columns, ", "), len(table.Rows))
}

func wordSet(text string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		if len([]rune(w)) > 1 {
			set[w] = true
		}
	}
	return set
}

func wordList(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = true
	}
	return set
}

func overlap(a, b map[string]bool) int {
	count := 0
	for w := range a {
		if b[w] {
			count++
		}
	}
	return count
}
