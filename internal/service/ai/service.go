// Package ai wraps the chat model behind the three capabilities the
// assistant needs: narrative composition, column mapping and dynamic tool
// synthesis. Every capability degrades gracefully when the model is not
// configured or a call fails.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/hesabyar/hesabyar/internal/config"
)

// Service holds the compiled chains. A nil *Service is valid and means "no
// model configured"; callers get the degraded behavior.
type Service struct {
	chatModel model.ChatModel
	answer    compose.Runnable[map[string]any, *schema.Message]
	composer  compose.Runnable[map[string]any, *schema.Message]
	mapper    compose.Runnable[map[string]any, *schema.Message]
	synth     compose.Runnable[map[string]any, *schema.Message]
}

const answerSystemPrompt = "تو «حسابیار» هستی، دستیار مالی و حسابداری فارسی‌زبان. " +
	"به پرسش‌های مالی و حسابداری پاسخ دقیق و مختصر بده. " +
	"اگر پرسش به داده‌های کاربر مربوط است و داده‌ای در اختیار نداری، از کاربر بخواه فایل حسابداری خود را بارگذاری کند."

const answerUserPrompt = "سابقه گفتگو:\n{context}\n\nپرسش کاربر: {query}"

const composeSystemPrompt = "تو «حسابیار» هستی. نتیجه محاسبه‌شده زیر را برای کاربر به زبان فارسی ساده توضیح بده. " +
	"فقط از همین نتیجه استفاده کن و هیچ عدد یا داده‌ای از خودت نساز."

const composeUserPrompt = "نتیجه ابزار:\n{tool_result}\n\nپرسش اصلی کاربر: {query}"

const mapSystemPrompt = "You map spreadsheet headers of Persian accounting documents onto a fixed canonical vocabulary. " +
	"The canonical fields are exactly: doc_number, doc_date, debit, credit, description, subsidiary_code, detail_code, general_code, counterparty, branch. " +
	"Respond with a single JSON object having two keys: \"mappings\", an object whose keys are the raw headers and whose values are canonical field names, " +
	"and \"confidence\", one of \"high\", \"medium\" or \"low\". " +
	"Omit headers that match no canonical field. Output JSON only, no prose."

const mapUserPrompt = "Headers: {headers}\nSample rows:\n{samples}"

const synthSystemPrompt = "You design data-driven analysis tools for Persian accounting tables. " +
	"A tool is a JSON object with four keys: \"name\" (short snake_case identifier), \"description\" (one Persian sentence), " +
	"\"parameters\" (array of objects with name, type, description, required), and \"operations\" (array of steps executed in order). " +
	"Each operation has \"op\", \"field\" and optionally \"value\". Allowed ops are exactly: " +
	"sum, avg, min, max, count, filter_eq, filter_contains, filter_gt, filter_lt, group_sum. " +
	"Fields must come from the table schema given by the user. Output JSON only, no prose."

const synthUserPrompt = "User query: {query}\nTable schema: {schema}"

// NewService builds the chat model and compiles the chains.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	svc := &Service{chatModel: chatModel}

	if svc.answer, err = compileChain(ctx, chatModel, answerSystemPrompt, answerUserPrompt); err != nil {
		return nil, err
	}
	if svc.composer, err = compileChain(ctx, chatModel, composeSystemPrompt, composeUserPrompt); err != nil {
		return nil, err
	}
	if svc.mapper, err = compileChain(ctx, chatModel, mapSystemPrompt, mapUserPrompt); err != nil {
		return nil, err
	}
	if svc.synth, err = compileChain(ctx, chatModel, synthSystemPrompt, synthUserPrompt); err != nil {
		return nil, err
	}

	return svc, nil
}

func compileChain(ctx context.Context, chatModel model.ChatModel, system, user string) (compose.Runnable[map[string]any, *schema.Message], error) {
	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chain: %w", err)
	}
	return runnable, nil
}

// Enabled reports whether a model is available.
func (s *Service) Enabled() bool {
	return s != nil && s.chatModel != nil
}

// Answer produces a general finance reply using the conversation context.
func (s *Service) Answer(ctx context.Context, query, contextSummary string) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("chat model not configured")
	}

	msg, err := s.answer.Invoke(ctx, map[string]any{
		"context": contextSummary,
		"query":   query,
	})
	if err != nil {
		return "", fmt.Errorf("answer chain failed: %w", err)
	}
	return strings.TrimSpace(msg.Content), nil
}

// Compose glosses a tool result in natural language. The raw result is
// returned unchanged when the model is unavailable or errors; the numeric
// result must never be dropped.
func (s *Service) Compose(ctx context.Context, toolResult, query string) string {
	if !s.Enabled() {
		return toolResult
	}

	msg, err := s.composer.Invoke(ctx, map[string]any{
		"tool_result": toolResult,
		"query":       query,
	})
	if err != nil {
		log.Printf("[ai] compose failed, returning raw result: %v", err)
		return toolResult
	}

	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return toolResult
	}
	return content
}

// extractJSON pulls the outermost JSON object out of a model reply.
func extractJSON(content string) ([]byte, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}
	return []byte(trimmed[start : end+1]), nil
}

func decodeJSON(content string, dest any) error {
	raw, err := extractJSON(content)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
