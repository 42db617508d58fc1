package engine

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/hesabyar/hesabyar/internal/model/chat"
	"github.com/hesabyar/hesabyar/internal/service/ai"
	"github.com/hesabyar/hesabyar/internal/store"
	"github.com/hesabyar/hesabyar/internal/tools"
)

// Reply is the engine's answer to one inbound message.
type Reply struct {
	Response string `json:"response"`
	Intent   Intent `json:"intent"`
	ToolUsed string `json:"toolUsed,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
}

// Engine wires the session/data store, the tool dispatcher and the chat
// model into the classification pipeline. It is constructed once at process
// start and injected into handlers.
type Engine struct {
	store      store.Store
	dispatcher *tools.Dispatcher
	ai         *ai.Service // nil when no model is configured
}

// New builds the engine. aiSvc may be nil.
func New(st store.Store, dispatcher *tools.Dispatcher, aiSvc *ai.Service) *Engine {
	return &Engine{store: st, dispatcher: dispatcher, ai: aiSvc}
}

const noDataReply = "هنوز داده‌ای بارگذاری نکرده‌اید. لطفاً ابتدا فایل حسابداری خود را (csv یا excel) بارگذاری کنید.\n" +
	"ستون‌های قابل شناسایی: شماره سند، تاریخ، بدهکار، بستانکار، شرح، کد معین، کد تفصیلی، کد کل، طرف حساب، شعبه."

const generalFallbackReply = "من «حسابیار» هستم و به پرسش‌های مالی و حسابداری پاسخ می‌دهم. " +
	"برای تحلیل داده‌های خودتان، فایل حسابداری را بارگذاری کنید."

const failureReply = "متأسفانه در پردازش پیام شما خطایی رخ داد. لطفاً دوباره تلاش کنید."

// HandleMessage runs one message through classify → dispatch → compose and
// appends the exchange to history. Nothing on this path is fatal: panics
// become a generic failure reply.
func (e *Engine) HandleMessage(ctx context.Context, userID, sessionID, message string) (reply Reply) {
	userID = DeriveUserID(userID, sessionID)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[engine] panic handling message for user=%s: %v", userID, r)
			reply = Reply{Response: failureReply, Intent: IntentError, Degraded: true}
		}
	}()

	debug := e.store.DebugUserData(ctx, userID)
	history := e.store.GetHistory(ctx, sessionID, 10)

	intent := Classify(message, debug.HasData, len(history) > 0)
	log.Printf("[engine] user=%s intent=%s storage=%s", userID, intent, debug.StorageType)

	reply = e.respond(ctx, intent, userID, sessionID, message)

	if sessionID != "" {
		e.store.AppendTurn(ctx, sessionID, chat.RoleUser, message, nil)
		e.store.AppendTurn(ctx, sessionID, chat.RoleAssistant, reply.Response, map[string]string{
			"intent": string(intent),
			"tool":   reply.ToolUsed,
		})
	}
	return reply
}

func (e *Engine) respond(ctx context.Context, intent Intent, userID, sessionID, message string) Reply {
	switch intent {
	case IntentDataAnalysis:
		return e.respondWithData(ctx, userID, sessionID, message)
	case IntentNoData:
		return Reply{Response: noDataReply, Intent: IntentNoData}
	case IntentFollowUp:
		return e.respondFollowUp(ctx, sessionID, message)
	default:
		return e.respondGeneral(ctx, intent, sessionID, message)
	}
}

// respondWithData dispatches a tool over the stored table and glosses the
// result.
func (e *Engine) respondWithData(ctx context.Context, userID, sessionID, message string) Reply {
	table, ok := e.store.GetTable(ctx, userID, store.TableAccounting)
	if !ok {
		// Data disappeared between classification and dispatch (expiry or
		// concurrent clear); treat as the no-data path.
		return Reply{Response: noDataReply, Intent: IntentNoData}
	}

	params := tools.Params{"user_id": userID, "query": message}
	resultText, toolName, ok := e.dispatcher.Dispatch(ctx, message, table, params)
	if !ok {
		// No tool could serve the query; answer narratively with the
		// session's context intact.
		return e.respondGeneral(ctx, IntentDataAnalysis, sessionID, message)
	}

	response := resultText
	degraded := false
	if e.ai.Enabled() {
		response = e.ai.Compose(ctx, resultText, message)
	} else {
		degraded = true
	}

	return Reply{
		Response: response,
		Intent:   IntentDataAnalysis,
		ToolUsed: toolName,
		Degraded: degraded,
	}
}

func (e *Engine) respondFollowUp(ctx context.Context, sessionID, message string) Reply {
	summary := e.store.GetContextSummary(ctx, sessionID)

	if e.ai.Enabled() {
		answer, err := e.ai.Answer(ctx, message, summary)
		if err == nil && answer != "" {
			return Reply{Response: answer, Intent: IntentFollowUp}
		}
		log.Printf("[engine] follow-up answer failed: %v", err)
	}

	return Reply{
		Response: fmt.Sprintf("در ادامه گفتگوی قبلی:\n%s\n\nلطفاً پرسش خود را دقیق‌تر مطرح کنید.", summary),
		Intent:   IntentFollowUp,
		Degraded: true,
	}
}

func (e *Engine) respondGeneral(ctx context.Context, intent Intent, sessionID, message string) Reply {
	if intent != IntentGeneralFinance && intent != IntentGeneral && intent != IntentDataAnalysis {
		intent = IntentGeneral
	}

	summary := store.NewConversationSummary
	if sessionID != "" {
		summary = e.store.GetContextSummary(ctx, sessionID)
	}

	if e.ai.Enabled() {
		answer, err := e.ai.Answer(ctx, message, summary)
		if err == nil && answer != "" {
			return Reply{Response: answer, Intent: intent}
		}
		log.Printf("[engine] general answer failed: %v", err)
	}

	return Reply{Response: generalFallbackReply, Intent: intent, Degraded: true}
}

// Stats exposes dispatcher statistics for the tools endpoint.
func (e *Engine) Stats() *tools.Stats {
	return e.dispatcher.Stats()
}

// DeriveUserID returns the stable user identifier for a request: explicit
// user id, then session id, then anonymous. Upload and chat must derive ids
// the same way or data saved by one becomes unreachable from the other.
func DeriveUserID(userID, sessionID string) string {
	userID = strings.TrimSpace(userID)
	if userID != "" {
		return userID
	}
	if sessionID = strings.TrimSpace(sessionID); sessionID != "" {
		return "session:" + sessionID
	}
	return "anonymous"
}
