// Package engine classifies incoming queries and orchestrates the
// store → dispatch → compose pipeline behind the chat endpoint.
package engine

import "strings"

// Intent is the classifier's output category. It controls which handling
// path a query takes.
type Intent string

const (
	IntentDataAnalysis   Intent = "data_analysis"
	IntentNoData         Intent = "no_data"
	IntentFollowUp       Intent = "follow_up"
	IntentGeneralFinance Intent = "general_finance"
	IntentGeneral        Intent = "general"
	// IntentError marks classifier-internal failures; handling always
	// resolves to the general path with the error captured separately.
	IntentError Intent = "error"
)

// Keyword sets are flat case-insensitive substring lists. A query matches a
// set when any keyword is a substring of the lowercased query.
var (
	dataKeywords = []string{
		"تراز", "بدهکار", "بدهكار", "بستانکار", "بستانكار", "سند", "اسناد", "گزارش",
		"جمع", "مجموع", "مانده", "دفتر", "تراکنش", "داده", "جدول", "فایل", "ستون",
		"آزمایشی", "محاسبه",
		"balance", "debit", "credit", "ledger", "report", "total", "transaction",
		"data", "table", "column", "calculate",
	}

	followUpKeywords = []string{
		"ادامه", "بیشتر توضیح", "توضیح بده", "قبلی", "همان", "همین", "دوباره", "یعنی چه", "چرا",
		"continue", "more detail", "explain", "previous", "again", "what do you mean", "why",
	}

	financeKeywords = []string{
		"مالی", "حسابداری", "سرمایه", "سود", "زیان", "مالیات", "بودجه", "نقدینگی",
		"بهره", "وام", "سهام", "ارز", "تورم", "هزینه", "درآمد",
		"finance", "financial", "accounting", "profit", "loss", "tax", "budget",
		"liquidity", "interest", "loan", "stock", "inflation", "expense", "income",
	}
)

func matchesKeywords(query string, keywords []string) bool {
	lowered := strings.ToLower(query)
	for _, keyword := range keywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

// Classify assigns an intent. Rules are evaluated in a fixed order and the
// first match wins; data-related detection deliberately precedes follow-up
// detection when the user has data.
func Classify(query string, hasUserData, hasConversationContext bool) Intent {
	isDataQuery := matchesKeywords(query, dataKeywords)

	switch {
	case hasUserData && isDataQuery:
		return IntentDataAnalysis
	case hasConversationContext && matchesKeywords(query, followUpKeywords):
		return IntentFollowUp
	case hasUserData:
		return IntentGeneralFinance
	case isDataQuery:
		// Data question without data: prompt the user to upload.
		return IntentNoData
	case matchesKeywords(query, financeKeywords):
		return IntentGeneralFinance
	default:
		return IntentGeneral
	}
}
