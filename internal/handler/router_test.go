package handler_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hesabyar/hesabyar/internal/engine"
	"github.com/hesabyar/hesabyar/internal/handler"
	"github.com/hesabyar/hesabyar/internal/ingest"
	"github.com/hesabyar/hesabyar/internal/store"
	"github.com/hesabyar/hesabyar/internal/tools"
)

const sampleCSV = `شماره سند,تاریخ,بدهکار,بستانکار,شرح
1,1402/1/5,"1,000,000","500,000",خرید مواد اولیه
2,1402/1/6,"2,000,000","1,000,000",پرداخت حقوق
3,1402/1/7,"1,500,000","1,500,000",خرید مواد اولیه
4,1402/1/8,"800,000","2,000,000",فروش کالا
5,1402/1/9,"3,000,000","1,000,000",پرداخت اجاره
`

func newTestServer(t *testing.T) (*httptest.Server, *store.MemoryStore) {
	t.Helper()

	st := store.NewMemoryStore(time.Hour)
	eng := engine.New(st, tools.NewDispatcher(nil, nil), nil)
	srv := httptest.NewServer(handler.NewRouter(eng, ingest.NewService(nil), st))
	t.Cleanup(srv.Close)
	return srv, st
}

func postJSON(t *testing.T, url string, payload any) (*http.Response, map[string]any) {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	body := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func uploadCSV(t *testing.T, url, userID, content string) (*http.Response, map[string]any) {
	return uploadCSVForm(t, url, map[string]string{"user_id": userID}, content)
}

func uploadCSVForm(t *testing.T, url string, fields map[string]string, content string) (*http.Response, map[string]any) {
	t.Helper()

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	fw, err := mw.CreateFormFile("file", "ledger.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write file: %v", err)
	}
	mw.Close()

	resp, err := http.Post(url+"/api/upload", mw.FormDataContentType(), buf)
	if err != nil {
		t.Fatalf("POST upload: %v", err)
	}
	return resp, decodeBody(t, resp)
}

func TestChatAllocatesSession(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/chat", map[string]string{"message": "سلام"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["session_id"] == "" || body["session_id"] == nil {
		t.Fatal("expected allocated session id")
	}
	if body["intent"] != "general" {
		t.Fatalf("intent = %v, want general", body["intent"])
	}
	if body["response"] == "" {
		t.Fatal("expected non-empty response")
	}
}

func TestChatRequiresMessage(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/chat", map[string]string{"session_id": "s1"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body["success"] != false {
		t.Fatalf("expected success=false, got %v", body["success"])
	}
}

func TestUploadThenChatAnalysis(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := uploadCSV(t, srv.URL, "u1", sampleCSV)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	if body["total_debit"] != "8300000" || body["total_credit"] != "6000000" {
		t.Fatalf("unexpected totals: %v / %v", body["total_debit"], body["total_credit"])
	}
	if body["rows"] != float64(5) {
		t.Fatalf("rows = %v, want 5", body["rows"])
	}

	resp, body = postJSON(t, srv.URL+"/api/chat", map[string]string{
		"message": "جمع بدهکارها چقدر است؟",
		"user_id": "u1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d", resp.StatusCode)
	}
	if body["intent"] != "data_analysis" {
		t.Fatalf("intent = %v, want data_analysis", body["intent"])
	}
	if body["tool_used"] != "calculator" {
		t.Fatalf("tool_used = %v, want calculator", body["tool_used"])
	}
	if !strings.Contains(body["response"].(string), "8300000") {
		t.Fatalf("expected total in response: %v", body["response"])
	}
}

func TestUploadWithoutUserIDJoinsSession(t *testing.T) {
	srv, _ := newTestServer(t)

	// A client without a user id first opens a session.
	_, body := postJSON(t, srv.URL+"/api/session", map[string]string{})
	sessionID, _ := body["session_id"].(string)
	if sessionID == "" {
		t.Fatal("expected session id")
	}

	// Uploading with only the session id stores under the session-derived
	// user id, which the response reports for reuse.
	resp, body := uploadCSVForm(t, srv.URL, map[string]string{"session_id": sessionID}, sampleCSV)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	if body["user_id"] != "session:"+sessionID {
		t.Fatalf("user_id = %v, want session:%s", body["user_id"], sessionID)
	}

	// A chat on the same session, still without a user id, sees the data.
	resp, body = postJSON(t, srv.URL+"/api/chat", map[string]string{
		"message":    "جمع بدهکارها چقدر است؟",
		"session_id": sessionID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d", resp.StatusCode)
	}
	if body["intent"] != "data_analysis" {
		t.Fatalf("intent = %v, want data_analysis (uploaded data not joined)", body["intent"])
	}
	if !strings.Contains(body["response"].(string), "8300000") {
		t.Fatalf("expected total in response: %v", body["response"])
	}
}

func TestUploadRejectsUnsupportedFormat(t *testing.T) {
	srv, _ := newTestServer(t)

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	fw, _ := mw.CreateFormFile("file", "notes.pdf")
	fw.Write([]byte("%PDF-1.4"))
	mw.Close()

	resp, err := http.Post(srv.URL+"/api/upload", mw.FormDataContentType(), buf)
	if err != nil {
		t.Fatalf("POST upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestReportLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	client := srv.Client()

	// Before any upload the report says so.
	resp, err := client.Get(srv.URL + "/api/users/u1/report")
	if err != nil {
		t.Fatalf("GET report: %v", err)
	}
	body := decodeBody(t, resp)
	if body["has_data"] != false {
		t.Fatalf("expected has_data=false, got %v", body["has_data"])
	}

	uploadCSV(t, srv.URL, "u1", sampleCSV)

	resp, err = client.Get(srv.URL + "/api/users/u1/report")
	if err != nil {
		t.Fatalf("GET report: %v", err)
	}
	body = decodeBody(t, resp)
	if body["has_data"] != true {
		t.Fatal("expected has_data=true after upload")
	}
	if body["balance"] != "2300000" || body["balanced"] != false {
		t.Fatalf("unexpected balance fields: %v / %v", body["balance"], body["balanced"])
	}
	if uploads, ok := body["uploads"].([]any); !ok || len(uploads) != 1 {
		t.Fatalf("expected 1 upload event, got %v", body["uploads"])
	}

	// Clearing user data resets the report.
	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/users/u1/data", nil)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("DELETE data: %v", err)
	}
	decodeBody(t, resp)

	resp, err = client.Get(srv.URL + "/api/users/u1/report")
	if err != nil {
		t.Fatalf("GET report: %v", err)
	}
	if body = decodeBody(t, resp); body["has_data"] != false {
		t.Fatal("expected has_data=false after clear")
	}
}

func TestSessionHistoryEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	client := srv.Client()

	_, body := postJSON(t, srv.URL+"/api/session", map[string]string{})
	sessionID, _ := body["session_id"].(string)
	if sessionID == "" {
		t.Fatal("expected session id")
	}

	postJSON(t, srv.URL+"/api/chat", map[string]string{"message": "سلام", "session_id": sessionID})

	resp, err := client.Get(srv.URL + "/api/session/" + sessionID + "/history?limit=5")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	body = decodeBody(t, resp)
	history, ok := body["history"].([]any)
	if !ok || len(history) != 2 {
		t.Fatalf("expected user+assistant turns, got %v", body["history"])
	}

	resp, err = client.Get(srv.URL + "/api/session/" + sessionID + "/history?limit=abc")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	decodeBody(t, resp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for bad limit", resp.StatusCode)
	}
}

func TestToolStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	uploadCSV(t, srv.URL, "u1", sampleCSV)
	postJSON(t, srv.URL+"/api/chat", map[string]string{"message": "جمع بدهکار", "user_id": "u1"})

	resp, err := srv.Client().Get(srv.URL + "/api/tools/stats")
	if err != nil {
		t.Fatalf("GET stats: %v", err)
	}
	body := decodeBody(t, resp)
	if body["totalUsage"] != float64(1) {
		t.Fatalf("totalUsage = %v, want 1", body["totalUsage"])
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/api/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	body := decodeBody(t, resp)
	if body["status"] != "ok" {
		t.Fatalf("status = %v", body["status"])
	}
	if body["storage"] != "memory" {
		t.Fatalf("storage = %v", body["storage"])
	}
	if body["active_sessions"] != float64(0) {
		t.Fatalf("active_sessions = %v, want 0", body["active_sessions"])
	}

	postJSON(t, srv.URL+"/api/chat", map[string]string{"message": "سلام"})

	resp, err = srv.Client().Get(srv.URL + "/api/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	if body = decodeBody(t, resp); body["active_sessions"] != float64(1) {
		t.Fatalf("active_sessions = %v, want 1", body["active_sessions"])
	}
}

func TestDebugEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	uploadCSV(t, srv.URL, "u1", sampleCSV)

	resp, err := srv.Client().Get(srv.URL + "/api/users/u1/debug")
	if err != nil {
		t.Fatalf("GET debug: %v", err)
	}
	body := decodeBody(t, resp)
	if body["hasData"] != true {
		t.Fatalf("expected hasData=true, got %v", body)
	}
	if body["storageType"] != "memory" {
		t.Fatalf("storageType = %v", body["storageType"])
	}
}
