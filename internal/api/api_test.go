package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/BTreeMap/LeadPipe/internal/cloudapi"
	"github.com/BTreeMap/LeadPipe/internal/flow"
	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/metrics"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/twiliowhatsapp"
)

const (
	testVerifyToken = "s3cret"
	testUser        = "919876543210"
)

type testEnv struct {
	server *Server
	store  *store.InMemoryStore
	mock   *cloudapi.MockClient
	rec    *metrics.PrometheusRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewInMemoryStore()
	mock := cloudapi.NewMockClient()
	rec := metrics.NewPrometheusRecorder()
	conv := flow.NewConversation(st, flow.NewRouter(flow.NewCatalog("")), st)
	dispatcher := messaging.NewDispatcher(conv, messaging.NewCloudService(mock),
		messaging.WithReceipts(st), messaging.WithDedup(st), messaging.WithMetrics(rec))
	srv := NewServer(dispatcher, st, WithVerifyToken(testVerifyToken), WithMetrics(rec, rec.Handler()))
	return &testEnv{server: srv, store: st, mock: mock, rec: rec}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func textPayload(id, from, body string) string {
	return fmt.Sprintf(`{"object":"whatsapp_business_account","entry":[{"changes":[{"field":"messages","value":{
		"messages":[{"id":%q,"from":%q,"timestamp":"1700000000","type":"text","text":{"body":%q}}]}}]}]}`, id, from, body)
}

func replyPayload(id, from, optionID string) string {
	return fmt.Sprintf(`{"object":"whatsapp_business_account","entry":[{"changes":[{"field":"messages","value":{
		"messages":[{"id":%q,"from":%q,"timestamp":"1700000000","type":"interactive",
		"interactive":{"type":"list_reply","list_reply":{"id":%q,"title":"x"}}}]}}]}]}`, id, from, optionID)
}

func postWebhook(t *testing.T, e *testEnv, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return e.do(t, req)
}

func assertHTTPStatus(t *testing.T, expected, actual int) {
	t.Helper()
	if expected != actual {
		t.Errorf("Expected status %d, got %d", expected, actual)
	}
}

func TestVerifyWebhook(t *testing.T) {
	e := newTestEnv(t)

	q := url.Values{"hub.mode": {"subscribe"}, "hub.verify_token": {testVerifyToken}, "hub.challenge": {"12345"}}
	rr := e.do(t, httptest.NewRequest(http.MethodGet, "/webhook?"+q.Encode(), nil))
	assertHTTPStatus(t, http.StatusOK, rr.Code)
	if rr.Body.String() != "12345" {
		t.Errorf("expected challenge echoed, got %q", rr.Body.String())
	}

	q.Set("hub.verify_token", "wrong")
	rr = e.do(t, httptest.NewRequest(http.MethodGet, "/webhook?"+q.Encode(), nil))
	assertHTTPStatus(t, http.StatusForbidden, rr.Code)
	if strings.Contains(rr.Body.String(), "12345") {
		t.Errorf("challenge leaked on rejected verification: %q", rr.Body.String())
	}

	q.Set("hub.verify_token", testVerifyToken)
	q.Set("hub.mode", "unsubscribe")
	rr = e.do(t, httptest.NewRequest(http.MethodGet, "/webhook?"+q.Encode(), nil))
	assertHTTPStatus(t, http.StatusForbidden, rr.Code)
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, httptest.NewRequest(http.MethodDelete, "/webhook", nil))
	assertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code)
	if rr.Header().Get("Allow") == "" {
		t.Error("expected Allow header")
	}
}

func TestReceiveWebhook_GreetingSendsMenu(t *testing.T) {
	e := newTestEnv(t)

	rr := postWebhook(t, e, textPayload("wamid.1", testUser, "hi"))
	assertHTTPStatus(t, http.StatusOK, rr.Code)

	sent := e.mock.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	if sent[0].To != testUser || sent[0].Message.Kind != models.MessageKindButtons {
		t.Errorf("unexpected reply: %+v", sent[0])
	}
	if got := sent[0].Message.Buttons[0].ID; got != flow.OptionSearch {
		t.Errorf("first menu option = %q, want %q", got, flow.OptionSearch)
	}
}

func TestReceiveWebhook_MalformedStillAcknowledged(t *testing.T) {
	e := newTestEnv(t)
	for _, payload := range []string{"not json", `{"entry":[]}`, ""} {
		rr := postWebhook(t, e, payload)
		assertHTTPStatus(t, http.StatusOK, rr.Code)
	}
	if n := len(e.mock.Sent()); n != 0 {
		t.Errorf("expected no replies, got %d", n)
	}
}

func TestReceiveWebhook_SendFailureStillAcknowledged(t *testing.T) {
	e := newTestEnv(t)
	e.mock.Err = fmt.Errorf("graph api down")

	rr := postWebhook(t, e, textPayload("wamid.1", testUser, "hi"))
	assertHTTPStatus(t, http.StatusOK, rr.Code)

	receipts, _ := e.store.GetReceipts(context.Background())
	if len(receipts) != 1 || receipts[0].Status != models.MessageStatusFailed {
		t.Errorf("expected one failed receipt, got %+v", receipts)
	}
}

func TestReceiveWebhook_EndToEndFlow(t *testing.T) {
	e := newTestEnv(t)

	steps := []string{
		textPayload("wamid.1", testUser, "hi"),
		replyPayload("wamid.2", testUser, flow.OptionSearch),
		replyPayload("wamid.3", testUser, flow.OptionConfig2BHK),
		replyPayload("wamid.4", testUser, flow.OptionBudget50To75),
		replyPayload("wamid.5", testUser, flow.OptionReasonInvest),
	}
	for _, p := range steps {
		assertHTTPStatus(t, http.StatusOK, postWebhook(t, e, p).Code)
	}
	// Redelivery of the last event is ignored.
	assertHTTPStatus(t, http.StatusOK, postWebhook(t, e, steps[len(steps)-1]).Code)

	sent := e.mock.Sent()
	// menu, config list, budget list, reason buttons, summary, menu
	if len(sent) != 6 {
		t.Fatalf("expected 6 messages, got %d", len(sent))
	}
	summary := sent[4].Message.Body
	for _, want := range []string{"2BHK", "50 75", "Investment", flow.DefaultSummaryLink} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}

	state, err := e.store.GetOrCreate(context.Background(), testUser)
	if err != nil {
		t.Fatal(err)
	}
	if state.Step != models.StepDone {
		t.Errorf("expected step %s, got %s", models.StepDone, state.Step)
	}

	rr := e.do(t, httptest.NewRequest(http.MethodGet, "/leads", nil))
	assertHTTPStatus(t, http.StatusOK, rr.Code)
	var resp struct {
		Status string        `json:"status"`
		Result []models.Lead `json:"result"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode leads: %v", err)
	}
	if resp.Status != "ok" || len(resp.Result) != 1 || resp.Result[0].Reason != "Investment" {
		t.Errorf("unexpected leads response: %s", rr.Body.String())
	}

	rr = e.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assertHTTPStatus(t, http.StatusOK, rr.Code)
	if !strings.Contains(rr.Body.String(), "leadpipe_leads_completed_total 1") {
		t.Errorf("lead counter not exposed:\n%s", rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "leadpipe_inbound_duplicates_total 1") {
		t.Error("duplicate counter not exposed")
	}
}

func TestHealthHandler(t *testing.T) {
	e := newTestEnv(t)
	postWebhook(t, e, textPayload("wamid.1", testUser, "hi"))

	rr := e.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assertHTTPStatus(t, http.StatusOK, rr.Code)

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body["status"] != "healthy" || body["transport"] != "cloud" {
		t.Errorf("unexpected health body: %v", body)
	}
	if body["conversations"] != float64(1) {
		t.Errorf("expected 1 conversation, got %v", body["conversations"])
	}

	rr = e.do(t, httptest.NewRequest(http.MethodPost, "/health", nil))
	assertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestReceiptsHandler(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, httptest.NewRequest(http.MethodGet, "/receipts", nil))
	assertHTTPStatus(t, http.StatusOK, rr.Code)
	if !strings.Contains(rr.Body.String(), `"result":[]`) {
		t.Errorf("expected empty result list, got %s", rr.Body.String())
	}

	postWebhook(t, e, textPayload("wamid.1", testUser, "hi"))
	rr = e.do(t, httptest.NewRequest(http.MethodGet, "/receipts", nil))
	var resp struct {
		Result []models.Receipt `json:"result"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Result) != 1 || resp.Result[0].Status != models.MessageStatusSent || resp.Result[0].To != testUser {
		t.Errorf("unexpected receipts: %+v", resp.Result)
	}
}

func TestTwilioWebhook_NotRoutedWithoutTwilio(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, httptest.NewRequest(http.MethodPost, "/twilio/webhook", nil))
	assertHTTPStatus(t, http.StatusNotFound, rr.Code)
}

func TestTwilioWebhook_NumericReplies(t *testing.T) {
	st := store.NewInMemoryStore()
	mock := twiliowhatsapp.NewMockClient()
	svc := messaging.NewTwilioService(mock)
	conv := flow.NewConversation(st, flow.NewRouter(flow.NewCatalog("")), st)
	dispatcher := messaging.NewDispatcher(conv, svc, messaging.WithDedup(st))
	srv := NewServer(dispatcher, st, WithTwilio(svc))

	post := func(sid, body string) *httptest.ResponseRecorder {
		form := url.Values{"From": {"whatsapp:+" + testUser}, "Body": {body}, "MessageSid": {sid}}
		req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rr, req)
		return rr
	}

	rr := post("SM1", "hi")
	assertHTTPStatus(t, http.StatusOK, rr.Code)
	if !strings.Contains(rr.Body.String(), "<Response>") {
		t.Errorf("expected TwiML ack, got %q", rr.Body.String())
	}
	post("SM2", "1")

	if len(mock.SentMessages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(mock.SentMessages))
	}
	if !strings.Contains(mock.SentMessages[1].Body, "1. 1 BHK") {
		t.Errorf("numeric reply should open configuration list, got:\n%s", mock.SentMessages[1].Body)
	}

	state, _ := st.GetOrCreate(context.Background(), testUser)
	if state.Step != models.StepAskConfig {
		t.Errorf("expected step %s, got %s", models.StepAskConfig, state.Step)
	}
}
