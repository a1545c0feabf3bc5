package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go"

	"github.com/chatformhq/chatform/internal/genai"
	"github.com/chatformhq/chatform/internal/models"
	"github.com/chatformhq/chatform/internal/store"
)

type fakeGenAI struct {
	decision *models.Decision
	tokens   []string
	err      error
}

func (f *fakeGenAI) GenerateDecision(_ context.Context, _ []openai.ChatCompletionMessageParamUnion) (*models.Decision, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.decision, nil
}

func (f *fakeGenAI) GenerateDecisionStream(_ context.Context, _ []openai.ChatCompletionMessageParamUnion, emit func(genai.StreamEvent)) (*models.Decision, error) {
	for _, tok := range f.tokens {
		emit(genai.StreamEvent{Type: genai.StreamEventToken, Token: tok})
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.decision, nil
}

func newTestServer(t *testing.T, client genai.ClientInterface) (*httptest.Server, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	srv := NewServer(st, client)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func createTestBot(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	body := `{
		"name": "Acme Plumbing",
		"user_id": "user_1",
		"schema": {
			"goal": "Collect plumbing job requests",
			"system_prompt": "You are the intake assistant.",
			"required_info": {
				"name": {"description": "Full name", "critical": true, "type": "text"},
				"email": {"description": "Email address", "critical": true, "type": "email"}
			},
			"schema_version": "agentic_v1"
		}
	}`
	resp, err := http.Post(ts.URL+"/api/bots", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("create bot request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create bot status = %d", resp.StatusCode)
	}
	var envelope struct {
		Status string           `json:"status"`
		Result models.BotConfig `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode create bot response: %v", err)
	}
	if !strings.HasPrefix(envelope.Result.ID, "bot_") {
		t.Fatalf("bot ID missing prefix: %q", envelope.Result.ID)
	}
	return envelope.Result.ID
}

func createTestConversation(t *testing.T, ts *httptest.Server, botID string) string {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/bots/"+botID+"/conversations", "application/json", nil)
	if err != nil {
		t.Fatalf("create conversation request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create conversation status = %d", resp.StatusCode)
	}
	var envelope struct {
		Result models.Conversation `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode create conversation response: %v", err)
	}
	if !strings.HasPrefix(envelope.Result.ID, "conv_") {
		t.Fatalf("conversation ID missing prefix: %q", envelope.Result.ID)
	}
	if envelope.Result.State.Phase != models.PhaseIntroduction {
		t.Fatalf("new conversation phase = %s", envelope.Result.State.Phase)
	}
	return envelope.Result.ID
}

func TestCreateBotRejectsInvalidSchema(t *testing.T) {
	ts, _ := newTestServer(t, &fakeGenAI{})
	resp, err := http.Post(ts.URL+"/api/bots", "application/json",
		strings.NewReader(`{"name": "Broken", "schema": {"goal": "g", "system_prompt": "p", "required_info": {}, "schema_version": "agentic_v1"}}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for empty required_info, got %d", resp.StatusCode)
	}
}

func TestGetBotNotFound(t *testing.T) {
	ts, _ := newTestServer(t, &fakeGenAI{})
	resp, err := http.Get(ts.URL + "/api/bots/bot_missing")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestBufferedTurn(t *testing.T) {
	client := &fakeGenAI{decision: &models.Decision{
		Reply:                "Nice to meet you, Jane! What's your email?",
		ExtractedInformation: map[string]string{"name": "Jane Doe"},
		UpdatedPhase:         models.PhaseCollecting,
	}}
	ts, st := newTestServer(t, client)
	botID := createTestBot(t, ts)
	convID := createTestConversation(t, ts, botID)

	resp, err := http.Post(ts.URL+"/api/bots/"+botID+"/conversations/"+convID+"/messages",
		"application/json", strings.NewReader(`{"message": "Hi, I'm Jane Doe"}`))
	if err != nil {
		t.Fatalf("message request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("message status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var turn models.ChatTurnResponse
	if err := json.NewDecoder(resp.Body).Decode(&turn); err != nil {
		t.Fatalf("decode turn response: %v", err)
	}
	if turn.Reply != "Nice to meet you, Jane! What's your email?" {
		t.Errorf("unexpected reply %q", turn.Reply)
	}
	if turn.UpdatedState.GatheredInformation["name"] != "Jane Doe" {
		t.Errorf("extraction missing from updated state: %+v", turn.UpdatedState.GatheredInformation)
	}

	// The turn must be persisted.
	saved, err := st.GetConversation(convID)
	if err != nil {
		t.Fatalf("load saved conversation: %v", err)
	}
	if len(saved.Messages) != 2 {
		t.Errorf("expected 2 persisted messages, got %d", len(saved.Messages))
	}
}

func TestBufferedTurnDecisionFailureLeavesStateUntouched(t *testing.T) {
	client := &fakeGenAI{err: errors.New("upstream down")}
	ts, st := newTestServer(t, client)
	botID := createTestBot(t, ts)
	convID := createTestConversation(t, ts, botID)

	resp, err := http.Post(ts.URL+"/api/bots/"+botID+"/conversations/"+convID+"/messages",
		"application/json", strings.NewReader(`{"message": "hello"}`))
	if err != nil {
		t.Fatalf("message request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("message status = %d", resp.StatusCode)
	}
	var turn models.ChatTurnResponse
	if err := json.NewDecoder(resp.Body).Decode(&turn); err != nil {
		t.Fatalf("decode turn response: %v", err)
	}
	if turn.Reply != ConnectivityApology {
		t.Errorf("expected connectivity apology, got %q", turn.Reply)
	}

	saved, err := st.GetConversation(convID)
	if err != nil {
		t.Fatalf("load saved conversation: %v", err)
	}
	if len(saved.Messages) != 0 {
		t.Errorf("failed turn must not persist messages, got %d", len(saved.Messages))
	}
}

func TestMessagesRejectsEmptyTurn(t *testing.T) {
	ts, _ := newTestServer(t, &fakeGenAI{})
	botID := createTestBot(t, ts)
	convID := createTestConversation(t, ts, botID)

	resp, err := http.Post(ts.URL+"/api/bots/"+botID+"/conversations/"+convID+"/messages",
		"application/json", strings.NewReader(`{"message": ""}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for empty turn, got %d", resp.StatusCode)
	}
}

func TestConversationOwnershipEnforced(t *testing.T) {
	ts, _ := newTestServer(t, &fakeGenAI{})
	botID := createTestBot(t, ts)
	otherBotID := createTestBot(t, ts)
	convID := createTestConversation(t, ts, botID)

	resp, err := http.Post(ts.URL+"/api/bots/"+otherBotID+"/conversations/"+convID+"/messages",
		"application/json", strings.NewReader(`{"message": "hi"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for foreign conversation, got %d", resp.StatusCode)
	}
}

func readSSEChunks(t *testing.T, resp *http.Response) []models.StreamChunk {
	t.Helper()
	var chunks []models.StreamChunk
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var chunk models.StreamChunk
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
			t.Fatalf("unmarshal SSE chunk %q: %v", line, err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func TestStreamingTurn(t *testing.T) {
	client := &fakeGenAI{
		tokens: []string{"Hi ", "Jane", "!"},
		decision: &models.Decision{
			Reply:                "Hi Jane!",
			ExtractedInformation: map[string]string{"name": "Jane Doe"},
			UpdatedPhase:         models.PhaseCollecting,
		},
	}
	ts, _ := newTestServer(t, client)
	botID := createTestBot(t, ts)
	convID := createTestConversation(t, ts, botID)

	req, err := http.NewRequest(http.MethodPost,
		ts.URL+"/api/bots/"+botID+"/conversations/"+convID+"/messages",
		strings.NewReader(`{"message": "Hi, I'm Jane Doe"}`))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("streaming request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache, no-transform" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if ab := resp.Header.Get("X-Accel-Buffering"); ab != "no" {
		t.Errorf("X-Accel-Buffering = %q", ab)
	}

	chunks := readSSEChunks(t, resp)
	if len(chunks) != 5 {
		t.Fatalf("expected 3 tokens + state_update + done, got %d chunks", len(chunks))
	}
	var text strings.Builder
	for _, ch := range chunks[:3] {
		if ch.Type != models.ChunkTypeToken {
			t.Fatalf("expected token chunk, got %s", ch.Type)
		}
		text.WriteString(ch.Content)
	}
	if text.String() != "Hi Jane!" {
		t.Errorf("streamed text = %q", text.String())
	}
	if chunks[3].Type != models.ChunkTypeStateUpdate || chunks[3].State == nil {
		t.Errorf("chunk 4 must be state_update, got %s", chunks[3].Type)
	}
	if chunks[3].State.GatheredInformation["name"] != "Jane Doe" {
		t.Errorf("state_update missing extraction: %+v", chunks[3].State.GatheredInformation)
	}
	if chunks[4].Type != models.ChunkTypeDone {
		t.Errorf("final chunk must be done, got %s", chunks[4].Type)
	}
}

func TestStreamingTurnErrorReplacesDone(t *testing.T) {
	client := &fakeGenAI{tokens: []string{"par"}, err: errors.New("stream cut")}
	ts, _ := newTestServer(t, client)
	botID := createTestBot(t, ts)
	convID := createTestConversation(t, ts, botID)

	req, _ := http.NewRequest(http.MethodPost,
		ts.URL+"/api/bots/"+botID+"/conversations/"+convID+"/messages",
		strings.NewReader(`{"message": "hello"}`))
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("streaming request failed: %v", err)
	}
	defer resp.Body.Close()

	chunks := readSSEChunks(t, resp)
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	last := chunks[len(chunks)-1]
	if last.Type != models.ChunkTypeError {
		t.Fatalf("final chunk must be error, got %s", last.Type)
	}
	for _, ch := range chunks {
		if ch.Type == models.ChunkTypeDone {
			t.Error("done must never follow an error")
		}
	}
}

func TestSubmissionsEndpoint(t *testing.T) {
	ts, st := newTestServer(t, &fakeGenAI{})
	botID := createTestBot(t, ts)

	sub := models.Submission{
		ID:                  "sub_1",
		BotID:               botID,
		GatheredInformation: map[string]string{"name": "Jane Doe"},
	}
	if err := st.AddSubmission(sub); err != nil {
		t.Fatalf("seed submission: %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/bots/" + botID + "/submissions")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var envelope struct {
		Result []models.Submission `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Result) != 1 || envelope.Result[0].GatheredInformation["name"] != "Jane Doe" {
		t.Errorf("unexpected submissions payload: %+v", envelope.Result)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, &fakeGenAI{})
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
}
