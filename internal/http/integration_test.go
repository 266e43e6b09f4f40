package httpapp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/herta-labs/vibechecker/internal/auth"
	"github.com/herta-labs/vibechecker/internal/client"
	"github.com/herta-labs/vibechecker/internal/config"
	"github.com/herta-labs/vibechecker/internal/moderation"
	"github.com/herta-labs/vibechecker/internal/store/sqlite"

	"go.uber.org/zap"
)

type testClient struct {
	server *httptest.Server
	client *http.Client
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()
	return newTestClientWithConfig(t, config.Config{})
}

func newTestClientWithConfig(t *testing.T, cfg config.Config) *testClient {
	t.Helper()
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "test-signing-key"
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.ChallengeTTL == 0 {
		cfg.ChallengeTTL = time.Minute
	}
	dsnName := strings.NewReplacer("/", "_").Replace(t.Name())
	st, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", dsnName))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	authSvc := auth.NewService(st, []byte(cfg.JWTSecret), cfg.TokenTTL, cfg.ChallengeTTL)
	mod := moderation.NewService(st)
	server := NewServer(st, authSvc, mod, cfg, zap.NewNop())
	ts := httptest.NewServer(server)
	t.Cleanup(func() {
		ts.Close()
		_ = st.Close()
	})
	return &testClient{server: ts, client: ts.Client()}
}

func (c *testClient) postJSON(t *testing.T, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	payload, _ := json.Marshal(body)
	req, err := http.NewRequest(http.MethodPost, c.server.URL+path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	return resp
}

func (c *testClient) postForm(t *testing.T, path string, form url.Values, basicUser, basicPass string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, c.server.URL+path, strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basicUser != "" {
		req.SetBasicAuth(basicUser, basicPass)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	return resp
}

func (c *testClient) get(t *testing.T, path string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.server.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response, out *T) {
	t.Helper()
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("json decode: %v (body %s)", err, string(body))
	}
}

// registerAndLogin drives the full register -> challenge -> token flow
// through the API client and returns it ready to make authed calls.
func registerAndLogin(t *testing.T, tc *testClient, name string) *client.Client {
	t.Helper()
	c := client.New(tc.server.URL)
	if err := c.Register(name, "", ""); err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	if err := c.Login(); err != nil {
		t.Fatalf("login %s: %v", name, err)
	}
	return c
}

func bearer(c *client.Client) map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.Token}
}

func TestEndToEndModerationFlow(t *testing.T) {
	tc := newTestClient(t)
	c := registerAndLogin(t, tc, "flow-app")
	headers := bearer(c)

	resp := tc.postJSON(t, "/custom-words", map[string]any{
		"action":   "add",
		"category": "blacklist",
		"words":    []string{"badword", "heck"},
	}, headers)
	var wordsOut struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("custom-words status %d", resp.StatusCode)
	}
	decodeJSON(t, resp, &wordsOut)
	if !wordsOut.Success {
		t.Fatalf("expected success, got %+v", wordsOut)
	}

	resp = tc.postJSON(t, "/detect", map[string]string{"text": "this is a badword indeed"}, headers)
	var det struct {
		IsProfane     bool     `json:"isProfane"`
		DetectedWords []string `json:"detected_words"`
	}
	decodeJSON(t, resp, &det)
	if !det.IsProfane || len(det.DetectedWords) != 1 || det.DetectedWords[0] != "badword" {
		t.Fatalf("expected hit on badword, got %+v", det)
	}

	// Whitelist overrides blacklist.
	resp = tc.postJSON(t, "/custom-words", map[string]any{
		"action":   "add",
		"category": "whitelist",
		"words":    []string{"badword"},
	}, headers)
	resp.Body.Close()
	resp = tc.postJSON(t, "/detect", map[string]string{"text": "badword should now be ok"}, headers)
	var det2 struct {
		IsProfane bool   `json:"isProfane"`
		Message   string `json:"message"`
	}
	decodeJSON(t, resp, &det2)
	if det2.IsProfane {
		t.Fatalf("whitelist must suppress the hit, got %+v", det2)
	}
	if det2.Message != "no sensitive words detected" {
		t.Fatalf("unexpected message %q", det2.Message)
	}

	// Removing heck makes it clean.
	resp = tc.postJSON(t, "/custom-words", map[string]any{
		"action":   "remove",
		"category": "blacklist",
		"words":    []string{"heck"},
	}, headers)
	resp.Body.Close()
	resp = tc.postJSON(t, "/detect", map[string]string{"text": "heck"}, headers)
	var det3 struct {
		IsProfane bool `json:"isProfane"`
	}
	decodeJSON(t, resp, &det3)
	if det3.IsProfane {
		t.Fatalf("removed word must not hit")
	}
}

func TestCustomWordsValidation(t *testing.T) {
	tc := newTestClient(t)
	c := registerAndLogin(t, tc, "validation-app")
	headers := bearer(c)

	cases := []map[string]any{
		{"action": "upsert", "category": "blacklist", "words": []string{"x"}},
		{"action": "add", "category": "greylist", "words": []string{"x"}},
		{"action": "add", "category": "blacklist", "words": []string{}},
		{"action": "add", "category": "blacklist", "words": []string{"", "  "}},
	}
	for i, body := range cases {
		resp := tc.postJSON(t, "/custom-words", body, headers)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("case %d: expected 400, got %d", i, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp := tc.postJSON(t, "/custom-words", map[string]any{
		"action": "add", "category": "blacklist", "words": []string{"x"},
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTokenFlow(t *testing.T) {
	tc := newTestClient(t)

	c := client.New(tc.server.URL)
	if err := c.Register("token-app", "dev@example.com", "https://example.com"); err != nil {
		t.Fatalf("register: %v", err)
	}

	challengeID, question, err := c.GetChallenge()
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	answer, err := client.SolveQuestion(question)
	if err != nil {
		t.Fatalf("solve %q: %v", question, err)
	}

	// Wrong Basic credentials are rejected before the challenge burns.
	form := url.Values{"challenge_id": {challengeID}, "challenge_answer": {strconv.Itoa(answer)}}
	resp := tc.postForm(t, "/oauth/token", form, c.ClientID, "wrong-secret")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad secret, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Wrong answer is rejected and does not burn the challenge.
	badForm := url.Values{"challenge_id": {challengeID}, "challenge_answer": {strconv.Itoa(answer + 1)}}
	resp = tc.postForm(t, "/oauth/token", badForm, c.ClientID, c.ClientSecret)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong answer, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Correct answer succeeds.
	resp = tc.postForm(t, "/oauth/token", form, c.ClientID, c.ClientSecret)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
		Scope       string `json:"scope"`
	}
	decodeJSON(t, resp, &tok)
	if tok.AccessToken == "" || tok.TokenType != "Bearer" || tok.Scope != auth.TokenScope {
		t.Fatalf("unexpected token payload %+v", tok)
	}

	// Replaying the consumed challenge fails.
	resp = tc.postForm(t, "/oauth/token", form, c.ClientID, c.ClientSecret)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 on challenge replay, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTokenRequiresChallengeByDefault(t *testing.T) {
	tc := newTestClientWithConfig(t, config.Config{RequireChallenge: true})
	c := client.New(tc.server.URL)
	if err := c.Register("strict-app", "", ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	resp := tc.postForm(t, "/oauth/token", form, c.ClientID, c.ClientSecret)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a challenge, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestClientCredentialsCompatMode(t *testing.T) {
	tc := newTestClientWithConfig(t, config.Config{RequireChallenge: false})
	c := client.New(tc.server.URL)
	if err := c.Register("compat-app", "", ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	resp := tc.postForm(t, "/oauth/token", form, c.ClientID, c.ClientSecret)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 in compat mode, got %d", resp.StatusCode)
	}
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	decodeJSON(t, resp, &tok)
	if tok.AccessToken == "" {
		t.Fatalf("expected access token")
	}
}

func TestExpiredChallengeRejected(t *testing.T) {
	tc := newTestClientWithConfig(t, config.Config{ChallengeTTL: -time.Second})
	c := client.New(tc.server.URL)
	if err := c.Register("stale-app", "", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	challengeID, question, err := c.GetChallenge()
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	answer, err := client.SolveQuestion(question)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	form := url.Values{"challenge_id": {challengeID}, "challenge_answer": {strconv.Itoa(answer)}}
	resp := tc.postForm(t, "/oauth/token", form, c.ClientID, c.ClientSecret)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired challenge even with the right answer, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestVibeSingleAndHistory(t *testing.T) {
	tc := newTestClient(t)
	c := registerAndLogin(t, tc, "vibe-app")
	headers := bearer(c)

	resp := tc.postJSON(t, "/vibe-check/single", map[string]string{"text": "I absolutely love this!"}, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("single status %d", resp.StatusCode)
	}
	var single struct {
		ID     string  `json:"id"`
		Vibe   string  `json:"vibe"`
		Score  float64 `json:"score"`
		Detail struct {
			Positive float64 `json:"positive_score"`
			Negative float64 `json:"negative_score"`
			Neutral  float64 `json:"neutral_score"`
		} `json:"detail"`
	}
	decodeJSON(t, resp, &single)
	if !strings.HasPrefix(single.ID, "res_") || len(single.ID) != len("res_")+10 {
		t.Fatalf("expected zero-padded result id, got %q", single.ID)
	}
	if single.Vibe != "positive" {
		t.Fatalf("expected positive, got %q", single.Vibe)
	}

	resp = tc.postJSON(t, "/vibe-check/batch", map[string]any{"texts": []string{"This is great", "This is awful"}}, headers)
	var batch struct {
		Results []struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"results"`
	}
	decodeJSON(t, resp, &batch)
	if len(batch.Results) != 2 || batch.Results[0].Text != "This is great" {
		t.Fatalf("expected results in input order, got %+v", batch.Results)
	}

	resp = tc.get(t, "/vibes?limit=5", headers)
	var hist struct {
		History []struct {
			ID        string `json:"id"`
			Timestamp string `json:"timestamp"`
		} `json:"history"`
	}
	decodeJSON(t, resp, &hist)
	if len(hist.History) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(hist.History))
	}
	// Newest first.
	if hist.History[0].ID <= hist.History[2].ID {
		t.Fatalf("expected descending ids, got %+v", hist.History)
	}
	if _, err := time.Parse(time.RFC3339, hist.History[0].Timestamp); err != nil {
		t.Fatalf("bad timestamp %q: %v", hist.History[0].Timestamp, err)
	}
}

func TestVibeSingleLengthLimits(t *testing.T) {
	tc := newTestClient(t)
	c := registerAndLogin(t, tc, "length-app")
	headers := bearer(c)

	resp := tc.postJSON(t, "/vibe-check/single", map[string]string{"text": ""}, headers)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty text, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = tc.postJSON(t, "/vibe-check/single", map[string]string{"text": strings.Repeat("a", 501)}, headers)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for 501 chars, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = tc.postJSON(t, "/vibe-check/single", map[string]string{"text": strings.Repeat("a", 500)}, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for 500 chars, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestBatchBoundaries(t *testing.T) {
	tc := newTestClient(t)
	c := registerAndLogin(t, tc, "batch-app")
	headers := bearer(c)

	resp := tc.postJSON(t, "/vibe-check/batch", map[string]any{"texts": []string{}}, headers)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty batch, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	over := make([]string, 101)
	for i := range over {
		over[i] = fmt.Sprintf("text %d", i)
	}
	resp = tc.postJSON(t, "/vibe-check/batch", map[string]any{"texts": over}, headers)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for 101 texts, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	full := over[:100]
	resp = tc.postJSON(t, "/vibe-check/batch", map[string]any{"texts": full}, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for 100 texts, got %d", resp.StatusCode)
	}
	var batch struct {
		Results []struct {
			Text string `json:"text"`
		} `json:"results"`
	}
	decodeJSON(t, resp, &batch)
	if len(batch.Results) != 100 {
		t.Fatalf("expected 100 results, got %d", len(batch.Results))
	}
	for i, r := range batch.Results {
		if r.Text != full[i] {
			t.Fatalf("result %d out of order: %q", i, r.Text)
		}
	}
}

func TestHistoryScopedToCaller(t *testing.T) {
	tc := newTestClient(t)
	alice := registerAndLogin(t, tc, "alice-app")
	bob := registerAndLogin(t, tc, "bob-app")

	resp := tc.postJSON(t, "/vibe-check/single", map[string]string{"text": "alice writes this"}, bearer(alice))
	resp.Body.Close()

	resp = tc.get(t, "/vibes", bearer(bob))
	var hist struct {
		History []struct {
			Text string `json:"text"`
		} `json:"history"`
	}
	decodeJSON(t, resp, &hist)
	if len(hist.History) != 0 {
		t.Fatalf("bob must not see alice's history, got %+v", hist.History)
	}
}
