// Package client provides a Go client for the Vibechecker API.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a Vibechecker API client.
type Client struct {
	BaseURL      string
	HTTPClient   *http.Client
	ClientID     string
	ClientSecret string
	Token        string
	TokenExp     time.Time
}

// New creates a new Vibechecker client.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// VibeResult is one scored text as returned by the API.
type VibeResult struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	Vibe      string  `json:"vibe"`
	Score     float64 `json:"score"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// Register creates a client application and stores its credentials on the
// client. The secret is only ever returned here.
func (c *Client) Register(name, email, uri string) error {
	var result struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
		Error        string `json:"error"`
	}
	if err := c.postJSON("/register", map[string]string{"name": name, "email": email, "uri": uri}, &result, false); err != nil {
		return err
	}
	if result.Error != "" {
		return errors.New(result.Error)
	}
	c.ClientID = result.ClientID
	c.ClientSecret = result.ClientSecret
	return nil
}

// GetChallenge requests a math challenge from the server.
func (c *Client) GetChallenge() (id, question string, err error) {
	resp, err := c.HTTPClient.Get(c.BaseURL + "/math_challenge")
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	var result struct {
		ChallengeID string `json:"challenge_id"`
		Question    string `json:"question"`
		Error       string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", err
	}
	if result.Error != "" {
		return "", "", errors.New(result.Error)
	}
	return result.ChallengeID, result.Question, nil
}

// SolveQuestion answers an "a+b=?" prompt.
func SolveQuestion(question string) (int, error) {
	q := strings.TrimSuffix(strings.TrimSpace(question), "=?")
	parts := strings.Split(q, "+")
	if len(parts) != 2 {
		return 0, fmt.Errorf("unrecognized question %q", question)
	}
	a, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, err
	}
	b, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, err
	}
	return a + b, nil
}

// Login fetches a challenge, solves it, and exchanges it together with the
// stored credentials for a bearer token.
func (c *Client) Login() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return errors.New("client credentials not set")
	}
	challengeID, question, err := c.GetChallenge()
	if err != nil {
		return fmt.Errorf("get challenge: %w", err)
	}
	answer, err := SolveQuestion(question)
	if err != nil {
		return fmt.Errorf("solve challenge: %w", err)
	}

	form := url.Values{}
	form.Set("challenge_id", challengeID)
	form.Set("challenge_answer", strconv.Itoa(answer))
	req, err := http.NewRequest(http.MethodPost, c.BaseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.ClientID, c.ClientSecret)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Error       string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	if result.Error != "" {
		return errors.New(result.Error)
	}
	c.Token = result.AccessToken
	c.TokenExp = time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	return nil
}

// CustomWords adds or removes words on one of the caller's lists.
func (c *Client) CustomWords(action, category string, words []string) (string, error) {
	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	body := map[string]any{"action": action, "category": category, "words": words}
	if err := c.postJSON("/custom-words", body, &result, true); err != nil {
		return "", err
	}
	if result.Error != "" {
		return "", errors.New(result.Error)
	}
	return result.Message, nil
}

// Detect scans a text against the caller's word lists.
func (c *Client) Detect(text string) (profane bool, words []string, err error) {
	var result struct {
		IsProfane     bool     `json:"isProfane"`
		DetectedWords []string `json:"detected_words"`
		Error         string   `json:"error"`
	}
	if err := c.postJSON("/detect", map[string]string{"text": text}, &result, true); err != nil {
		return false, nil, err
	}
	if result.Error != "" {
		return false, nil, errors.New(result.Error)
	}
	return result.IsProfane, result.DetectedWords, nil
}

// VibeSingle scores one text.
func (c *Client) VibeSingle(text string) (VibeResult, error) {
	var result struct {
		VibeResult
		Error string `json:"error"`
	}
	if err := c.postJSON("/vibe-check/single", map[string]string{"text": text}, &result, true); err != nil {
		return VibeResult{}, err
	}
	if result.Error != "" {
		return VibeResult{}, errors.New(result.Error)
	}
	return result.VibeResult, nil
}

// VibeBatch scores up to 100 texts in one call.
func (c *Client) VibeBatch(texts []string) ([]VibeResult, error) {
	var result struct {
		Results []VibeResult `json:"results"`
		Error   string       `json:"error"`
	}
	if err := c.postJSON("/vibe-check/batch", map[string]any{"texts": texts}, &result, true); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, errors.New(result.Error)
	}
	return result.Results, nil
}

// Vibes lists the caller's history, newest first.
func (c *Client) Vibes(limit, offset int) ([]VibeResult, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/vibes?limit=%d&offset=%d", c.BaseURL, limit, offset), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		History []VibeResult `json:"history"`
		Error   string       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, errors.New(result.Error)
	}
	return result.History, nil
}

func (c *Client) postJSON(path string, body any, dest any, authed bool) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode %s response: %w (body %s)", path, err, string(raw))
	}
	return nil
}
