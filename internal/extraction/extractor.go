// Package extraction turns free-form incident emails into structured fields.
// The AI path is attempted once per message, gated by the rate limiter; every
// failure falls back to deterministic extraction so Parse is total.
package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/incidentdesk/incidentdesk/internal/database"
)

// CallerName identifies the parser in the api_usage audit trail
const CallerName = "incident_parser"

// Placeholders used when extraction yields empty fields
const (
	TitlePlaceholder       = "Untitled incident"
	DescriptionPlaceholder = "No description provided"
)

// ExtractedFields is the fully-populated, schema-valid parser output
type ExtractedFields struct {
	Title        string
	Description  string
	ReporterName string
	Urgency      database.IncidentUrgency
	LocationName string
	ExistingTags []string
	NewTags      []string
	IsPrivate    bool
}

// CallGate is the rate limiter surface the parser depends on
type CallGate interface {
	CanCall() bool
	RegisterCall(caller string, success bool, tokensUsed int, errorMessage string)
}

// Extractor extracts incident fields from email content using AI
type Extractor struct {
	httpClient *http.Client
	gate       CallGate
	apiKey     string
	model      string
	baseURL    string
}

// NewExtractor creates a new incident field extractor
func NewExtractor(gate CallGate, apiKey, model, baseURL string) *Extractor {
	return &Extractor{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		gate:    gate,
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
	}
}

// OpenAI API request/response structures
type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// aiFields mirrors the JSON object the prompt asks the model to return
type aiFields struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	ReporterName string   `json:"reporter_name"`
	Urgency      string   `json:"urgency"`
	LocationName string   `json:"location_name"`
	ExistingTags []string `json:"existing_tags"`
	NewTags      []string `json:"new_tags"`
	IsPrivate    *bool    `json:"is_private"`
}

// Parse extracts structured fields from one email. It never fails: when the
// AI path is rate-limited, unreachable, or returns something unusable, the
// deterministic fallback is used instead.
func (e *Extractor) Parse(subject, body, sender string) ExtractedFields {
	if e.gate != nil && !e.gate.CanCall() {
		return Normalize(Fallback(subject, body, sender))
	}

	fields, err := e.callAI(subject, body, sender)
	if err != nil {
		log.Printf("AI extraction failed, using fallback: %v", err)
		if e.gate != nil {
			e.gate.RegisterCall(CallerName, false, 0, err.Error())
		}
		return Normalize(Fallback(subject, body, sender))
	}

	return Normalize(*fields)
}

// callAI sends exactly one prompt and parses the JSON response
func (e *Extractor) callAI(subject, body, sender string) (*ExtractedFields, error) {
	reqBody := openAIRequest{
		Model: e.model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(subject, body, sender)},
		},
		MaxTokens:   500,
		Temperature: 0.2,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequest("POST", e.baseURL+"/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if openAIResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", openAIResp.Error.Message)
	}
	if len(openAIResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	content := StripCodeFences(openAIResp.Choices[0].Message.Content)

	var parsed aiFields
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("malformed JSON in AI response: %w", err)
	}

	if e.gate != nil {
		e.gate.RegisterCall(CallerName, true, openAIResp.Usage.TotalTokens, "")
	}

	isPrivate := true
	if parsed.IsPrivate != nil {
		isPrivate = *parsed.IsPrivate
	}

	return &ExtractedFields{
		Title:        parsed.Title,
		Description:  parsed.Description,
		ReporterName: parsed.ReporterName,
		Urgency:      database.IncidentUrgency(parsed.Urgency),
		LocationName: parsed.LocationName,
		ExistingTags: parsed.ExistingTags,
		NewTags:      parsed.NewTags,
		IsPrivate:    isPrivate,
	}, nil
}

const systemPrompt = `You extract structured incident data from emails sent to a facilities helpdesk.

Respond with ONLY one JSON object, no prose, with exactly these fields:
- "title": short factual summary of the problem
- "description": the full problem description
- "reporter_name": who is reporting the problem
- "urgency": one of "low", "medium", "high", "critical"
- "location_name": the place the problem occurred, or null if not mentioned
- "existing_tags": list of category words that describe the problem
- "new_tags": list of additional category words not covered by existing_tags
- "is_private": true unless the report is clearly meant to be public

IMPORTANT: the email may be a FORWARD. When the body contains markers such as
"From:", "De:" or "Enviado por:", the true reporter is the person named after
that marker inside the body, NOT the outer sender. Use the outer sender only
when no such marker exists.

Only use information present in the email. Do not invent details.`

// buildUserPrompt embeds the message content into a single prompt
func buildUserPrompt(subject, body, sender string) string {
	return fmt.Sprintf("Sender: %s\nSubject: %s\n\nBody:\n%s",
		sender, subject, truncateForPrompt(body, 6000))
}

// StripCodeFences removes a leading/trailing fenced code block delimiter,
// tolerating responses like "```json\n{...}\n```"
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the language tag on the opening fence, if any
	if idx := strings.Index(s, "\n"); idx >= 0 && !strings.ContainsAny(s[:idx], "{}") {
		s = s[idx+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// truncateForPrompt truncates a string to fit in the prompt, backing up to a
// rune boundary so multi-byte characters are never split
func truncateForPrompt(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
