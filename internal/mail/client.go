// Package mail provides the mailbox adapter: listing newly arrived messages
// and mutating per-message labels on the remote mail store via the Gmail
// REST API.
package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const gmailBaseURL = "https://gmail.googleapis.com/gmail/v1"

// googleEndpoint is declared here to avoid pulling in the google subpackage's
// cloud metadata dependency.
var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// Client fetches messages and mutates labels on a Gmail mailbox
type Client struct {
	httpClient *http.Client
	baseURL    string
	user       string

	labelMu    sync.Mutex
	labelCache map[string]string // label name (lowercased) -> label ID
}

// Options configures the Gmail client
type Options struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	User         string
	// BaseURL overrides the Gmail API endpoint (used in tests)
	BaseURL string
	// HTTPClient overrides the OAuth2 client (used in tests)
	HTTPClient *http.Client
}

// NewClient creates a Gmail mailbox client authenticated with a refresh token
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		conf := &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint:     googleEndpoint,
		}
		token := &oauth2.Token{RefreshToken: opts.RefreshToken}
		httpClient = oauth2.NewClient(context.Background(), conf.TokenSource(context.Background(), token))
		httpClient.Timeout = 60 * time.Second
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = gmailBaseURL
	}

	user := opts.User
	if user == "" {
		user = "me"
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		user:       user,
		labelCache: make(map[string]string),
	}
}

// Gmail API response structures
type listResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type messagePart struct {
	MimeType string `json:"mimeType"`
	Filename string `json:"filename"`
	Headers  []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
	Body struct {
		Size         int64  `json:"size"`
		Data         string `json:"data"`
		AttachmentID string `json:"attachmentId"`
	} `json:"body"`
	Parts []messagePart `json:"parts"`
}

type messageResponse struct {
	ID      string      `json:"id"`
	Payload messagePart `json:"payload"`
}

type attachmentResponse struct {
	Size int64  `json:"size"`
	Data string `json:"data"`
}

type labelsResponse struct {
	Labels []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"labels"`
}

// FetchNewMessages lists unprocessed inbox messages and retrieves their full
// content, in the order the mailbox returns them.
func (c *Client) FetchNewMessages(ctx context.Context, processedLabel string) ([]Message, error) {
	query := fmt.Sprintf("in:inbox -label:%s", processedLabel)
	listURL := fmt.Sprintf("%s/users/%s/messages?q=%s", c.baseURL, c.user, url.QueryEscape(query))

	var list listResponse
	if err := c.getJSON(ctx, listURL, &list); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	messages := make([]Message, 0, len(list.Messages))
	for _, ref := range list.Messages {
		msg, err := c.fetchMessage(ctx, ref.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch message %s: %w", ref.ID, err)
		}
		messages = append(messages, *msg)
	}
	return messages, nil
}

// fetchMessage retrieves and decodes one full message
func (c *Client) fetchMessage(ctx context.Context, id string) (*Message, error) {
	msgURL := fmt.Sprintf("%s/users/%s/messages/%s?format=full", c.baseURL, c.user, id)

	var resp messageResponse
	if err := c.getJSON(ctx, msgURL, &resp); err != nil {
		return nil, err
	}

	msg := &Message{ID: resp.ID}
	for _, h := range resp.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "message-id":
			msg.MessageID = strings.TrimSpace(h.Value)
		case "subject":
			msg.Subject = h.Value
		case "from":
			msg.From = append(msg.From, h.Value)
		case "date":
			msg.Date = h.Value
		}
	}

	if err := c.walkParts(ctx, id, resp.Payload, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// walkParts descends the MIME tree collecting bodies and attachments
func (c *Client) walkParts(ctx context.Context, messageID string, part messagePart, msg *Message) error {
	if part.Filename != "" {
		att, err := c.loadAttachment(ctx, messageID, part)
		if err != nil {
			return err
		}
		msg.Attachments = append(msg.Attachments, *att)
	} else if part.Body.Data != "" {
		decoded, err := decodeBase64URL(part.Body.Data)
		if err != nil {
			return fmt.Errorf("decode body part: %w", err)
		}
		switch {
		case strings.HasPrefix(part.MimeType, "text/plain") && msg.TextBody == "":
			msg.TextBody = string(decoded)
		case strings.HasPrefix(part.MimeType, "text/html") && msg.HTMLBody == "":
			msg.HTMLBody = string(decoded)
		}
	}

	for _, child := range part.Parts {
		if err := c.walkParts(ctx, messageID, child, msg); err != nil {
			return err
		}
	}
	return nil
}

// loadAttachment materializes an attachment, fetching its content separately
// when the payload only carries an attachment reference
func (c *Client) loadAttachment(ctx context.Context, messageID string, part messagePart) (*Attachment, error) {
	att := &Attachment{
		Filename:    part.Filename,
		ContentType: part.MimeType,
		Size:        part.Body.Size,
	}
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, "Content-Disposition") {
			att.ContentDisposition = h.Value
		}
	}

	data := part.Body.Data
	if data == "" && part.Body.AttachmentID != "" {
		attURL := fmt.Sprintf("%s/users/%s/messages/%s/attachments/%s",
			c.baseURL, c.user, messageID, part.Body.AttachmentID)
		var resp attachmentResponse
		if err := c.getJSON(ctx, attURL, &resp); err != nil {
			return nil, fmt.Errorf("fetch attachment %s: %w", part.Filename, err)
		}
		data = resp.Data
		if resp.Size > 0 {
			att.Size = resp.Size
		}
	}

	if data != "" {
		decoded, err := decodeBase64URL(data)
		if err != nil {
			return nil, fmt.Errorf("decode attachment %s: %w", part.Filename, err)
		}
		att.Content = decoded
		if att.Size == 0 {
			att.Size = int64(len(decoded))
		}
	}
	return att, nil
}

// SetLabels applies label mutations to a message by label name
func (c *Client) SetLabels(ctx context.Context, messageID string, add, remove []string) error {
	addIDs, err := c.resolveLabelIDs(ctx, add, true)
	if err != nil {
		return err
	}
	removeIDs, err := c.resolveLabelIDs(ctx, remove, false)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string][]string{
		"addLabelIds":    addIDs,
		"removeLabelIds": removeIDs,
	})
	if err != nil {
		return fmt.Errorf("marshal modify request: %w", err)
	}

	modifyURL := fmt.Sprintf("%s/users/%s/messages/%s/modify", c.baseURL, c.user, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, modifyURL, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("build modify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("modify labels: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("modify labels returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// systemLabels are the reserved Gmail labels whose name doubles as their ID.
// User labels, whatever their casing, must be resolved or created.
var systemLabels = map[string]bool{
	"INBOX":     true,
	"SPAM":      true,
	"TRASH":     true,
	"UNREAD":    true,
	"STARRED":   true,
	"IMPORTANT": true,
	"SENT":      true,
	"DRAFT":     true,
}

// resolveLabelIDs maps label names to Gmail label IDs, optionally creating
// missing user labels. System labels (INBOX, SPAM, ...) are already IDs.
func (c *Client) resolveLabelIDs(ctx context.Context, names []string, createMissing bool) ([]string, error) {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		if systemLabels[name] {
			ids = append(ids, name)
			continue
		}
		id, err := c.labelID(ctx, name, createMissing)
		if err != nil {
			return nil, err
		}
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *Client) labelID(ctx context.Context, name string, createMissing bool) (string, error) {
	c.labelMu.Lock()
	defer c.labelMu.Unlock()

	key := strings.ToLower(name)
	if id, ok := c.labelCache[key]; ok {
		return id, nil
	}

	labelsURL := fmt.Sprintf("%s/users/%s/labels", c.baseURL, c.user)
	var resp labelsResponse
	if err := c.getJSON(ctx, labelsURL, &resp); err != nil {
		return "", fmt.Errorf("list labels: %w", err)
	}
	for _, l := range resp.Labels {
		c.labelCache[strings.ToLower(l.Name)] = l.ID
	}
	if id, ok := c.labelCache[key]; ok {
		return id, nil
	}
	if !createMissing {
		return "", nil
	}

	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, labelsURL, strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create label %s: %w", name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("create label %s returned HTTP %d", name, httpResp.StatusCode)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode created label: %w", err)
	}
	c.labelCache[key] = created.ID
	return created.ID, nil
}

// getJSON performs a GET request and decodes the JSON response
func (c *Client) getJSON(ctx context.Context, rawURL string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// decodeBase64URL decodes Gmail's base64url payloads, with or without padding
func decodeBase64URL(data string) ([]byte, error) {
	if decoded, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return decoded, nil
	}
	return base64.URLEncoding.DecodeString(data)
}
