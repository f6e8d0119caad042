package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func b64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

// newGmailServer serves a minimal Gmail API surface with one inbox message
func newGmailServer(t *testing.T, recorded *map[string]int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		(*recorded)["list:"+r.URL.Query().Get("q")]++
		fmt.Fprint(w, `{"messages": [{"id": "gm-1"}]}`)
	})

	mux.HandleFunc("/users/me/messages/gm-1", func(w http.ResponseWriter, r *http.Request) {
		(*recorded)["get"]++
		fmt.Fprintf(w, `{
			"id": "gm-1",
			"payload": {
				"mimeType": "multipart/mixed",
				"headers": [
					{"name": "Message-ID", "value": "<m1@example.org>"},
					{"name": "Subject", "value": "Fwd: Broken projector"},
					{"name": "From", "value": "ana@example.org"},
					{"name": "Date", "value": "Mon, 02 Jun 2025 10:00:00 +0200"}
				],
				"parts": [
					{"mimeType": "text/plain", "body": {"data": %q}},
					{"mimeType": "text/html", "body": {"data": %q}},
					{
						"mimeType": "image/jpeg",
						"filename": "photo.jpg",
						"headers": [{"name": "Content-Disposition", "value": "attachment"}],
						"body": {"size": 9, "attachmentId": "att-1"}
					}
				]
			}
		}`, b64("the projector is broken"), b64("<p>html</p>"))
	})

	mux.HandleFunc("/users/me/messages/gm-1/attachments/att-1", func(w http.ResponseWriter, r *http.Request) {
		(*recorded)["attachment"]++
		fmt.Fprintf(w, `{"size": 9, "data": %q}`, b64("jpg-bytes"))
	})

	mux.HandleFunc("/users/me/labels", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			(*recorded)["create-label"]++
			fmt.Fprint(w, `{"id": "Label_7", "name": "processed"}`)
			return
		}
		(*recorded)["list-labels"]++
		fmt.Fprint(w, `{"labels": [{"id": "INBOX", "name": "INBOX"}]}`)
	})

	mux.HandleFunc("/users/me/messages/gm-1/modify", func(w http.ResponseWriter, r *http.Request) {
		var body map[string][]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode modify body: %v", err)
		}
		(*recorded)["modify:"+fmt.Sprint(body["addLabelIds"], body["removeLabelIds"])]++
		fmt.Fprint(w, `{}`)
	})

	return httptest.NewServer(mux)
}

func newTestClient(serverURL string) *Client {
	return NewClient(Options{
		BaseURL:    serverURL,
		HTTPClient: http.DefaultClient,
	})
}

func TestClient_FetchNewMessages(t *testing.T) {
	recorded := map[string]int{}
	server := newGmailServer(t, &recorded)
	defer server.Close()

	client := newTestClient(server.URL)
	messages, err := client.FetchNewMessages(context.Background(), "processed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if recorded["list:in:inbox -label:processed"] != 1 {
		t.Errorf("expected list query excluding the processed label, got %v", recorded)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	msg := messages[0]
	if msg.ID != "gm-1" || msg.MessageID != "<m1@example.org>" {
		t.Errorf("unexpected identifiers: %q / %q", msg.ID, msg.MessageID)
	}
	if msg.Subject != "Fwd: Broken projector" {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
	if msg.Sender() != "ana@example.org" {
		t.Errorf("unexpected sender %q", msg.Sender())
	}
	if msg.Body() != "the projector is broken" {
		t.Errorf("expected plain text body, got %q", msg.Body())
	}
	if msg.HTMLBody != "<p>html</p>" {
		t.Errorf("expected html body kept, got %q", msg.HTMLBody)
	}

	if len(msg.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(msg.Attachments))
	}
	att := msg.Attachments[0]
	if att.Filename != "photo.jpg" || att.ContentType != "image/jpeg" {
		t.Errorf("unexpected attachment metadata: %+v", att)
	}
	if string(att.Content) != "jpg-bytes" {
		t.Errorf("expected attachment content fetched separately, got %q", att.Content)
	}
	if att.ContentDisposition != "attachment" {
		t.Errorf("expected content disposition kept, got %q", att.ContentDisposition)
	}
}

func TestClient_SetLabels(t *testing.T) {
	recorded := map[string]int{}
	server := newGmailServer(t, &recorded)
	defer server.Close()

	client := newTestClient(server.URL)
	err := client.SetLabels(context.Background(), "gm-1", []string{"processed"}, []string{"INBOX"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// "processed" is a user label: missing, so created; "INBOX" is a system
	// label used as-is
	if recorded["create-label"] != 1 {
		t.Errorf("expected missing user label to be created, got %v", recorded)
	}
	if recorded["modify:[Label_7] [INBOX]"] != 1 {
		t.Errorf("expected modify with resolved ids, got %v", recorded)
	}

	// Second call hits the label cache
	if err := client.SetLabels(context.Background(), "gm-1", []string{"processed"}, []string{"INBOX"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recorded["list-labels"] != 1 {
		t.Errorf("expected label listing cached after first resolution, got %d", recorded["list-labels"])
	}
}

func TestClient_SetLabels_UppercaseUserLabel(t *testing.T) {
	recorded := map[string]int{}
	server := newGmailServer(t, &recorded)
	defer server.Close()

	// An all-uppercase configured label is still a user label: it must be
	// resolved and created, not passed through as a system label ID
	client := newTestClient(server.URL)
	err := client.SetLabels(context.Background(), "gm-1", []string{"PROCESSED"}, []string{"INBOX"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if recorded["create-label"] != 1 {
		t.Errorf("expected uppercase user label to be created, got %v", recorded)
	}
	if recorded["modify:[Label_7] [INBOX]"] != 1 {
		t.Errorf("expected modify with the created label id, got %v", recorded)
	}
}

func TestClient_FetchNewMessages_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if _, err := client.FetchNewMessages(context.Background(), "processed"); err == nil {
		t.Error("expected error for non-200 response")
	}
}
