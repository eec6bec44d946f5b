package testutil

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// FakeGmail serves the two Gmail API calls used for ingestion:
// users.messages.list (newest first, paged) and users.messages.get?format=raw.
type FakeGmail struct {
	URL string

	mu       sync.Mutex
	ids      []string // newest first
	raw      map[string][]byte
	failList bool
	// ListCalls and GetCalls count requests served.
	ListCalls int
	GetCalls  int
	// AuthHeaders records the Authorization header of each request.
	AuthHeaders []string
}

// NewFakeGmail starts a fake Gmail API server closed at test end.
// Pass its URL to mailbox.WithEndpoint.
func NewFakeGmail(t testing.TB) *FakeGmail {
	t.Helper()

	f := &FakeGmail{raw: make(map[string][]byte)}
	server := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(server.Close)
	f.URL = server.URL + "/"
	return f
}

// Deliver puts a message on top of the mailbox, making it the newest.
func (f *FakeGmail) Deliver(id string, raw []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ids = append([]string{id}, f.ids...)
	f.raw[id] = raw
}

// FailList makes every list call return 500 until reset.
func (f *FakeGmail) FailList(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failList = fail
}

// Counts returns the list and get call counters.
func (f *FakeGmail) Counts() (list, get int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ListCalls, f.GetCalls
}

type listResponse struct {
	Messages      []messageRef `json:"messages"`
	NextPageToken string       `json:"nextPageToken,omitempty"`
}

type messageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
	Raw      string `json:"raw,omitempty"`
}

func (f *FakeGmail) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.AuthHeaders = append(f.AuthHeaders, r.Header.Get("Authorization"))

	const prefix = "/gmail/v1/users/me/messages"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}

	rest := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, prefix), "/")
	w.Header().Set("Content-Type", "application/json")

	if rest == "" {
		f.ListCalls++
		if f.failList {
			http.Error(w, `{"error":{"code":500,"message":"backend error"}}`, http.StatusInternalServerError)
			return
		}
		f.writeList(w, r)
		return
	}

	f.GetCalls++
	raw, ok := f.raw[rest]
	if !ok {
		http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(messageRef{
		ID:       rest,
		ThreadID: rest,
		Raw:      base64.URLEncoding.EncodeToString(raw),
	})
}

func (f *FakeGmail) writeList(w http.ResponseWriter, r *http.Request) {
	pageSize, err := strconv.Atoi(r.URL.Query().Get("maxResults"))
	if err != nil || pageSize <= 0 {
		pageSize = 100
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("pageToken"))

	resp := listResponse{Messages: []messageRef{}}
	end := offset + pageSize
	if end > len(f.ids) {
		end = len(f.ids)
	}
	for _, id := range f.ids[min(offset, len(f.ids)):end] {
		resp.Messages = append(resp.Messages, messageRef{ID: id, ThreadID: id})
	}
	if end < len(f.ids) {
		resp.NextPageToken = strconv.Itoa(end)
	}

	_ = json.NewEncoder(w).Encode(resp)
}
