package mailer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedForm struct {
	mu   sync.Mutex
	path string
	form map[string][]string
}

func newMailgunServer(t *testing.T, status int, body string) (*httptest.Server, *capturedForm) {
	t.Helper()
	got := &capturedForm{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(1 << 20)
		got.mu.Lock()
		got.path = r.URL.Path
		got.form = r.PostForm
		got.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestMailgun_Send(t *testing.T) {
	srv, got := newMailgunServer(t, http.StatusOK, `{"id":"<20240501.1@mg.example.com>","message":"Queued. Thank you."}`)
	m := NewMailgun("mg.example.com", "key-test", "Accounts <no-reply@mg.example.com>").WithAPIBase(srv.URL + "/v3")

	id, err := m.Send(context.Background(), "john@example.com", "Welcome", "hello", "<p>hello</p>")
	require.NoError(t, err)
	assert.Equal(t, "<20240501.1@mg.example.com>", id)

	got.mu.Lock()
	defer got.mu.Unlock()
	assert.True(t, strings.HasSuffix(got.path, "/mg.example.com/messages"), got.path)
	assert.Equal(t, []string{"john@example.com"}, got.form["to"])
	assert.Equal(t, []string{"Welcome"}, got.form["subject"])
	assert.Equal(t, []string{"<p>hello</p>"}, got.form["html"])
}

func TestMailgun_SendError(t *testing.T) {
	srv, _ := newMailgunServer(t, http.StatusUnauthorized, `{"message":"Invalid private key"}`)
	m := NewMailgun("mg.example.com", "bad", "no-reply@mg.example.com").WithAPIBase(srv.URL + "/v3")

	_, err := m.Send(context.Background(), "john@example.com", "s", "t", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "john@example.com")
}
