package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failureEvent() *Event {
	return &Event{
		Kind:    KindFailure,
		JobName: "sync-fixtures",
		Message: "provider returned <502>",
		Stack:   "goroutine 1 [running]:",
		Context: map[string]any{"attempts": 3, "league": 39},
		At:      time.Date(2024, 8, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestRenderHTMLEscapesAndOrdersContext(t *testing.T) {
	html, err := RenderHTML(failureEvent())
	require.NoError(t, err)
	assert.Contains(t, html, "provider returned &lt;502&gt;")
	assert.Contains(t, html, "2024-08-10T12:00:00Z")
	assert.Less(t, strings.Index(html, "attempts"), strings.Index(html, "league"))
	assert.Contains(t, html, "<pre><code>goroutine 1 [running]:</code></pre>")
}

func TestRenderMarkdown(t *testing.T) {
	md, err := RenderMarkdown(failureEvent())
	require.NoError(t, err)
	assert.NotContains(t, md, "<h2>")
	assert.Contains(t, md, "**Job:**")
	assert.Contains(t, md, "sync-fixtures")
	assert.Contains(t, md, "goroutine 1")
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "[podds] job cleanup failed", (&Event{Kind: KindFailure, JobName: "cleanup"}).Subject())
	assert.Equal(t, "[podds] job cleanup succeeded", (&Event{Kind: KindSuccess, JobName: "cleanup"}).Subject())
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []*Event
	err    error
	panics bool
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Notify(ctx context.Context, e *Event) error {
	if r.panics {
		panic("boom")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func TestDispatcherFansOutAndSwallowsFailures(t *testing.T) {
	ok := &recordingNotifier{}
	failing := &recordingNotifier{err: errors.New("smtp down")}
	panicking := &recordingNotifier{panics: true}

	d := NewDispatcher(ok, nil, failing, panicking)
	assert.NotPanics(t, func() {
		d.NotifyJobFailure("process-results", "timed out", "stack", map[string]any{"attempt": 2})
		d.NotifyJobSuccess("process-results", map[string]any{"processed": 4})
	})
	d.Wait()

	require.Len(t, ok.events, 2)
	kinds := []Kind{ok.events[0].Kind, ok.events[1].Kind}
	assert.ElementsMatch(t, []Kind{KindFailure, KindSuccess}, kinds)
	assert.Len(t, failing.events, 2)
}

func TestEmailNotify(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	var gotAuth smtp.Auth

	m := NewEmail(EmailOptions{Addr: "mail.example.com:587", Username: "u", Password: "p", Recipients: []string{"a@example.com", "b@example.com"}})
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, msg
		return nil
	}

	require.NoError(t, m.Notify(context.Background(), failureEvent()))
	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "podds@localhost", gotFrom)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, gotTo)
	msg := string(gotMsg)
	assert.Contains(t, msg, "Subject: [podds] job sync-fixtures failed\r\n")
	assert.Contains(t, msg, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, msg, "Content-Type: text/html")
}

func TestEmailNotifyHonoursContext(t *testing.T) {
	m := NewEmail(EmailOptions{Addr: "mail.example.com:25", Recipients: []string{"a@example.com"}})
	release := make(chan struct{})
	defer close(release)
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		<-release
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Notify(ctx, failureEvent()), context.DeadlineExceeded)
}

func TestParseWebhookURL(t *testing.T) {
	id, token, err := parseWebhookURL("https://discord.com/api/webhooks/123/abc-def")
	require.NoError(t, err)
	assert.Equal(t, "123", id)
	assert.Equal(t, "abc-def", token)

	_, _, err = parseWebhookURL("https://discord.com/api/channels/123")
	assert.Error(t, err)
}

// redirect sends every request to a test server
type redirect struct{ target *url.URL }

func (r redirect) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme, out.URL.Host, out.Host = r.target.Scheme, r.target.Host, r.target.Host
	return http.DefaultTransport.RoundTrip(out)
}

func TestDiscordNotify(t *testing.T) {
	var gotPath string
	var payload struct {
		Username string `json:"username"`
		Embeds   []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Color       int    `json:"color"`
		} `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d, err := NewDiscord("https://discord.com/api/webhooks/123/tok")
	require.NoError(t, err)
	target, _ := url.Parse(srv.URL)
	d.session.Client = &http.Client{Transport: redirect{target: target}}

	require.NoError(t, d.Notify(context.Background(), failureEvent()))
	assert.True(t, strings.HasSuffix(gotPath, "/webhooks/123/tok"), gotPath)
	assert.Equal(t, "podds", payload.Username)
	require.Len(t, payload.Embeds, 1)
	assert.Equal(t, colorFailure, payload.Embeds[0].Color)
	assert.Contains(t, payload.Embeds[0].Description, "sync-fixtures")
}
