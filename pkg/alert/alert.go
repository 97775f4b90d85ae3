// Package alert tells operators about scheduled job outcomes.
package alert

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/podds"
)

// Kind of event being reported
type Kind string

const (
	KindFailure Kind = "failure"
	KindSuccess Kind = "success"
)

// Event describes one job outcome
type Event struct {
	Kind    Kind
	JobName string
	Message string
	Stack   string
	Context map[string]any
	At      time.Time
}

// Subject is a one line summary usable as an e-mail subject
func (e *Event) Subject() string {
	if e.Kind == KindFailure {
		return fmt.Sprintf("[podds] job %s failed", e.JobName)
	}
	return fmt.Sprintf("[podds] job %s succeeded", e.JobName)
}

// Notifier delivers an event over one channel
type Notifier interface {
	Name() string
	Notify(ctx context.Context, e *Event) error
}

var eventTemplate = template.Must(template.New("event").Parse(`<html><body>
<h2>{{.Subject}}</h2>
<p><strong>Job:</strong> {{.JobName}}<br><strong>When:</strong> {{.When}}</p>
{{if .Message}}<p><strong>Error:</strong> {{.Message}}</p>{{end}}
{{if .Context}}<h3>Context</h3><ul>{{range .Context}}<li><strong>{{.Key}}:</strong> {{.Value}}</li>{{end}}</ul>{{end}}
{{if .Stack}}<h3>Stack</h3><pre><code>{{.Stack}}</code></pre>{{end}}
</body></html>`))

type kv struct {
	Key   string
	Value string
}

// RenderHTML renders the event as a small HTML document
func RenderHTML(e *Event) (string, error) {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]kv, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, kv{Key: k, Value: fmt.Sprint(e.Context[k])})
	}

	var buf bytes.Buffer
	err := eventTemplate.Execute(&buf, map[string]any{
		"Subject": e.Subject(),
		"JobName": e.JobName,
		"When":    e.At.UTC().Format(time.RFC3339),
		"Message": e.Message,
		"Context": pairs,
		"Stack":   e.Stack,
	})
	if err != nil {
		return "", fmt.Errorf("render alert: %w", err)
	}
	return buf.String(), nil
}

// RenderMarkdown renders the event as markdown for chat channels
func RenderMarkdown(e *Event) (string, error) {
	html, err := RenderHTML(e)
	if err != nil {
		return "", err
	}
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert alert to markdown: %w", err)
	}
	return md, nil
}

// Dispatcher fans events out to every configured notifier without blocking the caller
type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewDispatcher returns a dispatcher over the non-nil notifiers
func NewDispatcher(notifiers ...Notifier) *Dispatcher {
	d := &Dispatcher{timeout: 15 * time.Second}
	for _, n := range notifiers {
		if n != nil {
			d.notifiers = append(d.notifiers, n)
		}
	}
	return d
}

// FromConfig builds Discord and e-mail notifiers for whatever cfg configures
func FromConfig(cfg *podds.PoddsConfig) *Dispatcher {
	var notifiers []Notifier
	if cfg.DiscordWebhookURL != "" {
		d, err := NewDiscord(cfg.DiscordWebhookURL)
		if err != nil {
			logger.Warn("Discord alerts disabled", err)
		} else {
			notifiers = append(notifiers, d)
		}
	}
	if cfg.SMTPAddr != "" && len(cfg.AlertRecipients) > 0 {
		notifiers = append(notifiers, NewEmail(EmailOptions{
			Addr:       cfg.SMTPAddr,
			From:       cfg.SMTPFrom,
			Username:   cfg.SMTPUsername,
			Password:   cfg.SMTPPassword,
			Recipients: cfg.AlertRecipients,
		}))
	}
	if len(notifiers) == 0 {
		logger.Info("No alert channels configured, job alerts are only logged")
	}
	return NewDispatcher(notifiers...)
}

// NotifyJobFailure reports a failed job. It returns immediately and never fails.
func (d *Dispatcher) NotifyJobFailure(jobName, message, stack string, details map[string]any) {
	d.dispatch(&Event{Kind: KindFailure, JobName: jobName, Message: message, Stack: stack, Context: details, At: time.Now()})
}

// NotifyJobSuccess reports a successful job. It returns immediately and never fails.
func (d *Dispatcher) NotifyJobSuccess(jobName string, details map[string]any) {
	d.dispatch(&Event{Kind: KindSuccess, JobName: jobName, Context: details, At: time.Now()})
}

// Wait blocks until every in-flight delivery has finished
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(e *Event) {
	if e.Kind == KindFailure {
		logger.Error("Job failed", e.JobName, e.Message)
	}
	for _, n := range d.notifiers {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Alert channel panicked", n.Name(), r, string(debug.Stack()))
				}
			}()
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()
			if err := n.Notify(ctx, e); err != nil {
				logger.Warn("Failed to deliver alert", n.Name(), e.JobName, err)
			}
		}()
	}
}
