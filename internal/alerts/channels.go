package alerts

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/schemaguard/schemaguard/pkg/logger"
)

// severityFilter is the shared filter logic for channels configured
// with a minimum severity.
type severityFilter struct {
	min Severity
}

func (f severityFilter) Accepts(severity Severity) bool {
	return severity.AtLeast(f.min)
}

// ConsoleChannel writes alerts through the structured logger.
type ConsoleChannel struct {
	severityFilter
	logger *logger.Logger
}

// NewConsoleChannel creates a console channel delivering severities at
// or above min.
func NewConsoleChannel(min Severity, log *logger.Logger) *ConsoleChannel {
	return &ConsoleChannel{severityFilter: severityFilter{min: min}, logger: log}
}

func (c *ConsoleChannel) Name() string { return "console" }

func (c *ConsoleChannel) Send(alert Alert) error {
	ctx := c.logger.WithFields(map[string]string{
		"alert":    alert.ID,
		"type":     string(alert.Type),
		"severity": string(alert.Severity),
	})
	switch alert.Severity {
	case SeverityCritical, SeverityError:
		ctx.Error(fmt.Sprintf("%s: %s", alert.Title, alert.Message))
	case SeverityWarning:
		ctx.Warn(fmt.Sprintf("%s: %s", alert.Title, alert.Message))
	default:
		ctx.Info(fmt.Sprintf("%s: %s", alert.Title, alert.Message))
	}
	return nil
}

// newHTTPClient builds the client shared by webhook-style channels.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: false,
			},
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// WebhookChannel POSTs the alert as JSON to a configured URL.
type WebhookChannel struct {
	severityFilter
	name   string
	url    string
	client *http.Client
}

// NewWebhookChannel creates a generic webhook channel.
func NewWebhookChannel(name, url string, min Severity) *WebhookChannel {
	return &WebhookChannel{
		severityFilter: severityFilter{min: min},
		name:           name,
		url:            url,
		client:         newHTTPClient(),
	}
}

func (c *WebhookChannel) Name() string { return c.name }

func (c *WebhookChannel) Send(alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	resp, err := c.client.Post(c.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to post alert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// SlackChannel delivers alerts to a Slack incoming webhook.
type SlackChannel struct {
	severityFilter
	url    string
	client *http.Client
}

// NewSlackChannel creates a Slack webhook channel.
func NewSlackChannel(url string, min Severity) *SlackChannel {
	return &SlackChannel{
		severityFilter: severityFilter{min: min},
		url:            url,
		client:         newHTTPClient(),
	}
}

func (c *SlackChannel) Name() string { return "slack" }

var slackEmoji = map[Severity]string{
	SeverityInfo:     ":information_source:",
	SeverityWarning:  ":warning:",
	SeverityError:    ":x:",
	SeverityCritical: ":rotating_light:",
}

func (c *SlackChannel) Send(alert Alert) error {
	body := map[string]string{
		"text": fmt.Sprintf("%s *%s*\n%s", slackEmoji[alert.Severity], alert.Title, alert.Message),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}
	resp, err := c.client.Post(c.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to post to slack: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}

// FileChannel appends alerts as JSON lines to a file, acting as the
// persistent-store channel.
type FileChannel struct {
	severityFilter
	path string
	mu   sync.Mutex
}

// NewFileChannel creates a JSON-lines file channel.
func NewFileChannel(path string, min Severity) *FileChannel {
	return &FileChannel{severityFilter: severityFilter{min: min}, path: path}
}

func (c *FileChannel) Name() string { return "file" }

func (c *FileChannel) Send(alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open alert store: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("failed to write alert: %w", err)
	}
	return nil
}
