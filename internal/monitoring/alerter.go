package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertClarificationBacklog AlertType = "clarification_backlog"
	AlertRejectionRate        AlertType = "rejection_rate"
	AlertDegradedExtraction   AlertType = "degraded_extraction"
)

// minSampleSize is the smallest window a rate alert fires on; a couple of
// contracts should not page anyone.
const minSampleSize = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Thresholds configures when the alerter fires and where alerts go.
type Thresholds struct {
	WebhookURL                 string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs          int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours        int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	ClarificationRateThreshold float64 `yaml:"clarification_rate_threshold" mapstructure:"clarification_rate_threshold"`
	RejectedRateThreshold      float64 `yaml:"rejected_rate_threshold" mapstructure:"rejected_rate_threshold"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds and
// sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    Thresholds
	client *http.Client
}

// NewAlerter creates a new Alerter with the given thresholds.
func NewAlerter(cfg Thresholds) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Check clarification backlog.
	processed := snap.Finalized + snap.NeedsClarification
	if processed >= minSampleSize && a.cfg.ClarificationRateThreshold > 0 &&
		snap.ClarificationRate > a.cfg.ClarificationRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertClarificationBacklog,
			Severity: "high",
			Message: fmt.Sprintf(
				"Clarification rate %.1f%% exceeds threshold %.1f%% (%d of %d processed in last %dh, %d open questions)",
				snap.ClarificationRate*100, a.cfg.ClarificationRateThreshold*100,
				snap.NeedsClarification, processed, snap.LookbackHours, snap.OpenQuestions,
			),
			Details: map[string]any{
				"clarification_rate": snap.ClarificationRate,
				"threshold":          a.cfg.ClarificationRateThreshold,
				"open_questions":     snap.OpenQuestions,
				"processed":          processed,
			},
			Timestamp: now,
		})
	}

	// Check rejection rate.
	if snap.ContractsTotal >= minSampleSize && a.cfg.RejectedRateThreshold > 0 &&
		snap.RejectedRate > a.cfg.RejectedRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRejectionRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Rejection rate %.1f%% exceeds threshold %.1f%% (%d of %d contracts in last %dh)",
				snap.RejectedRate*100, a.cfg.RejectedRateThreshold*100,
				snap.Rejected, snap.ContractsTotal, snap.LookbackHours,
			),
			Details: map[string]any{
				"rejected_rate": snap.RejectedRate,
				"threshold":     a.cfg.RejectedRateThreshold,
				"rejected":      snap.Rejected,
				"total":         snap.ContractsTotal,
			},
			Timestamp: now,
		})
	}

	// Degraded extractions point at model-service trouble.
	if snap.Degraded > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertDegradedExtraction,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d contract(s) degraded to pattern extraction in last %dh",
				snap.Degraded, snap.LookbackHours,
			),
			Details: map[string]any{
				"degraded": snap.Degraded,
				"total":    snap.ContractsTotal,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
