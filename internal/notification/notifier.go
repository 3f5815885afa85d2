// Package notification delivers market alerts and heatmap exports to
// external channels (Telegram, logs).
package notification

import (
	"context"
	"log"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// PhotoSender is implemented by backends that can deliver a rendered
// image, used for the daily heatmap export.
type PhotoSender interface {
	// SendPhoto uploads a JPEG with a caption.
	SendPhoto(ctx context.Context, jpeg []byte, caption string) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// SendPhoto logs the image size instead of delivering it.
func (n *LogNotifier) SendPhoto(ctx context.Context, jpeg []byte, caption string) error {
	log.Printf("[notify] photo (%d bytes): %s", len(jpeg), caption)
	return nil
}
