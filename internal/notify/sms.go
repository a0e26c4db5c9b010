// Package notify delivers one-time codes to customers. Delivery is
// best-effort: a failed send is reported as false, never as an error, and
// never rolls back the OTC session it carries.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldworks/dispatch/internal/config"
	"github.com/fieldworks/dispatch/internal/otc"
	"github.com/fieldworks/dispatch/internal/retry"
)

// Notifier sends a message to a phone number and reports success
type Notifier interface {
	Send(ctx context.Context, phone, message string) bool
}

// SMSNotifier dispatches messages through an HTTP SMS gateway
type SMSNotifier struct {
	cfg    config.SMSConfig
	client *http.Client
}

// NewSMSNotifier creates a gateway-backed notifier
func NewSMSNotifier(cfg config.SMSConfig) *SMSNotifier {
	return &SMSNotifier{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send dispatches one SMS. Transient gateway failures are retried with the
// standard gateway policy before giving up.
func (n *SMSNotifier) Send(ctx context.Context, phone, message string) bool {
	query := url.Values{}
	query.Set("username", n.cfg.Username)
	query.Set("password", n.cfg.Password)
	query.Set("source", n.cfg.SenderID)
	query.Set("destination", phone)
	query.Set("message", message)

	endpoint := n.cfg.GatewayURL
	if strings.Contains(endpoint, "?") {
		endpoint += "&" + query.Encode()
	} else {
		endpoint += "?" + query.Encode()
	}

	err := retry.WithRetry(ctx, retry.Gateway, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		resp, err := n.client.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("gateway returned status %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		logrus.WithError(err).WithField("phone", otc.MaskPhone(phone)).Error("Failed to send SMS")
		return false
	}

	logrus.WithField("phone", otc.MaskPhone(phone)).Info("SMS dispatched")
	return true
}

// CodeMessage renders the customer-facing text for a one-time code
func CodeMessage(customerName, code string) string {
	name := capitalizeFirst(customerName)
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(
		"Hi %s, your job confirmation code is %s. Keep it safe and don't share it with anyone.",
		name, code,
	)
}

// NopNotifier discards messages; used when no gateway is configured
type NopNotifier struct{}

// Send logs and drops the message
func (NopNotifier) Send(ctx context.Context, phone, message string) bool {
	logrus.WithField("phone", otc.MaskPhone(phone)).Warn("SMS gateway disabled, dropping message")
	return false
}

func capitalizeFirst(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	first := strings.Fields(s)[0]
	return strings.ToUpper(first[:1]) + strings.ToLower(first[1:])
}
