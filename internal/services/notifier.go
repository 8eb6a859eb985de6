package services

//go:generate mockgen -source=notifier.go -destination=mocks/mock_notifier.go -package=mocks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/internhub/backend/internal/config"
	"github.com/sirupsen/logrus"
)

const (
	defaultSevenURL       = "https://gateway.seven.io/api/sms"
	notifierTimeout       = 10 * time.Second
	recoveryMessageFormat = "Your InternHub password reset code is %s. Do not share it with anyone."
)

// Notifier delivers a recovery code to a phone number over an out-of-band
// channel. Delivery guarantees are the provider's concern.
type Notifier interface {
	Send(ctx context.Context, phone, code string) error
}

// NewNotifier picks the provider configured in NOTIFIER_PROVIDER.
func NewNotifier(cfg *config.Config, log *logrus.Logger) (Notifier, error) {
	client := &http.Client{Timeout: notifierTimeout}

	switch strings.ToLower(cfg.NotifierProvider) {
	case "whatsapp":
		if cfg.WhatsAppAccessToken == "" || cfg.WhatsAppPhoneNumberID == "" {
			return nil, fmt.Errorf("whatsapp notifier not configured")
		}
		return &WhatsAppNotifier{
			BaseURL:       cfg.WhatsAppBaseURL,
			PhoneNumberID: cfg.WhatsAppPhoneNumberID,
			AccessToken:   cfg.WhatsAppAccessToken,
			Template:      cfg.WhatsAppTemplate,
			Language:      cfg.WhatsAppLanguage,
			Client:        client,
		}, nil
	case "seven":
		if cfg.SevenAPIKey == "" {
			return nil, fmt.Errorf("seven api key missing")
		}
		return &SevenNotifier{
			URL:    defaultSevenURL,
			APIKey: cfg.SevenAPIKey,
			From:   cfg.SMSFrom,
			Client: client,
		}, nil
	case "log":
		if cfg.IsProduction() {
			return nil, fmt.Errorf("log notifier is not allowed in production")
		}
		return &LogNotifier{log: log}, nil
	default:
		return nil, fmt.Errorf("unknown notifier provider %q", cfg.NotifierProvider)
	}
}

// WhatsAppNotifier sends the code as a WhatsApp Cloud API template message.
type WhatsAppNotifier struct {
	BaseURL       string
	PhoneNumberID string
	AccessToken   string
	Template      string
	Language      string
	Client        *http.Client
}

type whatsAppParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type whatsAppComponent struct {
	Type       string              `json:"type"`
	Parameters []whatsAppParameter `json:"parameters"`
}

type whatsAppTemplate struct {
	Name       string              `json:"name"`
	Language   map[string]string   `json:"language"`
	Components []whatsAppComponent `json:"components"`
}

type whatsAppPayload struct {
	MessagingProduct string           `json:"messaging_product"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Template         whatsAppTemplate `json:"template"`
}

func (n *WhatsAppNotifier) Send(ctx context.Context, phone, code string) error {
	payload := whatsAppPayload{
		MessagingProduct: "whatsapp",
		To:               phone,
		Type:             "template",
		Template: whatsAppTemplate{
			Name:     n.Template,
			Language: map[string]string{"code": n.Language},
			Components: []whatsAppComponent{{
				Type:       "body",
				Parameters: []whatsAppParameter{{Type: "text", Text: code}},
			}},
		},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := strings.TrimRight(n.BaseURL, "/") + "/" + n.PhoneNumberID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.AccessToken)

	return doNotifierRequest(n.Client, req, "whatsapp")
}

// SevenNotifier sends the code as an SMS through the seven.io gateway.
type SevenNotifier struct {
	URL    string
	APIKey string
	From   string
	Client *http.Client
}

// seven.io API v1: POST https://gateway.seven.io/api/sms
// Header: X-Api-Key: <key>
// Form: to=<E164>&text=<msg>&from=<id>
func (n *SevenNotifier) Send(ctx context.Context, phone, code string) error {
	form := url.Values{}
	form.Set("to", phone)
	form.Set("text", fmt.Sprintf(recoveryMessageFormat, code))
	if n.From != "" {
		form.Set("from", n.From)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Api-Key", n.APIKey)

	return doNotifierRequest(n.Client, req, "seven")
}

// LogNotifier writes the code to the debug log. Development only.
type LogNotifier struct {
	log *logrus.Logger
}

func (n *LogNotifier) Send(ctx context.Context, phone, code string) error {
	n.log.WithFields(logrus.Fields{
		"phone": phone,
		"otp":   code,
	}).Debug("recovery code (log notifier)")
	return nil
}

func doNotifierRequest(client *http.Client, req *http.Request, provider string) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s send failed: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s send failed: status %d: %s", provider, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
