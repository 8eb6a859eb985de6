package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/internhub/backend/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhatsAppNotifier_Send(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		payload whatsAppPayload
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer server.Close()

	n := &WhatsAppNotifier{
		BaseURL:       server.URL + "/",
		PhoneNumberID: "10555",
		AccessToken:   "token-123",
		Template:      "password_reset",
		Language:      "en",
		Client:        server.Client(),
	}

	require.NoError(t, n.Send(context.Background(), testPhone, "482913"))
	assert.Equal(t, "/10555/messages", gotPath)
	assert.Equal(t, "Bearer token-123", gotAuth)
	assert.Equal(t, testPhone, payload.To)
	assert.Equal(t, "template", payload.Type)
	assert.Equal(t, "password_reset", payload.Template.Name)
	assert.Equal(t, "en", payload.Template.Language["code"])
	require.Len(t, payload.Template.Components, 1)
	assert.Equal(t, "482913", payload.Template.Components[0].Parameters[0].Text)
}

func TestWhatsAppNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid token"}}`))
	}))
	defer server.Close()

	n := &WhatsAppNotifier{BaseURL: server.URL, PhoneNumberID: "1", Client: server.Client()}

	err := n.Send(context.Background(), testPhone, "482913")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "invalid token")
}

func TestSevenNotifier_Send(t *testing.T) {
	var (
		gotKey  string
		gotTo   string
		gotText string
		gotFrom string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotKey = r.Header.Get("X-Api-Key")
		gotTo = r.PostForm.Get("to")
		gotText = r.PostForm.Get("text")
		gotFrom = r.PostForm.Get("from")
		_, _ = w.Write([]byte("100"))
	}))
	defer server.Close()

	n := &SevenNotifier{URL: server.URL, APIKey: "seven-key", From: "InternHub", Client: server.Client()}

	require.NoError(t, n.Send(context.Background(), testPhone, "004217"))
	assert.Equal(t, "seven-key", gotKey)
	assert.Equal(t, testPhone, gotTo)
	assert.Equal(t, "InternHub", gotFrom)
	assert.Contains(t, gotText, "004217")
}

func TestSevenNotifier_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	n := &SevenNotifier{URL: url, APIKey: "k", Client: http.DefaultClient}

	err := n.Send(context.Background(), testPhone, "482913")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seven send failed")
}

func TestLogNotifier_Send(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetLevel(logrus.DebugLevel)

	n := &LogNotifier{log: log}
	require.NoError(t, n.Send(context.Background(), testPhone, "482913"))
	assert.Contains(t, buf.String(), "482913")
}

func TestNewNotifier(t *testing.T) {
	log := logrus.New()

	tests := []struct {
		name    string
		cfg     config.Config
		want    interface{}
		wantErr bool
	}{
		{
			name: "log in development",
			cfg:  config.Config{Env: "development", NotifierProvider: "log"},
			want: &LogNotifier{},
		},
		{
			name:    "log refused in production",
			cfg:     config.Config{Env: "production", NotifierProvider: "log"},
			wantErr: true,
		},
		{
			name: "whatsapp",
			cfg: config.Config{
				NotifierProvider:      "WhatsApp",
				WhatsAppAccessToken:   "t",
				WhatsAppPhoneNumberID: "1",
			},
			want: &WhatsAppNotifier{},
		},
		{
			name:    "whatsapp missing token",
			cfg:     config.Config{NotifierProvider: "whatsapp", WhatsAppPhoneNumberID: "1"},
			wantErr: true,
		},
		{
			name: "seven",
			cfg:  config.Config{NotifierProvider: "seven", SevenAPIKey: "k"},
			want: &SevenNotifier{},
		},
		{
			name:    "seven missing key",
			cfg:     config.Config{NotifierProvider: "seven"},
			wantErr: true,
		},
		{
			name:    "unknown",
			cfg:     config.Config{NotifierProvider: "pigeon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewNotifier(&tt.cfg, log)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, n)
		})
	}
}
