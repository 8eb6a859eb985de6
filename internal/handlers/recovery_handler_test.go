package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/internhub/backend/internal/models"
	"github.com/internhub/backend/internal/services"
	"github.com/internhub/backend/internal/services/mocks"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPhone = "919876543210"

func init() {
	gin.SetMode(gin.TestMode)
}

type recoveryTestServer struct {
	router     *gin.Engine
	identities *mocks.MockIdentityStore
	notifier   *mocks.MockNotifier
}

func newRecoveryTestServer(t *testing.T, debugEcho bool) *recoveryTestServer {
	ctrl := gomock.NewController(t)
	log, _ := test.NewNullLogger()

	s := &recoveryTestServer{
		identities: mocks.NewMockIdentityStore(ctrl),
		notifier:   mocks.NewMockNotifier(ctrl),
	}
	store := services.NewMemoryChallengeStore(services.ChallengeStoreConfig{})
	svc := services.NewRecoveryService(store, s.identities, s.notifier, nil, nil, services.RecoveryConfig{DebugEcho: debugEcho}, log)
	h := NewRecoveryHandler(svc, log)

	r := gin.New()
	r.POST("/api/v1/auth/password/forgot", h.ForgotPassword)
	r.POST("/api/v1/auth/password/resend", h.ResendOTP)
	r.POST("/api/v1/auth/password/reset", h.ResetPassword)
	s.router = r
	return s
}

func (s *recoveryTestServer) post(t *testing.T, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func intern() *models.User {
	return &models.User{
		ID:    uuid.MustParse("6f1c2a7e-3b4d-4e5f-8a9b-0c1d2e3f4a5b"),
		Name:  "Asha Rao",
		Email: "asha@example.com",
		Phone: testPhone,
		Role:  models.RoleIntern,
	}
}

func TestForgotPassword_Success(t *testing.T) {
	s := newRecoveryTestServer(t, false)
	s.identities.EXPECT().FindByPhone(gomock.Any(), testPhone).Return(intern(), nil)
	s.notifier.EXPECT().Send(gomock.Any(), testPhone, gomock.Any()).Return(nil)

	w, resp := s.post(t, "/api/v1/auth/password/forgot", gin.H{"phone": "+91 98765 43210"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "********3210", resp["phone"])
	assert.Equal(t, msgOTPSent, resp["message"])
	assert.NotContains(t, resp, "otp")
}

func TestForgotPassword_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		setup      func(s *recoveryTestServer)
		wantStatus int
	}{
		{
			name:       "malformed json",
			body:       "{",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid phone",
			body:       gin.H{"phone": "12345"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unregistered",
			body: gin.H{"phone": testPhone},
			setup: func(s *recoveryTestServer) {
				s.identities.EXPECT().FindByPhone(gomock.Any(), testPhone).Return(nil, services.ErrUserNotFound)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "ineligible role",
			body: gin.H{"phone": testPhone},
			setup: func(s *recoveryTestServer) {
				admin := intern()
				admin.Role = models.RoleAdmin
				s.identities.EXPECT().FindByPhone(gomock.Any(), testPhone).Return(admin, nil)
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name: "backend failure",
			body: gin.H{"phone": testPhone},
			setup: func(s *recoveryTestServer) {
				s.identities.EXPECT().FindByPhone(gomock.Any(), testPhone).Return(nil, errors.New("pq: connection refused"))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newRecoveryTestServer(t, false)
			if tt.setup != nil {
				tt.setup(s)
			}

			w, resp := s.post(t, "/api/v1/auth/password/forgot", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, false, resp["success"])
			assert.NotEmpty(t, resp["message"])
			assert.NotContains(t, resp["message"], "pq:")
		})
	}
}

func TestForgotPassword_UndeliveredStillSucceeds(t *testing.T) {
	s := newRecoveryTestServer(t, false)
	s.identities.EXPECT().FindByPhone(gomock.Any(), testPhone).Return(intern(), nil)
	s.notifier.EXPECT().Send(gomock.Any(), testPhone, gomock.Any()).Return(errors.New("gateway down"))

	w, resp := s.post(t, "/api/v1/auth/password/forgot", gin.H{"phone": testPhone})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, false, resp["delivered"])
	assert.Equal(t, msgOTPUndelivered, resp["message"])
}

func TestResendOTP_Cooldown(t *testing.T) {
	s := newRecoveryTestServer(t, false)
	s.identities.EXPECT().FindByPhone(gomock.Any(), testPhone).Return(intern(), nil)
	s.notifier.EXPECT().Send(gomock.Any(), testPhone, gomock.Any()).Return(nil)

	w, _ := s.post(t, "/api/v1/auth/password/forgot", gin.H{"phone": testPhone})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := s.post(t, "/api/v1/auth/password/resend", gin.H{"phone": testPhone})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, float64(10), resp["remaining_minutes"])
}

func TestResendOTP_NoOutstandingChallenge(t *testing.T) {
	s := newRecoveryTestServer(t, false)
	s.identities.EXPECT().FindByPhone(gomock.Any(), testPhone).Return(intern(), nil)
	s.notifier.EXPECT().Send(gomock.Any(), testPhone, gomock.Any()).Return(nil)

	w, resp := s.post(t, "/api/v1/auth/password/resend", gin.H{"phone": testPhone})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "********3210", resp["phone"])
}

func TestResetPassword_FullFlow(t *testing.T) {
	s := newRecoveryTestServer(t, true)
	user := intern()
	s.identities.EXPECT().FindByPhone(gomock.Any(), testPhone).Return(user, nil).Times(2)
	s.notifier.EXPECT().Send(gomock.Any(), testPhone, gomock.Any()).Return(nil)
	s.identities.EXPECT().SetPassword(gomock.Any(), user.ID, "brandnew1").Return(nil)

	w, resp := s.post(t, "/api/v1/auth/password/forgot", gin.H{"phone": testPhone})
	require.Equal(t, http.StatusOK, w.Code)
	code, ok := resp["otp"].(string)
	require.True(t, ok)
	require.Len(t, code, 6)

	w, resp = s.post(t, "/api/v1/auth/password/reset", gin.H{
		"phone":       testPhone,
		"otp":         code,
		"newPassword": "brandnew1",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, msgPasswordReset, resp["message"])

	w, _ = s.post(t, "/api/v1/auth/password/reset", gin.H{
		"phone":       testPhone,
		"otp":         code,
		"newPassword": "brandnew1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResetPassword_WrongCodes(t *testing.T) {
	s := newRecoveryTestServer(t, true)
	s.identities.EXPECT().FindByPhone(gomock.Any(), testPhone).Return(intern(), nil)
	s.notifier.EXPECT().Send(gomock.Any(), testPhone, gomock.Any()).Return(nil)

	_, resp := s.post(t, "/api/v1/auth/password/forgot", gin.H{"phone": testPhone})
	code := resp["otp"].(string)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	body := gin.H{"phone": testPhone, "otp": wrong, "newPassword": "brandnew1"}

	w, resp := s.post(t, "/api/v1/auth/password/reset", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, float64(2), resp["remaining_attempts"])

	w, resp = s.post(t, "/api/v1/auth/password/reset", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, float64(1), resp["remaining_attempts"])

	w, _ = s.post(t, "/api/v1/auth/password/reset", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestResetPassword_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		body gin.H
	}{
		{name: "bad phone", body: gin.H{"phone": "abc", "otp": "482913", "newPassword": "brandnew1"}},
		{name: "bad code", body: gin.H{"phone": testPhone, "otp": "4829", "newPassword": "brandnew1"}},
		{name: "no challenge", body: gin.H{"phone": testPhone, "otp": "482913", "newPassword": "brandnew1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newRecoveryTestServer(t, false)

			w, resp := s.post(t, "/api/v1/auth/password/reset", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, false, resp["success"])
		})
	}
}

func TestResetPassword_WeakPassword(t *testing.T) {
	s := newRecoveryTestServer(t, true)
	s.identities.EXPECT().FindByPhone(gomock.Any(), testPhone).Return(intern(), nil).Times(2)
	s.notifier.EXPECT().Send(gomock.Any(), testPhone, gomock.Any()).Return(nil)

	_, resp := s.post(t, "/api/v1/auth/password/forgot", gin.H{"phone": testPhone})
	code := resp["otp"].(string)

	w, resp := s.post(t, "/api/v1/auth/password/reset", gin.H{"phone": testPhone, "otp": code, "newPassword": "abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, services.ErrWeakPassword.Error(), resp["message"])
}

func TestResetPassword_BindingViolation(t *testing.T) {
	s := newRecoveryTestServer(t, true)
	s.identities.EXPECT().FindByPhone(gomock.Any(), testPhone).Return(intern(), nil)
	s.notifier.EXPECT().Send(gomock.Any(), testPhone, gomock.Any()).Return(nil)

	_, resp := s.post(t, "/api/v1/auth/password/forgot", gin.H{"phone": testPhone})
	code := resp["otp"].(string)

	moved := intern()
	moved.ID = uuid.New()
	s.identities.EXPECT().FindByPhone(gomock.Any(), testPhone).Return(moved, nil)

	w, _ := s.post(t, "/api/v1/auth/password/reset", gin.H{"phone": testPhone, "otp": code, "newPassword": "brandnew1"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWriteRecoveryError_Mapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{err: services.ErrInvalidPhoneFormat, wantStatus: http.StatusBadRequest},
		{err: services.ErrInvalidCodeFormat, wantStatus: http.StatusBadRequest},
		{err: services.ErrWeakPassword, wantStatus: http.StatusBadRequest},
		{err: services.ErrChallengeNotFoundOrExpired, wantStatus: http.StatusBadRequest},
		{err: &services.CodeMismatchError{Remaining: 1}, wantStatus: http.StatusBadRequest},
		{err: services.ErrUnregisteredIdentity, wantStatus: http.StatusNotFound},
		{err: services.ErrIneligibleRole, wantStatus: http.StatusForbidden},
		{err: services.ErrSecurityBindingViolation, wantStatus: http.StatusForbidden},
		{err: services.ErrAttemptsExceeded, wantStatus: http.StatusTooManyRequests},
		{err: &services.CooldownError{}, wantStatus: http.StatusTooManyRequests},
		{err: services.ErrRecoveryUnavailable, wantStatus: http.StatusInternalServerError},
		{err: errors.New("anything else"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			writeRecoveryError(c, tt.err)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
