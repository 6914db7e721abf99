package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mops/backend/internal/interfaces/http/dto"
)

func init() {
	gin.SetMode(gin.TestMode)
	SetupValidator()
}

type frequencyPayload struct {
	Name      string `json:"name" binding:"required"`
	Frequency string `json:"frequency" binding:"omitempty,syncfrequency"`
}

func validate(t *testing.T, payload any) error {
	t.Helper()
	v, ok := binding.Validator.Engine().(*validator.Validate)
	require.True(t, ok)
	return v.Struct(payload)
}

func TestSyncFrequencyTag(t *testing.T) {
	tests := []struct {
		name      string
		frequency string
		wantErr   bool
	}{
		{"daily is valid", "daily", false},
		{"real-time is valid", "real-time", false},
		{"manual is valid", "manual", false},
		{"empty passes omitempty", "", false},
		{"yearly is rejected", "yearly", true},
		{"typo is rejected", "hourlyy", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate(t, frequencyPayload{Name: "x", Frequency: tt.frequency})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFormatValidationErrorsUsesJSONFieldNames(t *testing.T) {
	err := validate(t, frequencyPayload{Frequency: "yearly"})
	require.Error(t, err)

	resp := FormatValidationErrors(err, "req-123")

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "req-123", resp.Error.RequestID)
	require.Len(t, resp.Error.Details, 2)

	fields := []string{resp.Error.Details[0].Field, resp.Error.Details[1].Field}
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "frequency")
}

func TestFormatValidationErrorsNonValidatorError(t *testing.T) {
	resp := FormatValidationErrors(assert.AnError, "req-123")

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Empty(t, resp.Error.Details)
}

func TestHandleValidationError(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/", nil)
	c.Set("request_id", "req-456")

	err := validate(t, frequencyPayload{Frequency: "yearly"})
	require.Error(t, err)
	HandleValidationError(c, err)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "req-456", resp.Error.RequestID)
	assert.NotEmpty(t, resp.Error.Details)
}
