package handlers

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetlab/backend/internal/middleware/validation"
)

func TestWebSocketHandler_Validate(t *testing.T) {
	h := NewWebSocketHandler(nil, validation.Config{MaxTimeSpent: time.Hour})

	tests := []struct {
		name    string
		message string
		wantErr bool
	}{
		{"decide ok", `{"type":"decide","session_id":"s1","step":0,"option":1,"time_spent_seconds":12.5}`, false},
		{"decide missing option", `{"type":"decide","session_id":"s1","step":0,"time_spent_seconds":1}`, true},
		{"decide missing step", `{"type":"decide","session_id":"s1","option":0,"time_spent_seconds":1}`, true},
		{"decide missing time", `{"type":"decide","session_id":"s1","step":0,"option":0}`, true},
		{"decide time over max", `{"type":"decide","session_id":"s1","step":0,"option":0,"time_spent_seconds":200000}`, true},
		{"decide negative time", `{"type":"decide","session_id":"s1","step":0,"option":0,"time_spent_seconds":-1}`, true},
		{"advance ok", `{"type":"advance","session_id":"s1","step":1,"time_spent_seconds":0}`, false},
		{"advance missing step", `{"type":"advance","session_id":"s1","time_spent_seconds":3}`, true},
		{"advance time over max", `{"type":"advance","session_id":"s1","step":1,"time_spent_seconds":3601}`, true},
		{"snapshot ok", `{"type":"snapshot","session_id":"s1"}`, false},
		{"missing session", `{"type":"snapshot"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg wsRequest
			require.NoError(t, json.Unmarshal([]byte(tt.message), &msg))

			reason := h.validate(msg)
			if tt.wantErr {
				assert.NotEmpty(t, reason)
			} else {
				assert.Empty(t, reason)
			}
		})
	}
}
