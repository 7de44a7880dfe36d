package jobqueue

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_IsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		job       *Job
		retryable bool
	}{
		{
			name:      "failed job with retries remaining",
			job:       &Job{Status: JobStatusFailed, RetryCount: 1, MaxRetries: 3},
			retryable: true,
		},
		{
			name:      "failed job with retries exhausted",
			job:       &Job{Status: JobStatusFailed, RetryCount: 3, MaxRetries: 3},
			retryable: false,
		},
		{
			name:      "pending job is not retryable",
			job:       &Job{Status: JobStatusPending, RetryCount: 0, MaxRetries: 3},
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.job.IsRetryable())
		})
	}
}

func TestJob_StatusTransitions(t *testing.T) {
	job := &Job{Status: JobStatusPending, MaxRetries: 3}

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)

	job.MarkAsFailed("smtp timeout")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "smtp timeout", job.ErrorMsg)
	assert.Equal(t, 1, job.RetryCount)
	assert.True(t, job.IsRetryable())

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Empty(t, job.ErrorMsg)
	require.NotNil(t, job.CompletedAt)
}

func TestEmailJobPayload_RoundTrip(t *testing.T) {
	payload := EmailJobPayload{
		To:       "user@example.com",
		Subject:  "Payment failed",
		Template: EmailTemplatePaymentFailed,
		Data:     map[string]string{"Name": "Alex", "BillingURL": "http://localhost:3000/dashboard/billing"},
	}

	decoded, err := EmailJobPayloadFromMap(payload.ToMap())
	require.NoError(t, err)
	assert.Equal(t, payload, *decoded)
}

func TestDataExportJobPayload_RoundTrip(t *testing.T) {
	payload := DataExportJobPayload{UserID: 42, Email: "user@example.com"}

	decoded, err := DataExportJobPayloadFromMap(payload.ToMap())
	require.NoError(t, err)
	assert.Equal(t, payload, *decoded)
}

func TestWelcomeTemplateRenders(t *testing.T) {
	tmpl, ok := emailTemplates[EmailTemplateWelcome]
	require.True(t, ok, "welcome template must be registered")

	var body bytes.Buffer
	err := tmpl.Execute(&body, map[string]string{
		"Name":         "Alex",
		"DashboardURL": "http://localhost:3000/dashboard",
	})
	require.NoError(t, err)
	assert.Contains(t, body.String(), "Alex")
	assert.Contains(t, body.String(), "http://localhost:3000/dashboard")
}

func TestEmailTemplatesRender(t *testing.T) {
	for name := range emailTemplates {
		t.Run(name, func(t *testing.T) {
			q := &Queue{}
			payload := EmailJobPayload{
				To:       "",
				Subject:  "x",
				Template: name,
			}
			// Missing recipient must fail before any SMTP traffic happens.
			err := q.processEmailJob(&Job{Payload: payload.ToMap()})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "recipient")
		})
	}
}
