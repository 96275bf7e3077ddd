package syncreviews

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "review-workers/internal/common/errors"
	"review-workers/internal/common/logger"
)

// ==========================
// Mock Service Implementation
// ==========================

type MockService struct {
	mock.Mock
}

func (m *MockService) Sync(ctx context.Context, input *Input) (*Output, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Output), args.Error(1)
}

// ==========================
// Mock Job Helper
// ==========================

func createMockJob(key int64, variables string) entities.Job {
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                key,
		Type:               TaskType,
		ProcessInstanceKey: key * 10,
		BpmnProcessId:      "review-sync-process",
		ElementId:          "Activity_ReviewSync",
		CustomHeaders:      "{}",
		Worker:             "test-worker",
		Retries:            3,
		Variables:          variables,
	}}
}

func jobVariables(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

// ==========================
// Job Processing Tests
// ==========================

func TestHandler_ProcessPassesInput(t *testing.T) {
	svc := &MockService{}
	h := NewHandler(LoadConfig(), svc, logger.NewTestLogger(t))

	want := &Output{BusinessID: "B1", Platform: "google", Admitted: 2, Committed: true}
	svc.On("Sync", mock.Anything, mock.MatchedBy(func(i *Input) bool {
		return i.BusinessID == "B1" && i.Platform == "google" && i.Limit == 10
	})).Return(want, nil).Once()

	job := createMockJob(1, jobVariables(t, map[string]interface{}{
		"business_id": "B1",
		"platform":    "google",
		"limit":       10,
	}))

	out, err := h.process(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, want, out)
	svc.AssertExpectations(t)
}

func TestHandler_ProcessRejectsMalformedVariables(t *testing.T) {
	svc := &MockService{}
	h := NewHandler(LoadConfig(), svc, logger.NewTestLogger(t))

	_, err := h.process(context.Background(), createMockJob(2, `{"business_id":`))

	require.ErrorIs(t, err, apperrors.ErrValidation)
	svc.AssertNotCalled(t, "Sync", mock.Anything, mock.Anything)
}

func TestHandler_ServiceErrorsBecomeBPMNErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      string
		retryable bool
	}{
		{"platform outage is retried", apperrors.NewPlatformError("google", assert.AnError), string(apperrors.ErrCodePlatformError), true},
		{"missing integration is not", apperrors.NewIntegrationUnavailableError("google", "not connected"), string(apperrors.ErrCodeIntegrationUnavailable), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockService{}
			svc.On("Sync", mock.Anything, mock.Anything).Return(nil, tt.err)
			h := NewHandler(LoadConfig(), svc, logger.NewTestLogger(t))

			_, err := h.process(context.Background(), createMockJob(3, `{"business_id":"B1"}`))
			require.Error(t, err)

			bpmn := apperrors.ConvertToBPMNError(apperrors.Normalize(err))
			assert.Equal(t, tt.code, bpmn.Code)
			assert.Equal(t, tt.retryable, bpmn.Retryable)
			if !tt.retryable {
				assert.Zero(t, bpmn.Retries)
			}
		})
	}
}
