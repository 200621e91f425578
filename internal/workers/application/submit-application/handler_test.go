// internal/workers/application/submit-application/handler_test.go
package submitapplication

import (
	"context"
	"testing"
	"time"

	apperrors "ethics-review/internal/common/errors"
	"ethics-review/internal/common/logger"
	"ethics-review/internal/models"
	"ethics-review/internal/submission"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const appID = "5d9c3c1e-7b5a-4d7e-9a53-0f0c5a2b8e11"

type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, applicationID string) (*models.Application, error) {
	args := m.Called(ctx, applicationID)
	app, _ := args.Get(0).(*models.Application)
	return app, args.Error(1)
}

func newTestHandler(t *testing.T, gate Submitter) *Handler {
	return NewHandler(&Config{Timeout: time.Second}, gate, logger.NewTestLogger(t))
}

func TestHandler_Execute_Success(t *testing.T) {
	gate := new(MockSubmitter)
	submittedAt := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	gate.On("Submit", mock.Anything, appID).Return(&models.Application{
		ID:             appID,
		ProtocolNumber: "CARD-2024-01",
		Status:         models.StatusSubmitted,
		UpdatedAt:      submittedAt,
	}, nil)

	output, err := newTestHandler(t, gate).Execute(context.Background(), &Input{ApplicationID: appID})

	require.NoError(t, err)
	assert.Equal(t, appID, output.ApplicationID)
	assert.Equal(t, "SUBMITTED", output.ApplicationStatus)
	assert.Equal(t, "CARD-2024-01", output.ProtocolNumber)
	assert.Equal(t, "2024-03-01T09:30:00Z", output.SubmittedAt)
	gate.AssertExpectations(t)
}

func TestHandler_Execute_InvalidApplicationID(t *testing.T) {
	gate := new(MockSubmitter)

	_, err := newTestHandler(t, gate).Execute(context.Background(), &Input{ApplicationID: "app-001"})

	require.Error(t, err)
	stdErr := apperrors.FromError(err)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, stdErr.Code)
	assert.Equal(t, "APPLICATION_INVALID", apperrors.ConvertToBPMNError(stdErr).Code)
	gate.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestHandler_Execute_GateErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		bpmnCode string
		retries  int
	}{
		{
			name:     "incomplete",
			err:      &submission.IncompleteError{ApplicationID: appID, Missing: []string{"Funding", "Consent"}},
			bpmnCode: "APPLICATION_INCOMPLETE",
		},
		{
			name:     "already submitted",
			err:      apperrors.NewAlreadySubmittedError(appID),
			bpmnCode: "ALREADY_SUBMITTED",
		},
		{
			name:     "not found",
			err:      apperrors.NewNotFoundError("Application not found"),
			bpmnCode: "APPLICATION_NOT_FOUND",
		},
		{
			name:     "store failure",
			err:      apperrors.NewStoreFailedError(assert.AnError),
			bpmnCode: "STORE_FAILED",
			retries:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := new(MockSubmitter)
			gate.On("Submit", mock.Anything, appID).Return(nil, tt.err)

			_, err := newTestHandler(t, gate).Execute(context.Background(), &Input{ApplicationID: appID})

			require.ErrorIs(t, err, tt.err)
			bpmnErr := apperrors.ConvertToBPMNError(apperrors.FromError(err))
			assert.Equal(t, tt.bpmnCode, bpmnErr.Code)
			assert.Equal(t, tt.retries, bpmnErr.Retries)
		})
	}
}

func TestHandler_Execute_IncompleteCarriesMissingSections(t *testing.T) {
	gate := new(MockSubmitter)
	gate.On("Submit", mock.Anything, appID).
		Return(nil, &submission.IncompleteError{ApplicationID: appID, Missing: []string{"Checklist"}})

	_, err := newTestHandler(t, gate).Execute(context.Background(), &Input{ApplicationID: appID})

	vars := apperrors.ConvertToBPMNError(apperrors.FromError(err)).ToErrorVariables()
	assert.Equal(t, []string{"Checklist"}, vars["missingSections"])
}
