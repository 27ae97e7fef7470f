package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/reconcilia-matching-engine/internal/domain/shared"
)

// MockProcessingService mocks the ProcessingService interface
type MockProcessingService struct {
	mock.Mock
}

func (m *MockProcessingService) ProcessScan(ctx context.Context, request *shared.ScanRequest) error {
	args := m.Called(ctx, request)
	return args.Error(0)
}

func TestWorkerPoolProcessingService_ProcessScan(t *testing.T) {
	mockBaseService := &MockProcessingService{}
	logger := slog.Default()

	request := &shared.ScanRequest{
		RequestID:     uuid.New(),
		WorkspaceID:   uuid.New(),
		AnchorKind:    shared.AnchorKindTransaction,
		AnchorID:      uuid.New(),
		CorrelationID: "corr1",
		Timestamp:     time.Now().UTC(),
	}

	tests := []struct {
		name          string
		setupMocks    func()
		expectedError error
	}{
		{
			name: "successful processing",
			setupMocks: func() {
				mockBaseService.On("ProcessScan", mock.Anything, mock.AnythingOfType("*shared.ScanRequest")).Return(nil).Once()
			},
			expectedError: nil,
		},
		{
			name: "processing error",
			setupMocks: func() {
				mockBaseService.On("ProcessScan", mock.Anything, mock.AnythingOfType("*shared.ScanRequest")).Return(errors.New("processing error")).Once()
			},
			expectedError: errors.New("processing error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset mocks for each test
			mockBaseService = &MockProcessingService{}

			// Create a new worker pool service for each test
			workerPoolService, err := NewWorkerPoolProcessingService(
				mockBaseService,
				WorkerPoolConfig{
					Size: 2,
				},
				logger,
			)
			assert.NoError(t, err)
			defer workerPoolService.Shutdown()

			tt.setupMocks()
			ctx := context.Background()

			err = workerPoolService.ProcessScan(ctx, request)

			if tt.expectedError != nil {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError.Error())
			} else {
				assert.NoError(t, err)
			}

			// Verify that all expected mock calls were made
			mockBaseService.AssertExpectations(t)
		})
	}
}

func TestWorkerPoolProcessingService_Concurrency(t *testing.T) {
	mockBaseService := &MockProcessingService{}
	logger := slog.Default()

	workerPoolService, err := NewWorkerPoolProcessingService(
		mockBaseService,
		WorkerPoolConfig{
			Size: 5,
		},
		logger,
	)
	assert.NoError(t, err)
	defer workerPoolService.Shutdown()

	// Count completed scans under a mutex
	var mu sync.Mutex
	counter := 0

	mockBaseService.On("ProcessScan", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		// Simulate some work
		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		counter++
		mu.Unlock()
	}).Return(nil)

	numRequests := 10
	var wg sync.WaitGroup
	wg.Add(numRequests)

	// Process the scans concurrently
	for i := 0; i < numRequests; i++ {
		go func(i int) {
			defer wg.Done()

			request := &shared.ScanRequest{
				RequestID:     uuid.New(),
				WorkspaceID:   uuid.New(),
				AnchorKind:    shared.AnchorKindDocument,
				AnchorID:      uuid.New(),
				CorrelationID: fmt.Sprintf("corr-%d", i),
				Timestamp:     time.Now().UTC(),
			}

			ctx := context.Background()
			err := workerPoolService.ProcessScan(ctx, request)
			assert.NoError(t, err)
		}(i)
	}

	// Wait for all scans to be processed
	wg.Wait()

	assert.Equal(t, numRequests, counter)

	// Verify that the worker pool is still running
	assert.True(t, workerPoolService.Running() > 0)
	assert.Equal(t, 5, workerPoolService.Capacity())
}
