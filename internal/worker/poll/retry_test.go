package poll

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hitoshi/roomguard/internal/model"
)

func TestClassifyError(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want PollResult
	}{
		{"nil", context.Background(), nil, PollResultOK},
		{"401", context.Background(), &model.DeliveryError{Op: "getUpdates", StatusCode: 401}, PollResultStop},
		{"404", context.Background(), &model.DeliveryError{Op: "getUpdates", StatusCode: 404}, PollResultStop},
		{"wrapped 401", context.Background(), fmt.Errorf("poll: %w", &model.DeliveryError{StatusCode: 401}), PollResultStop},
		{"429", context.Background(), &model.DeliveryError{Op: "getUpdates", StatusCode: 429}, PollResultBackoff},
		{"502", context.Background(), &model.DeliveryError{Op: "getUpdates", StatusCode: 502}, PollResultBackoff},
		{"409 conflict", context.Background(), &model.DeliveryError{Op: "getUpdates", StatusCode: 409}, PollResultBackoff},
		{"network", context.Background(), &model.DeliveryError{Op: "getUpdates", Err: errors.New("connection refused")}, PollResultBackoff},
		{"ctx cancelled", cancelled, &model.DeliveryError{Op: "getUpdates", Err: context.Canceled}, PollResultCancelled},
		{"plain canceled", context.Background(), context.Canceled, PollResultCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.ctx, tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		errors int
		want   time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 32 * time.Second},
		{6, time.Minute},
		{100, time.Minute},
	}
	for _, tt := range tests {
		if got := CalculateBackoff(tt.errors); got != tt.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.errors, got, tt.want)
		}
	}
}
