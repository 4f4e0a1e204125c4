package generation

import (
	"context"

	"github.com/maptitesalle/mylittlegymcoach/internal/content"
	"github.com/maptitesalle/mylittlegymcoach/internal/shared"
)

// Notifier is told about terminal failures, for operator alerting.
type Notifier interface {
	GenerationFailed(requestID string, contentType content.Type, reason string)
	StaleSwept(requestIDs []string)
}

// MetricsRecorder receives one entry per generator call.
type MetricsRecorder interface {
	RecordGeneration(ctx context.Context, meta shared.GenerationMeta)
}

type nopNotifier struct{}

func (nopNotifier) GenerationFailed(string, content.Type, string) {}
func (nopNotifier) StaleSwept([]string)                           {}

type nopRecorder struct{}

func (nopRecorder) RecordGeneration(context.Context, shared.GenerationMeta) {}
