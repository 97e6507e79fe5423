package upload

import (
	"context"

	"notestream/internal/domain"
)

// Dispatcher hands a freshly committed file to the processing pipeline.
// The returned result reflects how far processing got within this call:
// processed/failed for the synchronous deployment, sent_to_worker for the
// asynchronous one.
type Dispatcher interface {
	Dispatch(ctx context.Context, file *domain.File) (*domain.ProcessingResult, error)
}
