package processing

import "notestream/internal/domain"

// Notifier receives status transitions as they are committed. It is a
// read-through convenience for live subscribers; the File/Task rows stay
// the single source of truth and a dropped notification costs nothing
// but a slower poll.
type Notifier interface {
	PublishStatus(fileID string, status domain.FileStatus, taskStatus domain.TaskStatus, errorMessage string)
}
