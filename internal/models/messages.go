// -----------------------------------------------------------------------
// Fan-out Messages - JSON payloads broadcast to subscribers
// -----------------------------------------------------------------------

package models

// Message types carried in the "type" discriminator.
const (
	MessageTypeJobUpdate      = "job_update"
	MessageTypeJobFinalUpdate = "job_final_update"
	MessageTypeNotification   = "notification"
)

// Notification levels.
const (
	NotifyInfo    = "info"
	NotifyWarning = "warning"
	NotifyError   = "error"
	NotifySuccess = "success"
)

// JobUpdateMessage is broadcast for running jobs every monitor cycle and
// exactly once, as job_final_update, when a job leaves Running.
type JobUpdateMessage struct {
	Type             string    `json:"type"`
	JobID            string    `json:"job_id"`
	Status           JobStatus `json:"status"`
	Percent          int       `json:"percent"`
	BytesTransferred int64     `json:"bytes_transferred"`
	TotalBytes       int64     `json:"total_bytes"`
	SpeedBytes       int64     `json:"speed_bytes"`
	ETASeconds       int64     `json:"eta_seconds"`
	Deletion         *Deletion `json:"deletion,omitempty"`
}

// NewJobUpdate builds an update message from a job's merged state.
func NewJobUpdate(job *Job, final bool) *JobUpdateMessage {
	msgType := MessageTypeJobUpdate
	if final {
		msgType = MessageTypeJobFinalUpdate
	}
	return &JobUpdateMessage{
		Type:             msgType,
		JobID:            job.ID,
		Status:           job.Status,
		Percent:          job.Progress.DisplayPercent(),
		BytesTransferred: job.Progress.BytesTransferred,
		TotalBytes:       job.Progress.TotalBytes,
		SpeedBytes:       job.Progress.SpeedBytes,
		ETASeconds:       job.Progress.ETASeconds,
		Deletion:         job.Progress.Deletion,
	}
}

// NotificationMessage carries out-of-band service notices.
type NotificationMessage struct {
	Type    string `json:"type"`
	Level   string `json:"level"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// NewNotification builds a notification message.
func NewNotification(level, message, details string) *NotificationMessage {
	return &NotificationMessage{
		Type:    MessageTypeNotification,
		Level:   level,
		Message: message,
		Details: details,
	}
}
