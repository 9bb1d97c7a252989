package models

import "time"

// Export job states.
const (
	ExportStatusPending    = "pending"
	ExportStatusProcessing = "processing"
	ExportStatusCompleted  = "completed"
	ExportStatusFailed     = "failed"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

// ExportJob tracks an account data export request through the worker queue.
type ExportJob struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Format      string     `json:"format"`
	Status      string     `json:"status"`
	File        string     `json:"-"`
	Error       string     `json:"error,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	DownloadToken   string     `json:"download_token,omitempty"`
	DownloadExpires *time.Time `json:"download_expires,omitempty"`
}

// ExportRequest asks for an account data export in the given format.
type ExportRequest struct {
	Format string `json:"format" validate:"required,oneof=csv pdf"`
}
