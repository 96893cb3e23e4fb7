package models

import "time"

// TaskReportStatus is the verification state of a completed-tasks report.
type TaskReportStatus string

const (
	TaskReportPending  TaskReportStatus = "pending"
	TaskReportVerified TaskReportStatus = "verified"
	TaskReportRejected TaskReportStatus = "rejected"
)

// TaskReport is a curator's completed-tasks report awaiting verification by
// another curator. Verification appends a task_verification activity record.
type TaskReport struct {
	ID              string           `json:"id" db:"id"`
	ServerID        string           `json:"server_id" db:"server_id"`
	ChannelID       string           `json:"channel_id" db:"channel_id"`
	CuratorID       string           `json:"curator_id" db:"curator_id"`
	ReportMessageID string           `json:"report_message_id" db:"report_message_id"`
	TasksCount      int              `json:"tasks_count" db:"tasks_count"`
	Excerpt         string           `json:"excerpt" db:"excerpt"`
	Status          TaskReportStatus `json:"status" db:"status"`
	VerifiedBy      *string          `json:"verified_by,omitempty" db:"verified_by"`
	VerifiedAt      *time.Time       `json:"verified_at,omitempty" db:"verified_at"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
}
