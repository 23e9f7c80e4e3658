package models

import (
	"strconv"
	"time"
)

// NotificationJob is the JSON body carried on the email queue.
type NotificationJob struct {
	To       string                 `json:"to"`
	Template string                 `json:"template"`
	Data     map[string]interface{} `json:"data"`
}

// EmailRequest is the body of POST /api/notify/email.
type EmailRequest struct {
	To       string                 `json:"to"`
	Template string                 `json:"template"`
	Data     map[string]interface{} `json:"data"`
}

// Job converts the request into its queue representation.
func (r EmailRequest) Job() NotificationJob {
	return NotificationJob{To: r.To, Template: r.Template, Data: r.Data}
}

// ReminderRequest is the body of POST /api/notify/reminder.
type ReminderRequest struct {
	To           string                 `json:"to"`
	Template     string                 `json:"template"`
	Data         map[string]interface{} `json:"data"`
	ScheduleTime string                 `json:"schedule_time"`
}

type NotifyResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	NotificationID string `json:"notification_id"`
}

type StatusResponse struct {
	NotificationID string `json:"notification_id"`
	Status         string `json:"status"`
	DeliveredAt    string `json:"delivered_at"`
}

type ErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// NotificationID builds the "<kind>_<unix seconds>" identifier returned by the API.
func NotificationID(kind string, now time.Time) string {
	return kind + "_" + strconv.FormatInt(now.Unix(), 10)
}
