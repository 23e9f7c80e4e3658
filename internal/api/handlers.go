// internal/api/handlers.go
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"notification-relay/internal/common/validation"
	"notification-relay/internal/models"
)

const (
	msgMissingData    = "Données manquantes"
	msgUnknownModel   = "Modèle inconnu"
	msgQueued         = "Notification ajoutée à la file d'attente"
	msgReminderQueued = "Rappel programmé"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{Status: "ok"})
}

// sendEmail validates the request and enqueues it on the email queue.
// Nothing is published unless the request is valid and names a known template.
func (s *Server) sendEmail(c *gin.Context) {
	raw, ok := s.validBody(c, models.NotificationJobSchema())
	if !ok {
		return
	}

	var req models.EmailRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	if !s.knownTemplate(c, req.Template) {
		return
	}

	if err := s.publisher.PublishJSON(c.Request.Context(), s.config.EmailQueue, req.Job()); err != nil {
		s.logger.Error("Failed to enqueue notification", map[string]interface{}{
			"template": req.Template,
			"error":    err.Error(),
		})
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}

	id := models.NotificationID("email", s.now())
	s.logger.Info("Notification enqueued", map[string]interface{}{
		"notificationId": id,
		"template":       req.Template,
		"queue":          s.config.EmailQueue,
	})
	c.JSON(http.StatusOK, models.NotifyResponse{
		Success:        true,
		Message:        msgQueued,
		NotificationID: id,
	})
}

// scheduleReminder acknowledges a reminder request. Reminders are not
// scheduled or enqueued yet.
func (s *Server) scheduleReminder(c *gin.Context) {
	raw, ok := s.validBody(c, models.ReminderRequestSchema())
	if !ok {
		return
	}

	var req models.ReminderRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	if !s.knownTemplate(c, req.Template) {
		return
	}

	id := models.NotificationID("reminder", s.now())
	s.logger.Info("Reminder accepted", map[string]interface{}{
		"notificationId": id,
		"template":       req.Template,
		"scheduleTime":   req.ScheduleTime,
	})
	c.JSON(http.StatusOK, models.NotifyResponse{
		Success:        true,
		Message:        msgReminderQueued,
		NotificationID: id,
	})
}

// status always reports delivered; delivery state is not tracked.
func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, models.StatusResponse{
		NotificationID: c.Param("id"),
		Status:         "delivered",
		DeliveredAt:    s.now().Format(time.RFC3339),
	})
}

func (s *Server) validBody(c *gin.Context, schema validation.JSONSchema) ([]byte, bool) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return nil, false
	}

	result, err := validation.ValidateJSON(raw, schema)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: msgMissingData})
		return nil, false
	}
	if !result.Valid {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: msgMissingData, Fields: result.Fields()})
		return nil, false
	}
	return raw, true
}

func (s *Server) knownTemplate(c *gin.Context, id string) bool {
	if s.templates == nil || s.templates.Has(id) {
		return true
	}
	c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: msgUnknownModel + ": " + id, Fields: []string{"template"}})
	return false
}
