package models

import "notification-relay/internal/common/validation"

// NotificationJobSchema validates queue payloads and POST /api/notify/email bodies.
// Empty strings and an empty data object count as missing.
func NotificationJobSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"to", "template", "data"},
		Properties: map[string]validation.Property{
			"to": {
				Type:        validation.Types{"string"},
				Description: "Recipient email address",
				MinLength:   intPtr(1),
				MaxLength:   intPtr(255),
			},
			"template": {
				Type:        validation.Types{"string"},
				Description: "Template identifier",
				MinLength:   intPtr(1),
				MaxLength:   intPtr(100),
			},
			"data": {
				Type:          validation.Types{"object"},
				Description:   "Placeholder values",
				MinProperties: intPtr(1),
			},
		},
		AdditionalProperties: true,
	}
}

// ReminderRequestSchema adds schedule_time to the job schema.
func ReminderRequestSchema() validation.JSONSchema {
	schema := NotificationJobSchema()
	schema.Required = append(schema.Required, "schedule_time")
	schema.Properties["schedule_time"] = validation.Property{
		Type:        validation.Types{"string"},
		Description: "When the reminder should be sent",
		MinLength:   intPtr(1),
	}
	return schema
}

func intPtr(i int) *int {
	return &i
}
