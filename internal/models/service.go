package models

import "time"

type Service struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	EstimatedDuration int       `json:"estimated_duration"`
	PrefixCode        string    `json:"prefix_code"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
