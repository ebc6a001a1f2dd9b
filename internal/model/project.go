package model

import (
	"time"
)

// Project is a homeowner's renovation project.
type Project struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Address        string    `json:"address,omitempty"`
	Description    string    `json:"description,omitempty"`
	HomeownerName  string    `json:"homeowner_name"`
	HomeownerEmail string    `json:"homeowner_email"`
	CreatedAt      time.Time `json:"created_at"`
}

// Contractor is a tradesperson invited to bid on a project.
type Contractor struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	Company   string    `json:"company,omitempty"`
	Email     string    `json:"email"`
	Trade     string    `json:"trade,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayName is how the contractor is named in prompts and messages.
func (c *Contractor) DisplayName() string {
	if c.Company != "" && c.Company != c.Name {
		return c.Name + " (" + c.Company + ")"
	}
	return c.Name
}
