// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import "time"

// Agent is the AI participant configuration joined to a meeting.
type Agent struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Instructions string     `json:"instructions"`
	OwnerID      string     `json:"owner_id"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// Person is a human user who may speak in a meeting.
type Person struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
