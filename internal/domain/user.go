// Package domain contains core domain types for the care portal client.
package domain

import "strings"

// User is the minimal profile kept alongside a bearer token.
type User struct {
	Identifier  string `json:"identifier"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role,omitempty"`
}

// NormalizeIdentifier trims and lower-cases a login identifier or e-mail.
func NormalizeIdentifier(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
