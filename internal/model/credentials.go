package model

import "fmt"

// Credentials are the portal login secrets for a single run. They are owned
// by the invocation that created them and must never be persisted or logged.
type Credentials struct {
	Username string
	Password string
}

// Validate reports the first missing field, matching the caller-facing
// contract that incomplete requests are rejected before the pipeline runs.
func (c Credentials) Validate() error {
	if c.Username == "" {
		return fmt.Errorf("missing username")
	}
	if c.Password == "" {
		return fmt.Errorf("missing password")
	}
	return nil
}

// String redacts both fields so Credentials can never leak through %v
// formatting or a structured log field.
func (c Credentials) String() string {
	return "credentials{username:<redacted> password:<redacted>}"
}
