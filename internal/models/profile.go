// internal/models/profile.go
package models

// Profile is the id-to-email projection loaded once per dispatch cycle so
// per-user processing never goes back to the directory.
type Profile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}
