package entity

import "time"

const UnknownName = "Unknown"

// User mirrors an identity provider account. ExternalID is the provider's id.
type User struct {
	ID         string    `json:"id" db:"id"`
	ExternalID string    `json:"external_id" db:"external_id"`
	Email      string    `json:"email" db:"email"`
	Username   string    `json:"username" db:"username"`
	FirstName  string    `json:"first_name" db:"first_name"`
	LastName   string    `json:"last_name" db:"last_name"`
	PhotoURL   string    `json:"photo_url" db:"photo_url"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

func (u *User) ApplyNameDefaults() {
	if u.FirstName == "" {
		u.FirstName = UnknownName
	}
	if u.LastName == "" {
		u.LastName = UnknownName
	}
}
