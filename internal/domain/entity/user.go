package entity

import (
	"time"
)

type User struct {
	ID        string    `json:"id" firestore:"id"`
	Email     string    `json:"email" firestore:"email"`
	Username  string    `json:"username" firestore:"username"`
	Role      string    `json:"role" firestore:"role"`
	PushToken string    `json:"-" firestore:"pushToken,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty" firestore:"avatarURL,omitempty"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
}

// Contact is where out-of-band notifications for a user are delivered.
type Contact struct {
	UserID    string
	Email     string
	PushToken string
}

func (u *User) Contact() Contact {
	return Contact{UserID: u.ID, Email: u.Email, PushToken: u.PushToken}
}

// DisplayName falls back to the email when no username is set.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// UserSummary is the public view of a user returned with a session.
type UserSummary struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.DisplayName(), AvatarURL: u.AvatarURL}
}
