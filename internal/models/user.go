package models

// Identity is the signed-in user as remembered between runs.
type Identity struct {
	UserID   int    `db:"user_id" json:"user_id"`
	Username string `db:"username" json:"username"`
	FullName string `db:"full_name" json:"full_name"`
	Token    string `db:"token" json:"token"`
}

// UserSummary is a user search hit.
type UserSummary struct {
	ID           int    `json:"id" validate:"required"`
	FullName     string `json:"full_name" validate:"required"`
	ProfileImage string `json:"profile_image"`
}
