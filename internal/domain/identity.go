package domain

// Identity is a verified user as supplied by the authentication layer.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}
