package auth

import "time"

// Account is a persisted user of the budget application.
type Account struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile returns the non-secret view of the account.
func (a *Account) Profile() Profile {
	return Profile{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Email:     a.Email,
	}
}

// Profile is what FetchProfile hands back to the client.
type Profile struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// SignupRequest carries the fields submitted on the signup form.
type SignupRequest struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// Session is a signed login token and the instant it stops being accepted.
type Session struct {
	Token     string
	ExpiresAt time.Time
}
