package domain

import "time"

// Identity is the signed-in user as seen by the data layer. The zero value is an
// anonymous session, which is a valid state.
type Identity struct {
	UserID string
	Email  string
}

func (i Identity) IsAnonymous() bool {
	return i.UserID == ""
}

// ScopeID returns the id used to scope per-user storage.
func (i Identity) ScopeID() string {
	if i.IsAnonymous() {
		return AnonymousUserID
	}
	return i.UserID
}

type User struct {
	ID        string    `json:"id" firestore:"-"`
	Name      string    `json:"name" firestore:"name"`
	Email     string    `json:"email" firestore:"email"`
	Points    int       `json:"points" firestore:"points"`
	Favorites []string  `json:"favorites" firestore:"favorites"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt"`
}
