package domain

// Session is the authenticated identity of the current operator.
// User is non-nil iff Token is non-empty.
type Session struct {
	Token string `json:"-"`
	User  *User  `json:"user,omitempty"`
}

// Authenticated reports whether the session carries a token.
func (s Session) Authenticated() bool {
	return s.Token != "" && s.User != nil
}

// Valid reports whether the token/user pairing invariant holds.
func (s Session) Valid() bool {
	return (s.Token == "") == (s.User == nil)
}

// Clone returns a copy that does not share the user record.
func (s Session) Clone() Session {
	if s.User == nil {
		return Session{Token: s.Token}
	}
	u := *s.User
	return Session{Token: s.Token, User: &u}
}
