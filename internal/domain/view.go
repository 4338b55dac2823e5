package domain

import "fmt"

// ViewState is the top-level screen currently visible.
type ViewState int

const (
	ViewLogin ViewState = iota
	ViewSignup
	ViewForgotPassword
	ViewResetPassword
	ViewDashboard
)

var viewNames = [...]string{
	ViewLogin:          "login",
	ViewSignup:         "signup",
	ViewForgotPassword: "forgot_password",
	ViewResetPassword:  "reset_password",
	ViewDashboard:      "dashboard",
}

func (v ViewState) String() string {
	if v < 0 || int(v) >= len(viewNames) {
		return fmt.Sprintf("view(%d)", int(v))
	}
	return viewNames[v]
}

// IsAuthScreen reports whether v is one of the session-independent screens.
func (v ViewState) IsAuthScreen() bool {
	return v >= ViewLogin && v <= ViewResetPassword
}

// ParseViewState maps a screen name back to its ViewState.
func ParseViewState(s string) (ViewState, error) {
	for i, name := range viewNames {
		if name == s {
			return ViewState(i), nil
		}
	}
	return ViewLogin, fmt.Errorf("unknown view %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (v ViewState) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}
