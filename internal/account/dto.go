package account

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	RefreshToken string `json:"refresh_token,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type signupRequest struct {
	Email               string       `json:"email"`
	Password            string       `json:"password"`
	FullName            string       `json:"full_name"`
	Title               string       `json:"title"`
	InternalSignupToken string       `json:"internal_signup_token"`
	SignupParams        signupParams `json:"signup_params"`
}

type signupParams struct {
	OrgCurrency string `json:"org_currency"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type idRef struct {
	ID string `json:"id"`
}

// Org as returned by the legacy org listing. The full document carries many
// more fields; only the ID is needed for deletion.
type Org struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
