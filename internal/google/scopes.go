package google

// DefaultOAuthScopes are the Google OAuth scopes required by the exporter.
// Gmail access is read-only: the exporter never labels, archives or sends.
var DefaultOAuthScopes = []string{
	// OpenID Connect scopes (required for user info)
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",

	// Gmail read access
	"https://www.googleapis.com/auth/gmail.readonly",
}
