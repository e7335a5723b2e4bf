package model

// VerificationSettings is the runtime configuration of the bot-verification gate.
type VerificationSettings struct {
	Enabled   bool   `json:"verification_enabled"`
	SiteKey   string `json:"verification_site_key"`
	SecretKey string `json:"verification_secret_key"`
}

// Public strips the secret for the unauthenticated form-config endpoint.
func (s VerificationSettings) Public() map[string]any {
	return map[string]any{
		"verification_enabled": s.Enabled,
		"site_key":             s.SiteKey,
	}
}
