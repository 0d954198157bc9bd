package identity

// TokenConfig is an explicit configuration value. There is no process-wide
// mutable config; pass it to the constructors that need it.
type TokenConfig struct {
	SigningKey      string
	TokenExpiration int
	Issuer          string
	Audience        []string
}

// DefaultTokenExpiration is the token lifetime in hours
const DefaultTokenExpiration = 24

// NewConfig builds a TokenConfig. A missing signing secret is a construction
// failure, not a runtime one: callers are expected to abort startup.
func NewConfig(signingKey string) (*TokenConfig, error) {
	if signingKey == "" {
		return nil, ErrMissingSigningKey
	}

	return &TokenConfig{
		SigningKey:      signingKey,
		TokenExpiration: DefaultTokenExpiration,
	}, nil
}

func (c *TokenConfig) GetSigningKey() string { return c.SigningKey }

func (c *TokenConfig) GetTokenExpiration() int {
	if c.TokenExpiration <= 0 {
		return DefaultTokenExpiration
	}
	return c.TokenExpiration
}

func (c *TokenConfig) GetIssuer() string { return c.Issuer }

func (c *TokenConfig) GetAudience() []string { return c.Audience }

var _ Config = (*TokenConfig)(nil)
