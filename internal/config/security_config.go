package config

type SecurityConfig interface {
	GetRequirePKCE() bool
	GetSigningKeyPEM() string
	GetSeedDefaults() bool
	GetSeedClientSecret() string
	GetSeedAdminPassword() string
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetRequirePKCE() bool {
	return GetEnvBool("REQUIRE_PKCE", false)
}

// GetSigningKeyPEM returns a PKCS#1 RSA private key. When empty a key is
// generated at startup.
func (Security) GetSigningKeyPEM() string {
	return GetEnv("SIGNING_KEY_PEM", "")
}

// GetSeedDefaults controls whether the bootstrap client, resource owner and
// resource set are created at startup.
func (Security) GetSeedDefaults() bool {
	return GetEnvBool("SEED_DEFAULTS", true)
}

// GetSeedClientSecret is the secret of the bootstrap client. A random one is
// generated and logged once when empty.
func (Security) GetSeedClientSecret() string {
	return GetEnv("SEED_CLIENT_SECRET", "")
}

// GetSeedAdminPassword works like GetSeedClientSecret for the bootstrap
// resource owner.
func (Security) GetSeedAdminPassword() string {
	return GetEnv("SEED_ADMIN_PASSWORD", "")
}
