package core

// Identity is the in-memory identity record, a sum over the security
// profile plus the volatile fields shared by both variants (§3).
type Identity struct {
	Profile Profile

	ClientID      string
	ClientSecret  string // Shared profile only
	PublicKeyPEM  string // Rsa profile only
	PrivateKeyPEM string // Rsa profile only

	RegistrationAccessToken string
	RegistrationURI         string

	AccessToken         string
	LastTokenServerTime string
}

// IsOnboarded implements the invariant "onboarded ⇔ registration_access_token present".
func (id *Identity) IsOnboarded() bool {
	return id.RegistrationAccessToken != ""
}

// HasToken reports whether an access token has been fetched and not
// since cleared.
func (id *Identity) HasToken() bool {
	return id.AccessToken != ""
}

func (id *Identity) fromStored(s *StoredCredentials) {
	id.ClientID = s.ClientID
	id.ClientSecret = s.ClientSecret
	id.PublicKeyPEM = s.PublicKeyPEM
	id.PrivateKeyPEM = s.PrivateKeyPEM
	id.RegistrationAccessToken = s.RegistrationAccessToken
	id.RegistrationURI = s.RegistrationURI
}

func (id *Identity) toStored() *StoredCredentials {
	return &StoredCredentials{
		ClientID:                id.ClientID,
		ClientSecret:            id.ClientSecret,
		PublicKeyPEM:            id.PublicKeyPEM,
		PrivateKeyPEM:           id.PrivateKeyPEM,
		RegistrationAccessToken: id.RegistrationAccessToken,
		RegistrationURI:         id.RegistrationURI,
	}
}

// equalStored reports whether s describes the same credential material
// this identity currently holds, used by UpdateCredentials to decide
// between replacing in place and CREDENTIALS_UP_TO_DATE.
func (id *Identity) equalStored(s *StoredCredentials) bool {
	return id.ClientID == s.ClientID &&
		id.ClientSecret == s.ClientSecret &&
		id.PublicKeyPEM == s.PublicKeyPEM &&
		id.PrivateKeyPEM == s.PrivateKeyPEM &&
		id.RegistrationAccessToken == s.RegistrationAccessToken &&
		id.RegistrationURI == s.RegistrationURI
}

// zeroize overwrites secret-bearing fields before the identity goes out
// of scope, the closest idiomatic Go analogue of mcl_core_destroy's
// explicit free of the security handler strings.
func (id *Identity) zeroize() {
	id.ClientSecret = zeroedString(len(id.ClientSecret))
	id.PrivateKeyPEM = zeroedString(len(id.PrivateKeyPEM))
	id.RegistrationAccessToken = zeroedString(len(id.RegistrationAccessToken))
	id.AccessToken = zeroedString(len(id.AccessToken))
}

func zeroedString(n int) string {
	if n == 0 {
		return ""
	}
	b := make([]byte, n)
	return string(b)
}
