package core

// registrationRequest is the body posted to the enrollment or
// registration_client_uri endpoint.
type registrationRequest struct {
	ClientID string `json:"client_id,omitempty"`
	JWKS     *jwks  `json:"jwks,omitempty"`
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// registrationResponse is the body returned on a successful
// registration or rekey, matching the literal fixture in §8 scenario 1.
type registrationResponse struct {
	ClientID                string `json:"client_id"`
	ClientSecret            string `json:"client_secret,omitempty"`
	RegistrationAccessToken string `json:"registration_access_token"`
	RegistrationClientURI   string `json:"registration_client_uri"`
}

func newRsaJWKS(clientID, n, e string) *jwks {
	return &jwks{Keys: []jwk{{
		Kty: "RSA",
		N:   n,
		E:   e,
		Use: "sig",
		Alg: "RS256",
		Kid: clientID,
	}}}
}
