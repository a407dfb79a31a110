package server

import (
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-uma-server/oauth2"
)

// clientCredentials collects every credential a client may have sent. The
// Basic header values are form-url-decoded as RFC 6749 section 2.3.1 requires.
func clientCredentials(r *http.Request) oauth2.ClientCredentials {
	creds := oauth2.ClientCredentials{
		ClientID:            r.PostFormValue("client_id"),
		ClientSecret:        r.PostFormValue("client_secret"),
		ClientAssertion:     r.PostFormValue("client_assertion"),
		ClientAssertionType: r.PostFormValue("client_assertion_type"),
	}

	if id, secret, ok := r.BasicAuth(); ok {
		creds.BasicClientID = unescapeForm(id)
		creds.BasicClientSecret = unescapeForm(secret)
	}

	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		creds.Certificate = r.TLS.PeerCertificates[0]
	}
	return creds
}

func unescapeForm(value string) string {
	unescaped, err := url.QueryUnescape(value)
	if err != nil {
		return value
	}
	return unescaped
}

func tokenRequestFromForm(r *http.Request) oauth2.TokenRequest {
	return oauth2.TokenRequest{
		GrantType:        oauth2.GrantType(r.PostFormValue(oauth2.ParamGrantType)),
		Code:             r.PostFormValue(oauth2.ParamCode),
		RedirectURI:      r.PostFormValue(oauth2.ParamRedirectURI),
		CodeVerifier:     r.PostFormValue(oauth2.ParamCodeVerifier),
		Username:         r.PostFormValue(oauth2.ParamUsername),
		Password:         r.PostFormValue(oauth2.ParamPassword),
		Scope:            r.PostFormValue(oauth2.ParamScope),
		RefreshToken:     r.PostFormValue(oauth2.ParamRefreshToken),
		Ticket:           r.PostFormValue(oauth2.ParamTicket),
		ClaimToken:       r.PostFormValue("claim_token"),
		ClaimTokenFormat: r.PostFormValue("claim_token_format"),
		AmrValues:        r.PostFormValue("amr_values"),
		Credentials:      clientCredentials(r),
	}
}

func tokenActionRequestFromForm(r *http.Request) oauth2.TokenActionRequest {
	return oauth2.TokenActionRequest{
		Token:         r.PostFormValue(oauth2.ParamToken),
		TokenTypeHint: oauth2.TokenTypeHint(r.PostFormValue("token_type_hint")),
		Credentials:   clientCredentials(r),
	}
}
