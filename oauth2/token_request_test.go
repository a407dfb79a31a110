package oauth2_test

import (
	"testing"

	"github.com/jrsteele09/go-uma-server/oauth2"
	"github.com/stretchr/testify/require"
)

func TestTokenRequestParam(t *testing.T) {
	req := oauth2.TokenRequest{
		GrantType:    oauth2.PasswordGrant,
		Username:     "administrator",
		Password:     "password",
		Scope:        "scim",
		Ticket:       "ticket-1",
		RefreshToken: "rt",
	}

	require.Equal(t, "password", req.Param(oauth2.ParamGrantType))
	require.Equal(t, "administrator", req.Param(oauth2.ParamUsername))
	require.Equal(t, "password", req.Param(oauth2.ParamPassword))
	require.Equal(t, "scim", req.Param(oauth2.ParamScope))
	require.Equal(t, "ticket-1", req.Param(oauth2.ParamTicket))
	require.Equal(t, "rt", req.Param(oauth2.ParamRefreshToken))
	require.Empty(t, req.Param(oauth2.ParamCode))
	require.Empty(t, req.Param("unknown"))
}

func TestTokenRequestAmr(t *testing.T) {
	require.Equal(t, []string{"sms", "pwd"}, oauth2.TokenRequest{AmrValues: "sms  pwd"}.Amr())
	require.Empty(t, oauth2.TokenRequest{}.Amr())
}
