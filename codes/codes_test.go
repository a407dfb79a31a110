package codes_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-uma-server/codes"
	codesfakerepo "github.com/jrsteele09/go-uma-server/codes/repofake"
	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/jrsteele09/go-uma-server/oauth2"
	"github.com/stretchr/testify/require"
	xoauth2 "golang.org/x/oauth2"
)

const (
	testVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func TestVerifyCodeVerifier(t *testing.T) {
	s256 := &codes.AuthorizationCode{CodeChallenge: testChallenge, CodeChallengeMethod: oauth2.CodeMethodTypeS256}
	plain := &codes.AuthorizationCode{CodeChallenge: "plain-verifier", CodeChallengeMethod: oauth2.CodeMethodTypePlain}

	require.True(t, codes.VerifyCodeVerifier(s256, testVerifier))
	require.False(t, codes.VerifyCodeVerifier(s256, testVerifier+"x"))
	require.False(t, codes.VerifyCodeVerifier(s256, ""))
	require.False(t, codes.VerifyCodeVerifier(s256, testChallenge))

	require.True(t, codes.VerifyCodeVerifier(plain, "plain-verifier"))
	require.False(t, codes.VerifyCodeVerifier(plain, "other"))

	require.True(t, codes.VerifyCodeVerifier(&codes.AuthorizationCode{}, ""))
	require.False(t, codes.VerifyCodeVerifier(&codes.AuthorizationCode{CodeChallenge: "x", CodeChallengeMethod: "S512"}, "x"))

	generated := xoauth2.GenerateVerifier()
	require.True(t, codes.VerifyCodeVerifier(&codes.AuthorizationCode{
		CodeChallenge:       xoauth2.S256ChallengeFromVerifier(generated),
		CodeChallengeMethod: oauth2.CodeMethodTypeS256,
	}, generated))
}

func TestAuthorizationCodeExpiry(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &codes.AuthorizationCode{CreateDateTime: created, ExpiresIn: 60}
	require.False(t, c.IsExpired(created.Add(59*time.Second)))
	require.True(t, c.IsExpired(created.Add(time.Minute)))
}

func TestNewCode(t *testing.T) {
	a, err := codes.NewCode()
	require.NoError(t, err)
	b, err := codes.NewCode()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.Len(t, a, 43)
}

func TestFakeRepoRemoveIsSingleUse(t *testing.T) {
	repo := codesfakerepo.NewFakeCodeRepo()
	ctx := context.Background()
	require.NoError(t, repo.Add(ctx, &codes.AuthorizationCode{Code: "abc"}))
	require.ErrorIs(t, repo.Add(ctx, &codes.AuthorizationCode{Code: "abc"}), apperrors.ErrAlreadyExists)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if repo.Remove(ctx, "abc") == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())

	_, err := repo.Get(ctx, "abc")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
