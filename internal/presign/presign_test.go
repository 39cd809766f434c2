package presign

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignThenVerifyRoundTrips(t *testing.T) {
	u := Sign("/static/default/ab/cd.png", "secret-token")

	qs, err := u.ToQueryString()
	require.NoError(t, err)

	query, err := url.ParseQuery(qs)
	require.NoError(t, err)

	credential, err := Verify(u.Path, query, time.Unix(u.IssuedAt+1, 0))
	require.NoError(t, err)
	assert.Equal(t, "secret-token", credential)
}

func TestVerifyRejectsTamperedPath(t *testing.T) {
	u := Sign("/static/default/ab/cd.png", "secret-token")
	qs, err := u.ToQueryString()
	require.NoError(t, err)
	query, err := url.ParseQuery(qs)
	require.NoError(t, err)

	_, err = Verify("/static/default/ab/other.png", query, time.Unix(u.IssuedAt+1, 0))
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyRejectsExpired(t *testing.T) {
	u := Sign("/static/default/ab/cd.png", "secret-token")
	qs, err := u.ToQueryString()
	require.NoError(t, err)
	query, err := url.ParseQuery(qs)
	require.NoError(t, err)

	future := time.Unix(u.IssuedAt+u.ExpiresIn+1, 0)
	_, err = Verify(u.Path, query, future)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyRejectsNotYetValid(t *testing.T) {
	u := Sign("/static/default/ab/cd.png", "secret-token")
	qs, err := u.ToQueryString()
	require.NoError(t, err)
	query, err := url.ParseQuery(qs)
	require.NoError(t, err)

	past := time.Unix(u.IssuedAt-10, 0)
	_, err = Verify(u.Path, query, past)
	assert.ErrorIs(t, err, ErrNotYetValid)
}

func TestVerifyRejectsMalformedQuery(t *testing.T) {
	_, err := Verify("/static/default/ab/cd.png", url.Values{}, time.Now())
	assert.ErrorIs(t, err, ErrMalformedQuery)
}
