package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demoray/azure-identity-helpers/credential"
)

func TestRender(t *testing.T) {
	token := credential.AccessToken{
		Token:     "secret-token",
		ExpiresOn: time.Unix(1700166595, 0),
	}

	out, err := render(token)
	require.NoError(t, err)

	assert.JSONEq(t, `{"token":"secret-token","expiration_date":"1700166595"}`, string(out))
}
