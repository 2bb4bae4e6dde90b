// This command is a local utility: it runs the configured credential chain
// once, printing the acquired token as JSON on stdout. Useful as a
// credential helper for tools that expect a token-producing executable.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/demoray/azure-identity-helpers/credential"
	"github.com/demoray/azure-identity-helpers/internal/chain"
	"github.com/demoray/azure-identity-helpers/internal/config"
)

type Config struct {
	Chain config.ChainConfig
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s scope [scope ...]\n", os.Args[0])
		os.Exit(2)
	}

	cfg := Config{}
	err := envconfig.Process(context.Background(), &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Chain.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid chain configuration: %v\n", err)
		os.Exit(1)
	}

	credentialChain, err := chain.New(cfg.Chain, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error building credential chain: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	token, err := credentialChain.GetToken(ctx, credential.TokenRequest{
		Scopes:        os.Args[1:],
		TenantID:      cfg.Chain.TenantID,
		AuthorityHost: cfg.Chain.AuthorityHost,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error acquiring token: %v\n", err)
		os.Exit(1)
	}

	out, err := render(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error encoding token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s", out)
}

// helperResponse is the credential-helper output shape: the token plus its
// expiry as unix seconds, matching what token-producing executables emit.
type helperResponse struct {
	Token          string `json:"token"`
	ExpirationDate string `json:"expiration_date"`
}

func render(token credential.AccessToken) ([]byte, error) {
	return json.Marshal(helperResponse{
		Token:          token.Token,
		ExpirationDate: token.ExpiresOnUnix(),
	})
}
