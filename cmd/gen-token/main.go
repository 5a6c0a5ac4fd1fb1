package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
	log "github.com/sirupsen/logrus"
)

type tokenOptions struct {
	subject  string
	audience string
	issuer   string
	ttl      time.Duration
}

// gen-token mints an HS256 bearer token for a service running with
// LOCAL_AUTH_MODE=hs256.
func main() {
	audience := flag.String("aud", "", "audience claim")
	issuer := flag.String("iss", "", "issuer claim")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatal("usage: gen-token [flags] <user-id>")
	}
	secret := os.Getenv("LOCAL_AUTH_SHARED_SECRET")
	if secret == "" {
		log.Fatal("missing LOCAL_AUTH_SHARED_SECRET")
	}

	signed, err := mintToken([]byte(secret), tokenOptions{
		subject:  flag.Arg(0),
		audience: *audience,
		issuer:   *issuer,
		ttl:      *ttl,
	}, time.Now())
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Print(signed)
}

func mintToken(secret []byte, opts tokenOptions, now time.Time) (string, error) {
	if opts.subject == "" {
		return "", fmt.Errorf("missing subject")
	}
	claims := jwt.RegisteredClaims{
		Subject:   opts.subject,
		Issuer:    opts.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(opts.ttl)),
	}
	if opts.audience != "" {
		claims.Audience = jwt.ClaimStrings{opts.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
