package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/eldtechnologies/chatdeck/internal/auth"
	"github.com/eldtechnologies/chatdeck/internal/crypto"
)

// Mints a local Auth.js session cookie and a CSRF pair for calling the
// gateway with curl.
func main() {
	_ = godotenv.Load()

	secret := flag.String("secret", os.Getenv("AUTH_SECRET"), "Auth.js secret (default $AUTH_SECRET)")
	csrfSecret := flag.String("csrf-secret", os.Getenv("CSRF_SECRET"), "CSRF secret (default $CSRF_SECRET)")
	subject := flag.String("sub", "", "Subject (user id at the identity provider)")
	email := flag.String("email", "", "Email claim")
	name := flag.String("name", "", "Name claim")
	ttl := flag.Duration("ttl", time.Hour, "Session lifetime")
	flag.Parse()

	if *secret == "" || *subject == "" {
		fmt.Fprintln(os.Stderr, "Usage: sign -sub <subject> [-secret <auth-secret>] [-email <email>] [-name <name>] [-ttl 1h]")
		os.Exit(1)
	}

	verifier, err := auth.NewAuthJSVerifier(*secret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid secret: %v\n", err)
		os.Exit(1)
	}

	token, err := verifier.Seal(auth.Identity{Subject: *subject, Email: *email, Name: *name}, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to seal session: %v\n", err)
		os.Exit(1)
	}

	cookie := fmt.Sprintf("%s=%s", auth.AuthJSCookie, token)

	if *csrfSecret != "" {
		signer, err := crypto.NewCSRFSigner(*csrfSecret)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid CSRF secret: %v\n", err)
			os.Exit(1)
		}
		csrfToken, err := signer.Issue()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to issue CSRF token: %v\n", err)
			os.Exit(1)
		}
		cookie += "; csrf_token=" + csrfToken
		fmt.Printf("Cookie: %s\n", cookie)
		fmt.Printf("X-CSRF-Token: %s\n", csrfToken)
		return
	}

	fmt.Printf("Cookie: %s\n", cookie)
}
