package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Prints fresh random secrets in .env form.
func main() {
	for _, name := range []string{"CSRF_SECRET", "AUTH_SECRET"} {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic(err)
		}
		fmt.Printf("%s=%s\n", name, base64.StdEncoding.EncodeToString(secret))
	}
}
