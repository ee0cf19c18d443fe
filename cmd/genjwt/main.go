// genjwt печатает bearer-токен для локальной отладки API.
//
//	AUTH_JWT_SECRET=... go run ./cmd/genjwt -user alice
//	AUTH_JWT_SECRET=... go run ./cmd/genjwt -user root -role admin
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"nura/internal/middleware"
)

func main() {
	user := flag.String("user", "", "user id (subject); random uuid if empty")
	role := flag.String("role", "", "role claim, e.g. admin")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("AUTH_JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "AUTH_JWT_SECRET is not set")
		os.Exit(2)
	}
	if *user == "" {
		*user = uuid.NewString()
	}

	tok, err := middleware.SignToken([]byte(secret), *user, *role, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
