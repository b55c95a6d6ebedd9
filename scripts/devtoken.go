package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/canal-compras/disputa/internal/api/http"
	"github.com/canal-compras/disputa/internal/domain/identity"
)

// devtoken prints a bearer token for local smoke tests, e.g.
//
//	go run ./scripts/devtoken.go --role PREGOEIRO --user pregoeiro --agency agency-1
func main() {
	var (
		secret  = pflag.String("secret", os.Getenv("JWT_SECRET"), "HS256 secret; defaults to JWT_SECRET")
		issuer  = pflag.String("issuer", os.Getenv("JWT_ISSUER"), "token issuer")
		role    = pflag.String("role", "SUPPLIER", "role or Portuguese alias")
		user    = pflag.String("user", "", "user id (sub)")
		name    = pflag.String("name", "", "display name")
		company = pflag.String("company", "", "company id of a supplier")
		size    = pflag.String("size", "", "company size: ME|EPP|DEMAIS")
		uf      = pflag.String("state", "", "company state (UF)")
		agency  = pflag.String("agency", "", "agency id of an auctioneer or authority")
		ttl     = pflag.Duration("ttl", 8*time.Hour, "token lifetime")
	)
	pflag.Parse()

	if strings.TrimSpace(*secret) == "" {
		log.Fatal("secret is required")
	}
	r, err := identity.ParseRole(*role)
	if err != nil {
		log.Fatalf("role %q: %v", *role, err)
	}
	caller := identity.Caller{
		UserID:       strings.TrimSpace(*user),
		Name:         *name,
		Role:         r,
		CompanyID:    *company,
		CompanySize:  strings.ToUpper(*size),
		CompanyState: strings.ToUpper(*uf),
		AgencyID:     *agency,
	}
	if err := caller.Validate(); err != nil {
		log.Fatal(err)
	}
	token, err := httpapi.NewTokenVerifier(*secret, *issuer).Issue(caller, *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(token)
}
