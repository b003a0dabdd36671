package scenario

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xkilldash9x/authprobe/internal/results"
)

// TokenAuditName is the result name of the token audit.
const TokenAuditName = "Audit du jeton JWT"

// AuditToken inspects the claims of a client-side token without verifying its
// signature. An opaque, non-JWT token passes with a note.
func AuditToken(raw string, maxLifetime time.Duration, now time.Time) results.Outcome {
	if !HasToken(raw) {
		return results.Pass("Aucun jeton stocké côté client")
	}

	claims := jwt.MapClaims{}
	token, _, err := jwt.NewParser().ParseUnverified(strings.Trim(raw, `"`), claims)
	if err != nil {
		return results.Pass("Jeton opaque (non JWT), audit des claims ignoré")
	}

	var findings []Finding
	if alg, _ := token.Header["alg"].(string); strings.EqualFold(alg, "none") {
		findings = append(findings, "Jeton non signé (alg=none)")
	}

	exp, err := claims.GetExpirationTime()
	switch {
	case err != nil:
		findings = append(findings, Finding(fmt.Sprintf("Claim exp invalide: %v", err)))
	case exp == nil:
		findings = append(findings, "Jeton sans expiration (exp absent)")
	default:
		start := now
		if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
			start = iat.Time
		}
		if lifetime := exp.Sub(start); maxLifetime > 0 && lifetime > maxLifetime {
			findings = append(findings, Finding(fmt.Sprintf("Durée de vie du jeton excessive: %s (max %s)", lifetime.Round(time.Second), maxLifetime)))
		}
	}

	if len(findings) > 0 {
		return fail(findings)
	}
	return results.Pass(fmt.Sprintf("Jeton conforme (alg=%v, expiration %s)", token.Header["alg"], exp.Format(results.TimestampLayout)))
}
