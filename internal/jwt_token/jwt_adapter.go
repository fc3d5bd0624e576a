package jwttoken

import (
	authmw "opsdesk/pkg/platform/middleware/auth"
)

// Validator exposes the service to the bearer-token middleware.
func (s *JWTService) Validator() authmw.JWTValidator {
	return authmw.ValidatorFunc(func(token string) (*authmw.JWTClaims, error) {
		claims, err := s.ValidateToken(token)
		if err != nil {
			return nil, err
		}
		return claims.forMiddleware(), nil
	})
}

func (c *Claims) forMiddleware() *authmw.JWTClaims {
	perms := make([]string, len(c.Permissions))
	copy(perms, c.Permissions)
	return &authmw.JWTClaims{
		UserID:      c.UserID,
		TenantID:    c.TenantID,
		Role:        c.Role,
		Permissions: perms,
		JTI:         c.ID,
	}
}
