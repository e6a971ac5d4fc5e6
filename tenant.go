package firmauth

// Tenant and role checks used by the HTTP guard. Claims are the only
// input: role and firm scope always come from the validated token,
// never from request bodies or query parameters.

// AuthorizeRole allows the request when the claims role matches one of
// the allowed roles. An empty allow-list means any valid role passes.
func AuthorizeRole(claims AuthClaims, allowed ...Role) error {
	if claims == nil {
		return ErrUnauthenticated
	}

	role := claims.Role()
	if !role.IsValid() {
		return forbiddenWith(map[string]any{"role": role})
	}

	if len(allowed) == 0 {
		return nil
	}

	for _, r := range allowed {
		if claims.HasRole(r) {
			return nil
		}
	}

	return forbiddenWith(map[string]any{"role": role})
}

// AuthorizeTenant allows access to resources of the given firm. Every
// role is confined to the firm in its claims; a token minted for one
// firm never reaches another firm's resources. Platform operations that
// span firms go through dedicated surfaces, not a claims bypass.
func AuthorizeTenant(claims AuthClaims, firmID string) error {
	if claims == nil {
		return ErrUnauthenticated
	}

	if firmID == "" || claims.FirmID() != firmID {
		return forbiddenWith(map[string]any{"firm_id": firmID})
	}

	return nil
}

// AuthorizeClient allows access to resources of the given client.
// Client-scoped roles (customers) may only reach their own client;
// staff roles fall through to the tenant check done elsewhere.
func AuthorizeClient(claims AuthClaims, clientID string) error {
	if claims == nil {
		return ErrUnauthenticated
	}

	if !claims.Role().IsClientScoped() {
		return nil
	}

	if clientID == "" || claims.ClientID() != clientID {
		return forbiddenWith(map[string]any{"client_id": clientID})
	}

	return nil
}

func forbiddenWith(meta map[string]any) error {
	return sentinelWith(ErrForbidden, meta)
}
