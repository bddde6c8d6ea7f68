// Package access provides role-based access control for portal screens.
//
// This package implements:
//   - The closed set of portal roles (owner, admin, user)
//   - Permission requests and the named role groups built from them
//   - A pure decision function (pending, allowed, denied)
//   - A per-screen Guard that redirects exactly once per denial
//   - The screen permission table loaded from YAML
//
// Unauthenticated subjects are always denied, but the Guard leaves the
// redirect to login to the session boundary in front of it.
package access
