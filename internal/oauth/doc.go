// Package oauth implements the authorization-code-with-PKCE flow client:
// building authorization URLs, persisting pending sessions, exchanging codes
// for tokens, and constructing refresh requests. Request execution is
// delegated to a Transport collaborator so the core never depends on a
// specific HTTP stack.
package oauth
