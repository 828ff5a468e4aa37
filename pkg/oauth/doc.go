// Package oauth defines the shared credential model for keywarden: sessions,
// tokens, flow results, client configuration, PKCE generation, and the error
// taxonomy used across storage, the flow client, and the token refresher.
//
// The types here carry no behavior beyond pure evaluation (expiration,
// elapsed-lifetime policy) and format conversion. All coordination lives in
// internal/refresher, all persistence in internal/storage.
package oauth
