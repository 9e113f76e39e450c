// Package dualauth implements the server-side core of a dual token
// authentication system: JWT API tokens backed by an outstanding/blacklist
// store, legacy opaque tokens kept alive during a migration window, and
// per-organization policy flags deciding which scheme is accepted.
//
// Token codec:
//   - TokenCodec signs HS256 JWTs and produces two encodings of the same
//     token. The truncated form (header.payload, signature dropped) is what
//     gets persisted; the full three-segment form is what clients hold.
//     Rehydrate rebuilds claims from a stored truncated string without
//     signature verification, which is safe only because StoredToken values
//     originate from our own storage. Wire input always goes through
//     Validate.
//
// Token lifecycle:
//   - TokenLifecycle issues refresh tokens, derives short-lived access
//     tokens, lists a user's active tokens, and revokes via a blacklist
//     table. Revoking the same token twice reports ErrAlreadyBlacklisted
//     unless WithIdempotentRevoke is set.
//
// Policies and resolution:
//   - PolicyService lazily materializes a per-organization AuthPolicy row and
//     answers view/modify permission questions.
//   - Resolver inspects a single credential and returns a Resolution whose
//     Outcome is Abstain, Reject, or Authenticate. Authenticator composes
//     resolutions over a credential chain; it, not the resolver, decides
//     finality.
package dualauth
