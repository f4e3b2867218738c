// Package trust provides two coupled authorization primitives for backends
// that need to approve sensitive actions without an active server session.
//
// Cross-device approval:
//   - AuthRequest models one round of the approval protocol: a new device
//     asks for login approval, a trusted device answers. Requests carry a
//     secure random access code for out-of-band comparison and stay live for
//     a fixed 15 minute window.
//   - AuthRequestFlow orchestrates the handshake (Initiate, Poll, Respond,
//     Authenticate) over an injected store. Respond and Authenticate rely on
//     the store's compare-and-set updates, so concurrent approvals are
//     linearized: the first to commit wins, everyone else gets a conflict.
//
// Bound tokens:
//   - Tokenable is a claim payload (an invited organization membership, a
//     verified email address) with a kind tag, an expiry policy, and an
//     identity binding predicate.
//   - TokenProtector signs Tokenables into opaque, expiring, kind-tagged
//     tokens and verifies them back, failing closed on any tampering.
//   - RedemptionGuard runs the checks a consumer performs before trusting a
//     redeemed token: unprotect, kind, expiry, and identity binding, plus
//     the open/closed registration gate. RegisterUserHandler exercises the
//     guard for the three registration paths.
package trust
