// Package identity implements a multi-factor authentication and
// token-issuance pipeline: identifier resolution across username, phone and
// email channels, password verification, purpose-scoped one-time codes,
// per-role and per-user claim aggregation, and signed JWT issuance.
//
// Flows:
//   - AuthFlows ties the components into the user-facing flows (register,
//     register by phone, login, phone login with code confirmation, forgot and
//     reset password). Each flow is stateless per invocation; failure surfaces
//     as a structured error, never a panic.
//
// Codes:
//   - CodeIssuer binds single-use verification codes to (subject, Purpose).
//     A code validates at most once; the consuming update happens in the same
//     transaction as the match.
//
// Claims:
//   - ClaimService aggregates authorization attributes for a subject: role
//     claims first, in membership-insertion order, then the subject's direct
//     claims, without deduplication across sources. Token consumers rely on
//     this ordering.
package identity
