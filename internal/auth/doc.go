// Package auth provides optional bearer-token protection for the HTTP transports.
//
// # Authentication Methods
//
//   - JWT Tokens: HS256 tokens signed with auth.jwt_secret. The "sub" claim becomes
//     the caller's identity. Mint one with `orders-mcp token <subject>`.
//
//   - API Keys: long-lived keys listed in auth.api_keys as bcrypt hashes
//     (`orders-mcp token --hash-key <key>` prints one).
//
// Both may be configured at once; the middleware tries JWT first.
//
// # Transport
//
// Clients send `Authorization: Bearer <token>`. SSE clients that cannot set
// headers may pass `?token=<token>` instead. The stdio transport is never
// authenticated, and /healthz, /readyz and /metrics stay open.
package auth
