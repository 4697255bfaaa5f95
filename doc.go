// Package authcore is an embeddable credential-lifecycle engine: JWT
// access/refresh token issuance with rotation and family-wide reuse
// revocation, out-of-band one-time codes for identity proof, and
// single-use password-reset capabilities.
//
// The engine owns no HTTP surface and no user database. Callers inject a
// redis client for coordination state, a CredentialStore for principals,
// and delivery collaborators for the e-mail and SMS channels:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(rdb).
//		WithCredentialStore(users).
//		WithEmailSender(mailer).
//		Build()
//
// All operations are safe for concurrent use; conflicting operations on
// the same token or code are serialized by the storage layer, never in
// process.
package authcore
