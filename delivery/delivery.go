// Package delivery abstracts the out-of-band channels used to hand
// one-time codes to users. Implementations are selected once at engine
// construction; the engine never branches on provider specifics.
package delivery

import "context"

// EmailSender delivers a locally generated code to a mailbox.
type EmailSender interface {
	SendCode(ctx context.Context, to, code string) error
}

// SMSVerifier is a provider-verified channel: the provider generates,
// delivers, and checks the code itself (Twilio Verify shape).
type SMSVerifier interface {
	StartChallenge(ctx context.Context, number string) error
	CheckChallenge(ctx context.Context, number, code string) (bool, error)
}
