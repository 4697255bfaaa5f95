package authcore

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/hexlane/authcore/delivery"
	"github.com/hexlane/authcore/internal/stores"
	"github.com/hexlane/authcore/jwt"
	"github.com/hexlane/authcore/password"
	"github.com/hexlane/authcore/session"
)

// Engine is the credential-lifecycle core: token issuance and rotation,
// one-time-code identity proof, and password-reset capabilities. All
// coordination state lives in redis; the engine itself holds no mutable
// shared state and is safe for concurrent use.
type Engine struct {
	config   Config
	codec    *jwt.Manager
	hasher   *password.Argon2
	sessions *session.Store
	otps     *stores.OTPStore
	caps     *stores.CapabilityStore
	creds    CredentialStore
	email    delivery.EmailSender
	sms      delivery.SMSVerifier
	audit    AuditSink
	metrics  *metricsTable
}

func (e *Engine) ready() error {
	if e == nil || e.codec == nil || e.sessions == nil || e.creds == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e != nil {
		e.metrics.inc(id)
	}
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil || !e.config.Audit.Enabled {
		return
	}
	event.Timestamp = time.Now()
	e.audit.Emit(ctx, event)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// sleepEnumerationDelay adds small jitter on identity-miss paths so the
// response time does not betray whether a principal exists.
func sleepEnumerationDelay() {
	n, err := rand.Int(rand.Reader, big.NewInt(20))
	if err != nil {
		time.Sleep(20 * time.Millisecond)
		return
	}
	time.Sleep(time.Duration(10+n.Int64()) * time.Millisecond)
}
