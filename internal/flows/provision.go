package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGate/credential"
	"github.com/MrEthical07/goGate/passkey"
)

// ProvisionDeps captures principal provisioning dependencies.
type ProvisionDeps struct {
	Now        func() time.Time
	NewID      func() string
	HashSecret func(context.Context, string) (string, error)
	EnrollTOTP func(account string) (passkey.Enrollment, error)
	EnrollPIN  func(context.Context, string) (passkey.Enrollment, error)
	Create     func(context.Context, *credential.Principal) error

	Observability
	Metric int
	Event  string
}

// ProvisionInput describes a principal to create.
type ProvisionInput struct {
	Identifier string
	Label      string
	Secret     string
	// PIN selects static PIN mode when non-empty; otherwise a TOTP secret is generated.
	PIN string
}

// ProvisionResult returns the stored principal and its passkey enrollment.
type ProvisionResult struct {
	Principal  *credential.Principal
	Enrollment passkey.Enrollment
}

// RunProvision hashes the secret, enrolls a passkey and stores the principal.
func RunProvision(ctx context.Context, in ProvisionInput, deps ProvisionDeps) (ProvisionResult, error) {
	deps.Observability.defaults()
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil || deps.HashSecret == nil || deps.EnrollTOTP == nil || deps.Create == nil {
		return ProvisionResult{}, errors.New("provision flow not wired")
	}
	if in.Identifier == "" {
		return ProvisionResult{}, errors.New("identifier is required")
	}

	hash, err := deps.HashSecret(ctx, in.Secret)
	if err != nil {
		return ProvisionResult{}, err
	}

	var enr passkey.Enrollment
	if in.PIN != "" {
		if deps.EnrollPIN == nil {
			return ProvisionResult{}, errors.New("pin enrollment not wired")
		}
		enr, err = deps.EnrollPIN(ctx, in.PIN)
	} else {
		enr, err = deps.EnrollTOTP(in.Identifier)
	}
	if err != nil {
		return ProvisionResult{}, err
	}

	label := in.Label
	if label == "" {
		label = in.Identifier
	}
	p := &credential.Principal{
		ID:            deps.NewID(),
		Identifier:    in.Identifier,
		Label:         label,
		SecretHash:    hash,
		PasskeyKind:   enr.Kind,
		PasskeySecret: enr.Secret,
		CreatedAt:     deps.Now(),
	}
	if err := deps.Create(ctx, p); err != nil {
		return ProvisionResult{}, err
	}

	deps.MetricInc(deps.Metric)
	deps.EmitAudit(ctx, deps.Event, true, p.ID, "", nil, nil)
	return ProvisionResult{Principal: p, Enrollment: enr}, nil
}
