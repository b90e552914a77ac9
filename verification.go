package artisan

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// Outcome is the result of an identity check.
type Outcome string

const (
	OutcomeVerified Outcome = "verified"
	OutcomeFailed   Outcome = "failed"
)

// IDStatus maps the outcome to the KYC sub status.
func (o Outcome) IDStatus() IDStatus {
	if o == OutcomeVerified {
		return IDStatusVerified
	}
	return IDStatusFailed
}

func (o Outcome) Valid() bool {
	return o == OutcomeVerified || o == OutcomeFailed
}

// ForceOutcome lets admins and tests pin the result of a verification call.
// The wire values match the admin client: "success" and "fail".
type ForceOutcome string

const (
	ForceNone    ForceOutcome = ""
	ForceSuccess ForceOutcome = "success"
	ForceFail    ForceOutcome = "fail"
)

// Outcome returns the pinned outcome and whether one is set.
func (f ForceOutcome) Outcome() (Outcome, bool) {
	switch f {
	case ForceSuccess:
		return OutcomeVerified, true
	case ForceFail:
		return OutcomeFailed, true
	}
	return "", false
}

func (f ForceOutcome) Valid() bool {
	return f == ForceNone || f == ForceSuccess || f == ForceFail
}

// VerificationOracle decides whether an artisan's identity document passes.
type VerificationOracle interface {
	Verify(ctx context.Context, artisan *Artisan) (Outcome, error)
}

// OracleFunc adapts a function to VerificationOracle.
type OracleFunc func(ctx context.Context, artisan *Artisan) (Outcome, error)

func (f OracleFunc) Verify(ctx context.Context, artisan *Artisan) (Outcome, error) {
	return f(ctx, artisan)
}

// ForcedOracle always returns the same outcome.
type ForcedOracle Outcome

func (o ForcedOracle) Verify(ctx context.Context, _ *Artisan) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !Outcome(o).Valid() {
		return "", ErrInvalidOutcome
	}
	return Outcome(o), nil
}

// FixedOracle pins outcomes per artisan id, delegating unknown ids to Fallback.
// A nil Fallback resolves unknown ids as verified.
type FixedOracle struct {
	Outcomes map[string]Outcome
	Fallback VerificationOracle
}

func (o FixedOracle) Verify(ctx context.Context, artisan *Artisan) (Outcome, error) {
	if artisan != nil {
		if outcome, ok := o.Outcomes[artisan.ID]; ok {
			return ForcedOracle(outcome).Verify(ctx, artisan)
		}
	}
	if o.Fallback != nil {
		return o.Fallback.Verify(ctx, artisan)
	}
	return ForcedOracle(OutcomeVerified).Verify(ctx, artisan)
}

// DefaultPassRate is the share of random checks that pass.
const DefaultPassRate = 0.75

// RandomOracle passes a check with probability PassRate.
type RandomOracle struct {
	mu       sync.Mutex
	passRate float64
	rnd      *rand.Rand
	delay    time.Duration
}

// RandomOracleOption customizes a RandomOracle.
type RandomOracleOption func(*RandomOracle)

// WithPassRate sets the probability, clamped to [0, 1].
func WithPassRate(rate float64) RandomOracleOption {
	return func(o *RandomOracle) {
		switch {
		case rate < 0:
			rate = 0
		case rate > 1:
			rate = 1
		}
		o.passRate = rate
	}
}

// WithRandSource makes outcomes reproducible.
func WithRandSource(src rand.Source) RandomOracleOption {
	return func(o *RandomOracle) {
		if src != nil {
			o.rnd = rand.New(src)
		}
	}
}

// WithSimulatedDelay makes each check wait before answering.
func WithSimulatedDelay(d time.Duration) RandomOracleOption {
	return func(o *RandomOracle) {
		o.delay = d
	}
}

func NewRandomOracle(opts ...RandomOracleOption) *RandomOracle {
	o := &RandomOracle{
		passRate: DefaultPassRate,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

func (o *RandomOracle) Verify(ctx context.Context, _ *Artisan) (Outcome, error) {
	if o.delay > 0 {
		timer := time.NewTimer(o.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	o.mu.Lock()
	roll := o.rnd.Float64()
	o.mu.Unlock()

	if roll < o.passRate {
		return OutcomeVerified, nil
	}
	return OutcomeFailed, nil
}

// WithOracleTimeout bounds every check. A check that runs past the deadline
// resolves as failed instead of returning an error.
func WithOracleTimeout(oracle VerificationOracle, timeout time.Duration, logger Logger) VerificationOracle {
	if timeout <= 0 || oracle == nil {
		return oracle
	}
	if logger == nil {
		logger = defLogger{}
	}
	return OracleFunc(func(ctx context.Context, artisan *Artisan) (Outcome, error) {
		tctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		outcome, err := oracle.Verify(tctx, artisan)
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			logger.Warn("%v: artisan=%s timeout=%s", ErrVerificationTimeout, artisanID(artisan), timeout)
			return OutcomeFailed, nil
		}
		return outcome, err
	})
}

// resolveOutcome applies the force override before consulting the oracle.
func resolveOutcome(ctx context.Context, oracle VerificationOracle, artisan *Artisan, force ForceOutcome) (Outcome, error) {
	if outcome, ok := force.Outcome(); ok {
		return outcome, nil
	}
	if !force.Valid() {
		return "", ErrInvalidOutcome
	}
	if oracle == nil {
		oracle = NewRandomOracle()
	}
	outcome, err := oracle.Verify(ctx, artisan)
	if err != nil {
		return "", err
	}
	if !outcome.Valid() {
		return "", ErrInvalidOutcome
	}
	return outcome, nil
}

func artisanID(a *Artisan) string {
	if a == nil {
		return ""
	}
	return a.ID
}
