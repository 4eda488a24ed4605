package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"txstatus/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PendingSource exposes the current pending block. It may wait for a
// snapshot to become available and reports false when there is none.
type PendingSource interface {
	PendingBlock(ctx context.Context) (domain.PendingBlock, bool)
}

// LedgerReader runs queries inside one ledger connection and transaction.
type LedgerReader interface {
	BlockContaining(ctx context.Context, hash domain.TransactionHash) (domain.BlockReference, bool, error)
	IsL1Accepted(ctx context.Context, block domain.BlockReference) (bool, error)
}

// Ledger opens a read scope for the duration of fn. The connection and the
// transaction are released when fn returns.
type Ledger interface {
	View(ctx context.Context, fn func(LedgerReader) error) error
}

type TransactionGateway interface {
	Transaction(ctx context.Context, hash domain.TransactionHash) (domain.GatewayTransaction, error)
}

type ResolutionObserver interface {
	OnResolved(stage Stage, status domain.TransactionStatus, elapsed time.Duration)
	OnResolutionFailed(stage Stage, err error, elapsed time.Duration)
}

type Stage string

const (
	StagePending Stage = "pending"
	StageLedger  Stage = "ledger"
	StageGateway Stage = "gateway"
)

var (
	ErrInternal             = errors.New("internal error")
	ErrLedgerConnection     = errors.New("ledger connection failed")
	ErrLedgerTransaction    = errors.New("ledger transaction failed")
	ErrLedgerQuery          = errors.New("ledger query failed")
	ErrUnknownGatewayStatus = errors.New("unknown gateway status")
)

// ResolutionError is returned for every failed resolution. It matches
// ErrInternal with errors.Is and records the stage that failed.
type ResolutionError struct {
	Stage Stage
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

func (e *ResolutionError) Is(target error) bool {
	return target == ErrInternal
}

type failurePolicy int

const (
	// failOpen treats a probe error as "no answer" and moves on.
	failOpen failurePolicy = iota
	// failClosed ends the resolution with the probe error.
	failClosed
)

type probe struct {
	stage  Stage
	policy failurePolicy
	run    func(ctx context.Context, hash domain.TransactionHash) (domain.TransactionStatus, bool, error)
}

// Resolver answers the status of a transaction by asking, in order, the
// pending block, the local ledger and the remote gateway. The first source
// with an answer wins.
type Resolver struct {
	pending  PendingSource
	ledger   Ledger
	gateway  TransactionGateway
	observer ResolutionObserver
	probes   []probe
}

// NewResolver builds a resolver. pending and observer may be nil; a nil
// pending source skips the pending stage entirely.
func NewResolver(pending PendingSource, ledger Ledger, gateway TransactionGateway, observer ResolutionObserver) (*Resolver, error) {
	if ledger == nil || gateway == nil {
		return nil, errors.New("resolver dependencies must not be nil")
	}
	r := &Resolver{pending: pending, ledger: ledger, gateway: gateway, observer: observer}
	if pending != nil {
		r.probes = append(r.probes, probe{stage: StagePending, policy: failOpen, run: r.probePending})
	}
	r.probes = append(r.probes,
		probe{stage: StageLedger, policy: failClosed, run: r.probeLedger},
		probe{stage: StageGateway, policy: failClosed, run: r.probeGateway},
	)
	return r, nil
}

func (r *Resolver) Resolve(ctx context.Context, hash domain.TransactionHash) (domain.TransactionStatus, error) {
	ctx, span := otel.Tracer("txstatus/resolver").Start(ctx, "resolver.Resolve",
		trace.WithAttributes(attribute.String("tx.hash", hash.String())),
	)
	defer span.End()
	start := time.Now()

	for _, p := range r.probes {
		status, ok, err := p.run(ctx, hash)
		if err != nil {
			if p.policy == failOpen {
				slog.Debug("status probe degraded", "stage", p.stage, "tx_hash", hash.String(), "err", err)
				continue
			}
			return "", r.fail(span, p.stage, hash, err, time.Since(start))
		}
		if !ok {
			continue
		}
		span.SetAttributes(
			attribute.String("resolution.stage", string(p.stage)),
			attribute.String("tx.status", string(status)),
		)
		if r.observer != nil {
			r.observer.OnResolved(p.stage, status, time.Since(start))
		}
		return status, nil
	}

	return "", r.fail(span, StageGateway, hash, errors.New("no source produced a status"), time.Since(start))
}

func (r *Resolver) fail(span trace.Span, stage Stage, hash domain.TransactionHash, err error, elapsed time.Duration) error {
	resErr := &ResolutionError{Stage: stage, Err: err}
	span.RecordError(resErr)
	span.SetStatus(codes.Error, resErr.Error())
	span.SetAttributes(attribute.String("resolution.stage", string(stage)))
	slog.Warn("transaction status resolution failed", "stage", stage, "tx_hash", hash.String(), "err", err)
	if r.observer != nil {
		r.observer.OnResolutionFailed(stage, resErr, elapsed)
	}
	return resErr
}

func (r *Resolver) probePending(ctx context.Context, hash domain.TransactionHash) (domain.TransactionStatus, bool, error) {
	block, ok := r.pending.PendingBlock(ctx)
	if !ok || !block.Contains(hash) {
		return "", false, nil
	}
	return domain.StatusPending, true, nil
}

func (r *Resolver) probeLedger(ctx context.Context, hash domain.TransactionHash) (domain.TransactionStatus, bool, error) {
	var (
		status domain.TransactionStatus
		found  bool
	)
	err := r.ledger.View(ctx, func(tx LedgerReader) error {
		block, ok, err := tx.BlockContaining(ctx, hash)
		if err != nil {
			return fmt.Errorf("fetching transaction block: %w", err)
		}
		if !ok {
			return nil
		}
		l1Accepted, err := tx.IsL1Accepted(ctx, block)
		if err != nil {
			return fmt.Errorf("querying block %d status: %w", block.Number, err)
		}
		found = true
		if l1Accepted {
			status = domain.StatusAcceptedOnL1
		} else {
			status = domain.StatusAcceptedOnL2
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return status, found, nil
}

func (r *Resolver) probeGateway(ctx context.Context, hash domain.TransactionHash) (domain.TransactionStatus, bool, error) {
	tx, err := r.gateway.Transaction(ctx, hash)
	if err != nil {
		return "", false, fmt.Errorf("fetching transaction from gateway: %w", err)
	}
	status, err := MapGatewayStatus(tx.Status)
	if err != nil {
		return "", false, err
	}
	return status, true, nil
}

// MapGatewayStatus converts a gateway status into a TransactionStatus
// without reinterpreting it.
func MapGatewayStatus(status domain.GatewayStatus) (domain.TransactionStatus, error) {
	switch status {
	case domain.GatewayNotReceived:
		return domain.StatusNotReceived, nil
	case domain.GatewayReceived:
		return domain.StatusReceived, nil
	case domain.GatewayPending:
		return domain.StatusPending, nil
	case domain.GatewayRejected:
		return domain.StatusRejected, nil
	case domain.GatewayAcceptedOnL1:
		return domain.StatusAcceptedOnL1, nil
	case domain.GatewayAcceptedOnL2:
		return domain.StatusAcceptedOnL2, nil
	case domain.GatewayReverted:
		return domain.StatusReverted, nil
	case domain.GatewayAborted:
		return domain.StatusAborted, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownGatewayStatus, string(status))
	}
}
