package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Error taxonomy shared by stores, calculations and the worker.
var (
	ErrMissingMetric        = errors.New("missing metric")
	ErrMissingDependency    = errors.New("missing dependency")
	ErrMissingConfiguration = errors.New("missing configuration")
	ErrTransientStore       = errors.New("transient store error")
	ErrDeterministicCalc    = errors.New("deterministic calculation error")
	ErrEncoding             = errors.New("encoding error")
	ErrEmpty                = errors.New("queue empty")
)

// MissingMetricError reports that no record exists for a metric instance at
// the requested point in time.
type MissingMetricError struct {
	Kind MetricKind
	Key  EntityKey
	AsOf *time.Time
}

func (e *MissingMetricError) Error() string {
	if e.AsOf != nil {
		return fmt.Sprintf("missing metric %s(%s) as of %s", e.Kind, e.Key, e.AsOf.Format(time.RFC3339Nano))
	}
	return fmt.Sprintf("missing metric %s(%s)", e.Kind, e.Key)
}

// Is matches ErrMissingMetric.
func (e *MissingMetricError) Is(target error) bool { return target == ErrMissingMetric }

// Job returns the calculation that would produce the missing record.
func (e *MissingMetricError) Job() CalculationJob { return NewJob(e.Kind, e.Key) }

// MissingMetric builds a MissingMetricError.
func MissingMetric(kind MetricKind, key EntityKey, asOf *time.Time) error {
	return &MissingMetricError{Kind: kind, Key: key, AsOf: asOf}
}

// MissingDependencyError reports a domain entity that could not be found.
type MissingDependencyError struct {
	Entity string
	ID     uuid.UUID
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("missing dependency: %s %s", e.Entity, e.ID)
}

// Is matches ErrMissingDependency.
func (e *MissingDependencyError) Is(target error) bool { return target == ErrMissingDependency }

// MissingDependency builds a MissingDependencyError.
func MissingDependency(entity string, id uuid.UUID) error {
	return &MissingDependencyError{Entity: entity, ID: id}
}

// MissingConfiguration reports an absent label with no application default.
func MissingConfiguration(label string, tenantID uuid.UUID) error {
	return fmt.Errorf("%w: %s for tenant %s", ErrMissingConfiguration, label, tenantID)
}

// Transient marks err as a retryable I/O failure. A nil err stays nil.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransientStore) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransientStore, err)
}

// Deterministicf reports a calculation failure that will not succeed on retry.
func Deterministicf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDeterministicCalc, fmt.Sprintf(format, args...))
}

// Encodingf reports an undecodable job payload.
func Encodingf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrEncoding, fmt.Sprintf(format, args...))
}
