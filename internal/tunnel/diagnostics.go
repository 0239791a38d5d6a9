package tunnel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tunnelcore/internal/store"
)

const (
	diagnosticsKey = "tunnel.runtime.lastStartError"

	DefaultDiagnosticsMaxAge = 45 * time.Second
)

// StartError is a start failure with a stable domain and code.
type StartError struct {
	Domain string
	Code   int
	Err    error
}

func (e *StartError) Error() string { return e.Err.Error() }
func (e *StartError) Unwrap() error { return e.Err }

type startErrorRecord struct {
	Message   string    `json:"message"`
	Domain    string    `json:"domain,omitempty"`
	Code      *int      `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Diagnostics keeps the most recent tunnel start error so a later status
// query can explain why the tunnel is down.
type Diagnostics struct {
	records store.Records
	maxAge  time.Duration
	now     func() time.Time
}

func NewDiagnostics(records store.Records, maxAge time.Duration) *Diagnostics {
	if maxAge <= 0 {
		maxAge = DefaultDiagnosticsMaxAge
	}
	return &Diagnostics{records: records, maxAge: maxAge, now: time.Now}
}

func (d *Diagnostics) RecordStartError(ctx context.Context, err error) error {
	rec := startErrorRecord{Message: err.Error(), Timestamp: d.now()}
	var se *StartError
	if errors.As(err, &se) {
		rec.Domain = se.Domain
		code := se.Code
		rec.Code = &code
	}
	data, mErr := json.Marshal(rec)
	if mErr != nil {
		return mErr
	}
	return d.records.Save(ctx, diagnosticsKey, data)
}

func (d *Diagnostics) Clear(ctx context.Context) error {
	return d.records.Save(ctx, diagnosticsKey, nil)
}

// LastStartError returns the recorded error formatted as "message [domain:code]",
// or false when there is none or it is older than the max age.
func (d *Diagnostics) LastStartError(ctx context.Context) (string, bool, error) {
	data, ok, err := d.records.Load(ctx, diagnosticsKey)
	if err != nil || !ok || len(data) == 0 {
		return "", false, err
	}

	var rec startErrorRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", false, fmt.Errorf("failed to decode diagnostics: %w", err)
	}
	if rec.Message == "" {
		return "", false, nil
	}
	if !rec.Timestamp.IsZero() && d.now().Sub(rec.Timestamp) > d.maxAge {
		return "", false, nil
	}
	if rec.Domain == "" || rec.Code == nil {
		return rec.Message, true, nil
	}
	return fmt.Sprintf("%s [%s:%d]", rec.Message, rec.Domain, *rec.Code), true, nil
}
