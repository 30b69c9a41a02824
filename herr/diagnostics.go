package herr

import "go.uber.org/multierr"

// Diagnostics accumulates recoverable errors across a compile-side pass
// (C2 translation, C3 emission, C4 packaging) so the pass can report every
// problem it found instead of stopping at the first one. A phase succeeds
// iff Err() returns nil, per spec.md §7's propagation policy.
type Diagnostics struct {
	err error
}

// Record appends an error to the diagnostic list. A nil error is a no-op.
func (d *Diagnostics) Record(err error) {
	if err == nil {
		return
	}
	d.err = multierr.Append(d.err, err)
}

// Err returns the combined error, or nil if nothing was recorded.
func (d *Diagnostics) Err() error {
	return d.err
}

// Errors returns the individual recorded errors in recording order.
func (d *Diagnostics) Errors() []error {
	return multierr.Errors(d.err)
}

// Len reports how many errors have been recorded.
func (d *Diagnostics) Len() int {
	return len(multierr.Errors(d.err))
}
