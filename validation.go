package netstack

import "errors"

// Validator accumulates errors found while validating frame fields so that a
// single pass over a packet can report every inconsistency at once.
// The zero value is ready to use.
type Validator struct {
	accum []error
}

// HasError returns true if any validation errors have accumulated.
func (v *Validator) HasError() bool { return len(v.accum) != 0 }

// AddError adds a non-nil error to the accumulated errors.
func (v *Validator) AddError(err error) {
	if err == nil {
		panic("error argument to AddError cannot be nil")
	}
	v.accum = append(v.accum, err)
}

// Err returns the accumulated errors joined together, or nil if none accumulated.
func (v *Validator) Err() error {
	switch len(v.accum) {
	case 0:
		return nil
	case 1:
		return v.accum[0]
	}
	return errors.Join(v.accum...)
}

// ErrPop returns the accumulated errors like [Validator.Err] and resets the
// validator for reuse.
func (v *Validator) ErrPop() error {
	err := v.Err()
	v.ResetErr()
	return err
}

// ResetErr discards accumulated errors.
func (v *Validator) ResetErr() { v.accum = v.accum[:0] }
