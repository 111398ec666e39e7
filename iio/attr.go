package iio

import (
	"fmt"
	"sort"
	"strconv"
)

// Registry is a named attribute namespace of a device or channel. The set of
// names is fixed when the registry is built; values are always read from the
// hardware.
type Registry struct {
	owner string
	io    AttrIO
	names map[string]struct{}
}

func newRegistry(owner string, io AttrIO) *Registry {
	r := &Registry{owner: owner, io: io, names: make(map[string]struct{})}
	if io == nil {
		return r
	}
	for _, n := range io.Names() {
		r.names[n] = struct{}{}
	}
	return r
}

// Names returns the registered attribute names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.names))
	for n := range r.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.names[name]
	return ok
}

func (r *Registry) lookup(name string) error {
	if !r.Has(name) {
		return fmt.Errorf("%s: attribute %q: %w", r.owner, name, ErrNotFound)
	}
	return nil
}

// Get returns the raw string value of name.
func (r *Registry) Get(name string) (string, error) {
	if err := r.lookup(name); err != nil {
		return "", err
	}
	v, err := r.io.Read(name)
	if err != nil {
		return "", fmt.Errorf("%s: read %q: %w", r.owner, name, err)
	}
	return v, nil
}

// Set writes value to name. A non-positive hardware count is a rejection.
func (r *Registry) Set(name, value string) error {
	if err := r.lookup(name); err != nil {
		return err
	}
	n, err := r.io.Write(name, value)
	if err != nil {
		return fmt.Errorf("%s: write %q: %w", r.owner, name, err)
	}
	if n <= 0 {
		return fmt.Errorf("%s: write %q=%q returned %d: %w", r.owner, name, value, n, ErrWriteRejected)
	}
	return nil
}

// Int reads name and parses its leading digits.
func (r *Registry) Int(name string) (int64, error) {
	v, err := r.Get(name)
	if err != nil {
		return 0, err
	}
	n, err := ParseInt(v)
	if err != nil {
		return 0, fmt.Errorf("%s: attribute %q: %w", r.owner, name, err)
	}
	return n, nil
}

// Float reads name and parses its leading digits and decimal point.
func (r *Registry) Float(name string) (float64, error) {
	v, err := r.Get(name)
	if err != nil {
		return 0, err
	}
	f, err := ParseFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%s: attribute %q: %w", r.owner, name, err)
	}
	return f, nil
}

// SetInt writes v as a plain decimal.
func (r *Registry) SetInt(name string, v int64) error {
	return r.Set(name, strconv.FormatInt(v, 10))
}

// SetFloat writes v with one fractional digit.
func (r *Registry) SetFloat(name string, v float64) error {
	return r.Set(name, fmt.Sprintf("%.1f", v))
}

// SetBool writes "1" or "0".
func (r *Registry) SetBool(name string, v bool) error {
	if v {
		return r.Set(name, "1")
	}
	return r.Set(name, "0")
}

// ParseInt returns the value of the leading run of ASCII digits in s.
// Trailing text such as units is ignored.
func ParseInt(s string) (int64, error) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, fmt.Errorf("no digits in %q: %w", s, ErrParse)
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, ErrParse)
	}
	return n, nil
}

// ParseFloat returns the value of the leading run of digits in s, which may
// contain one decimal point. A second point ends the run.
func ParseFloat(s string) (float64, error) {
	end, dot := 0, false
	for end < len(s) {
		if s[end] == '.' {
			if dot {
				break
			}
			dot = true
		} else if s[end] < '0' || s[end] > '9' {
			break
		}
		end++
	}
	if end == 0 {
		return 0, fmt.Errorf("no digits in %q: %w", s, ErrParse)
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, ErrParse)
	}
	return f, nil
}
