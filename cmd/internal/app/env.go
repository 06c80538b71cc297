package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is prepended to every configuration key read from the environment.
const EnvPrefix = "POINTY_"

// envOverlay reads POINTY_-prefixed variables over existing values. Unset or blank
// variables leave the destination untouched; values that do not parse are collected
// so LoadConfig fails instead of silently running with the default.
type envOverlay struct {
	lookup func(string) (string, bool)
	errs   []error
}

func newEnvOverlay() *envOverlay {
	return &envOverlay{lookup: os.LookupEnv}
}

// value returns the trimmed value of POINTY_<key> and whether it is set.
func (o *envOverlay) value(key string) (name, v string, ok bool) {
	name = EnvPrefix + key
	v, ok = o.lookup(name)
	v = strings.TrimSpace(v)
	return name, v, ok && v != ""
}

func (o *envOverlay) fail(name, v string, err error) {
	o.errs = append(o.errs, fmt.Errorf("%s=%q: %w", name, v, err))
}

func (o *envOverlay) String(key string, dst *string) {
	if _, v, ok := o.value(key); ok {
		*dst = v
	}
}

// Duration accepts positive Go durations ("30s", "1m").
func (o *envOverlay) Duration(key string, dst *time.Duration) {
	overlay(o, key, dst, func(v string) (time.Duration, error) {
		d, err := time.ParseDuration(v)
		if err == nil && d <= 0 {
			err = errors.New("must be positive")
		}
		return d, err
	})
}

// Int64 accepts positive sizes.
func (o *envOverlay) Int64(key string, dst *int64) {
	overlay(o, key, dst, func(v string) (int64, error) {
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil && n <= 0 {
			err = errors.New("must be positive")
		}
		return n, err
	})
}

// Int32 accepts non-negative counts.
func (o *envOverlay) Int32(key string, dst *int32) {
	overlay(o, key, dst, func(v string) (int32, error) {
		n, err := strconv.ParseInt(v, 10, 32)
		if err == nil && n < 0 {
			err = errors.New("must not be negative")
		}
		return int32(n), err
	})
}

func (o *envOverlay) Err() error {
	return errors.Join(o.errs...)
}

func overlay[T any](o *envOverlay, key string, dst *T, parse func(string) (T, error)) {
	name, v, ok := o.value(key)
	if !ok {
		return
	}
	got, err := parse(v)
	if err != nil {
		o.fail(name, v, err)
		return
	}
	*dst = got
}
