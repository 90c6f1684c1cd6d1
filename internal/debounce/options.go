package debounce

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidOptions is wrapped by Options.Validate for every rejected field.
var ErrInvalidOptions = errors.New("invalid debounce options")

const (
	DefaultShortDelay   = 2 * time.Second
	DefaultLongDelay    = 5 * time.Second
	DefaultMaxFragments = 50
	DefaultMaxIdleAge   = 15 * time.Minute

	// DefaultDisplayName is the placeholder label channels send when the
	// platform gives no usable name. It never overwrites a real name.
	DefaultDisplayName = "User"

	minShortDelay   = 50 * time.Millisecond
	maxShortDelay   = time.Minute
	maxLongDelay    = 5 * time.Minute
	maxFragmentsCap = 1000
)

// Options configures a Scheduler.
type Options struct {
	ShortDelay         time.Duration // window after a fragment from an idle user
	LongDelay          time.Duration // window after a presence ping or while the user is acting
	MaxFragments       int           // hard cap; reaching it flushes immediately
	MaxIdleAge         time.Duration // buffers idle longer than this are reaped
	DefaultDisplayName string        // display name treated as "unset"
}

// DefaultOptions returns the stock delays and limits.
func DefaultOptions() Options {
	return Options{
		ShortDelay:         DefaultShortDelay,
		LongDelay:          DefaultLongDelay,
		MaxFragments:       DefaultMaxFragments,
		MaxIdleAge:         DefaultMaxIdleAge,
		DefaultDisplayName: DefaultDisplayName,
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ShortDelay == 0 {
		o.ShortDelay = d.ShortDelay
	}
	if o.LongDelay == 0 {
		o.LongDelay = d.LongDelay
	}
	if o.MaxFragments == 0 {
		o.MaxFragments = d.MaxFragments
	}
	if o.MaxIdleAge == 0 {
		o.MaxIdleAge = d.MaxIdleAge
	}
	if o.DefaultDisplayName == "" {
		o.DefaultDisplayName = d.DefaultDisplayName
	}
	return o
}

// Validate checks every field against its allowed range.
func (o Options) Validate() error {
	switch {
	case o.ShortDelay < minShortDelay || o.ShortDelay > maxShortDelay:
		return fmt.Errorf("%w: short delay %s outside [%s, %s]", ErrInvalidOptions, o.ShortDelay, minShortDelay, maxShortDelay)
	case o.LongDelay < o.ShortDelay || o.LongDelay > maxLongDelay:
		return fmt.Errorf("%w: long delay %s outside [%s, %s]", ErrInvalidOptions, o.LongDelay, o.ShortDelay, maxLongDelay)
	case o.MaxFragments < 1 || o.MaxFragments > maxFragmentsCap:
		return fmt.Errorf("%w: max fragments %d outside [1, %d]", ErrInvalidOptions, o.MaxFragments, maxFragmentsCap)
	case o.MaxIdleAge < o.LongDelay:
		return fmt.Errorf("%w: max idle age %s shorter than long delay %s", ErrInvalidOptions, o.MaxIdleAge, o.LongDelay)
	}
	return nil
}
