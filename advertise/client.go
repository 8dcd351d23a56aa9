package advertise

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// DefaultMaxResults is the cap used by callers that want the whole population
// behind a key rather than a sample.
const DefaultMaxResults = 10 * 1024 * 1024

// Validation errors.
var (
	// ErrEmptyKey indicates a lookup or announce was attempted without a key.
	ErrEmptyKey = errors.New("advertise key is empty")

	// ErrEmptyValue indicates an announce was attempted without a value.
	ErrEmptyValue = errors.New("advertise value is empty")

	// ErrInvalidMaxResults indicates a lookup asked for zero or fewer results.
	ErrInvalidMaxResults = errors.New("maxResults must be positive")

	// ErrInvalidTTL indicates an announce TTL that is zero, negative, or above the backend limit.
	ErrInvalidTTL = errors.New("invalid announce TTL")

	// ErrNotConnected indicates the client was used before Connect or after Close.
	ErrNotConnected = errors.New("advertise client not connected")

	// ErrMalformedRecord indicates the substrate returned a record that could not be decoded.
	ErrMalformedRecord = errors.New("malformed advertise record")
)

// Client looks up and announces values on an advertisement substrate.
//
// Lookup returns at most maxResults values. A result of exactly maxResults
// values may be truncated. Lookup never returns a partial answer together with
// a nil error: every failure is reported as a *LookupFailure.
//
// Announce publishes value under key; the entry expires after ttl. There is no
// retraction, entries simply age out.
type Client interface {
	Lookup(ctx context.Context, key string, maxResults int) ([]string, error)
	Announce(ctx context.Context, key, value string, ttl time.Duration) error
}

// LookupFailure reports that the substrate did not answer a lookup, answered
// with a transport or protocol error, timed out, or returned a malformed record.
type LookupFailure struct {
	Key   string
	Cause error
}

func (e *LookupFailure) Error() string {
	return fmt.Sprintf("advertise lookup of %q failed: %v", shortKey(e.Key), e.Cause)
}

func (e *LookupFailure) Unwrap() error {
	return e.Cause
}

// AnnounceFailure reports that the substrate did not accept an announcement.
type AnnounceFailure struct {
	Key   string
	Cause error
}

func (e *AnnounceFailure) Error() string {
	return fmt.Sprintf("advertise announce under %q failed: %v", shortKey(e.Key), e.Cause)
}

func (e *AnnounceFailure) Unwrap() error {
	return e.Cause
}

// AsLookupFailure returns err as a *LookupFailure for key, wrapping it if it is
// not one already. A nil err stays nil.
func AsLookupFailure(key string, err error) error {
	if err == nil {
		return nil
	}
	var lf *LookupFailure
	if errors.As(err, &lf) {
		return err
	}
	return &LookupFailure{Key: key, Cause: err}
}

func validateLookup(key string, maxResults int) error {
	if key == "" {
		return ErrEmptyKey
	}
	if maxResults <= 0 {
		return ErrInvalidMaxResults
	}
	return nil
}

func validateAnnounce(key, value string, ttl, maxTTL time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if value == "" {
		return ErrEmptyValue
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTTL, ttl)
	}
	if maxTTL > 0 && ttl > maxTTL {
		return fmt.Errorf("%w: %v exceeds limit %v", ErrInvalidTTL, ttl, maxTTL)
	}
	return nil
}

// keyToken encodes an arbitrary key as a single KV token / path segment.
func keyToken(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// valueToken addresses a value inside a key.
func valueToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// shortKey keeps long public keys readable in error messages.
func shortKey(key string) string {
	if len(key) <= 16 {
		return key
	}
	return key[:12] + "..."
}
