package platform

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorKind is the machine-checkable classification carried by every
// error the core surfaces. The human-readable message stays intact;
// callers dispatch on the kind, never on the text.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindTransientNetwork errors are worth retrying against the same
	// request: server unavailability, stale contract caches.
	KindTransientNetwork
	// KindFatalProtocol errors are configuration-level and never
	// retried, e.g. the document type lacks the contested index.
	KindFatalProtocol
	// KindProofVerification marks a failed cryptographic proof check;
	// an audit record is persisted before the error propagates.
	KindProofVerification
	// KindValidation errors are user-correctable, e.g. a scheduled
	// time past the contest deadline.
	KindValidation
	// KindMissingKey means the voter has no delegated voting key. It
	// fails one voter, never a whole batch.
	KindMissingKey
	// KindStoreIO marks a persistence failure, fatal for the call.
	KindStoreIO
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransientNetwork:
		return "transient network"
	case KindFatalProtocol:
		return "fatal protocol"
	case KindProofVerification:
		return "proof verification"
	case KindValidation:
		return "validation"
	case KindMissingKey:
		return "missing key material"
	case KindStoreIO:
		return "store io"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind  ErrorKind
	Msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Msg + ": " + e.cause.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Cause() error { return e.cause }

func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func WrapError(kind ErrorKind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, cause: err}
}

// KindOf unwraps err looking for a platform Error and returns its
// kind, or KindUnknown.
func KindOf(err error) ErrorKind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindUnknown
}

func IsTransient(err error) bool {
	return KindOf(err) == KindTransientNetwork
}

// Legacy message patterns from platform endpoints that only surface
// text. Classify maps them onto kinds so nothing above this package
// inspects error strings.
var transientPatterns = []string{
	"try another server",
	"contract not found when querying from value with contract info",
}

// Classify normalizes an error from a platform call. Errors that
// already carry a kind pass through; a ProofError cause marks the
// result as a proof-verification failure; otherwise the legacy
// patterns decide between transient and fatal.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	var proofErr *ProofError
	if errors.As(err, &proofErr) {
		return WrapError(KindProofVerification, err, "proof verification failed")
	}
	msg := err.Error()
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return WrapError(KindTransientNetwork, err, "platform temporarily unavailable")
		}
	}
	return WrapError(KindFatalProtocol, err, "platform query failed")
}

// ProofError carries the raw material of a failed proof verification
// so it can be audited offline.
type ProofError struct {
	RequestType    string
	RequestBytes   []byte
	PathQueryBytes []byte
	Height         uint64
	TimeMS         uint64
	ProofBytes     []byte
	Cause          error
}

func (e *ProofError) Error() string {
	return fmt.Sprintf("proof verification failed for %s at height %d: %v", e.RequestType, e.Height, e.Cause)
}

func (e *ProofError) Unwrap() error { return e.Cause }
