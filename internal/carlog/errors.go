package carlog

import "errors"

// Kind classifies backup and restore failures.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalidArchive: missing, empty, unreadable or not a container.
	KindInvalidArchive
	// KindSecurityViolation: an archive entry escapes the extraction root.
	KindSecurityViolation
	// KindCorruptData: document unparsable or schema-invalid.
	KindCorruptData
	// KindReferentialIntegrity: dangling foreign keys in a dataset.
	KindReferentialIntegrity
	// KindStorageFailure: a data or file store operation failed.
	KindStorageFailure
	// KindBusy: another restore is already in progress.
	KindBusy
	// KindRollbackFailed: rollback could not complete; live data is undefined.
	KindRollbackFailed
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArchive:
		return "InvalidArchive"
	case KindSecurityViolation:
		return "SecurityViolation"
	case KindCorruptData:
		return "CorruptData"
	case KindReferentialIntegrity:
		return "ReferentialIntegrityViolation"
	case KindStorageFailure:
		return "StorageFailure"
	case KindBusy:
		return "Busy"
	case KindRollbackFailed:
		return "RollbackFailed"
	default:
		return "Unknown"
	}
}

// Error is a kinded error. Sentinels with an empty Msg match any Error of
// the same kind through errors.Is.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

var (
	ErrInvalidArchive       = &Error{Kind: KindInvalidArchive}
	ErrSecurityViolation    = &Error{Kind: KindSecurityViolation}
	ErrCorruptData          = &Error{Kind: KindCorruptData}
	ErrReferentialIntegrity = &Error{Kind: KindReferentialIntegrity}
	ErrStorageFailure       = &Error{Kind: KindStorageFailure}
	ErrBusy                 = &Error{Kind: KindBusy}
	ErrRollbackFailed       = &Error{Kind: KindRollbackFailed}
)

// ErrNoCars is returned when a dataset without cars is offered for backup.
var ErrNoCars = errors.New("dataset contains no cars")

// NewError creates a kinded error wrapping err (which may be nil).
func NewError(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the outermost carlog.Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// UserMessage renders a restore failure for an end user.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindRollbackFailed:
		return "Your data may be in an inconsistent state. Restart the application and check your records."
	case KindBusy:
		return "Another restore is already running. Try again when it has finished."
	default:
		return "Restore did not happen; your data is unchanged."
	}
}
