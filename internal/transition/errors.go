package transition

import "errors"

// Sentinel errors returned by [Engine.Apply]. None of them leave a mutation
// behind.
var (
	ErrUnknownStory            = errors.New("story not found")
	ErrIllegalTransition       = errors.New("illegal transition")
	ErrInvalidOutcome          = errors.New("invalid outcome")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)

// FailureKind classifies an outcome for operators and audit logs.
type FailureKind string

const (
	FailureNone                        FailureKind = ""
	FailureTest                        FailureKind = "TestFailure"
	FailureOperation                   FailureKind = "OperationFailure"
	FailureDuplicateWork               FailureKind = "DuplicateWorkDetected"
	FailureAlreadyCompletedElsewhere   FailureKind = "AlreadyCompletedElsewhere"
	FailureExternalClosureWithoutMerge FailureKind = "ExternalClosureWithoutMerge"
	FailureCollaboratorUnavailable     FailureKind = "CollaboratorUnavailable"
)

// Classify maps an outcome kind to its failure kind. Successful outcomes map
// to [FailureNone].
func Classify(k Kind) FailureKind {
	switch k {
	case KindTestsFailed:
		return FailureTest
	case KindOperationFailed:
		return FailureOperation
	case KindDuplicateFound:
		return FailureDuplicateWork
	case KindAlreadyDone:
		return FailureAlreadyCompletedElsewhere
	case KindClosedWithoutMerge:
		return FailureExternalClosureWithoutMerge
	case KindUnavailable:
		return FailureCollaboratorUnavailable
	}
	return FailureNone
}

// Recoverable reports whether the story stays where it was.
func (f FailureKind) Recoverable() bool {
	return f == FailureTest || f == FailureOperation
}

// Terminal reports whether the failure deterministically ends the story.
func (f FailureKind) Terminal() bool {
	switch f {
	case FailureDuplicateWork, FailureAlreadyCompletedElsewhere, FailureExternalClosureWithoutMerge:
		return true
	}
	return false
}
