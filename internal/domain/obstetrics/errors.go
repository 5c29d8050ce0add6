package obstetrics

import "errors"

var (
	ErrInvalidProfile    = errors.New("invalid profile")
	ErrProfileNotFound   = errors.New("profile not found")
	ErrAlreadyOnboarded  = errors.New("profile already exists")
	ErrUnknownCategory   = errors.New("unknown risk factor category")
	ErrUnknownFlag       = errors.New("unknown risk factor flag")
	ErrDerivedFlag       = errors.New("risk factor flag is derived from the patient's age")
	ErrUnknownExam       = errors.New("exam not found")
	ErrUnknownTrack      = errors.New("care track not found")
	ErrInvalidExamStatus = errors.New("exam status must be normal or abnormal")
	ErrInvalidTrackFlag  = errors.New("invalid care track flag")
	ErrInvalidBloodType  = errors.New("invalid blood type")

	// ErrDispatchInFlight is returned when a document for the same care track
	// is still being sent.
	ErrDispatchInFlight = errors.New("document dispatch already in progress")
	// ErrDispatchFailed wraps sender failures; the track state is unchanged.
	ErrDispatchFailed = errors.New("document dispatch failed")
	// ErrStaleDurableCopy wraps store failures after a mutation was applied
	// to the session. The session keeps the change.
	ErrStaleDurableCopy = errors.New("profile changed but could not be persisted")
)
