package model

import (
	"errors"
	"fmt"
)

// Kind classifies a terminal pipeline failure. Kinds are part of the caller
// contract: the HTTP layer maps them to transport statuses, the pipeline
// itself never chooses a status code.
type Kind string

const (
	// KindBotChallenge means the portal served a verification interstitial
	// instead of the login form ("blocked", not "bug").
	KindBotChallenge Kind = "bot_challenge"

	// KindFormNotFound means no username-like field ever appeared and no
	// challenge was detected ("site layout changed").
	KindFormNotFound Kind = "form_not_found"

	// KindFieldNotFound means the form appeared but a specific input could
	// not be located. Message names the missing role.
	KindFieldNotFound Kind = "field_not_found"

	// KindSubmitNotFound means no submit control matched any strategy.
	KindSubmitNotFound Kind = "submit_not_found"

	// KindNavigationTimeout means the login page never settled within the
	// configured bound.
	KindNavigationTimeout Kind = "navigation_timeout"

	// KindFetchError means the authenticated data request returned a non-2xx
	// status. HTTPStatus carries the upstream code.
	KindFetchError Kind = "fetch_error"

	// KindUnknown covers faults the pipeline could not classify.
	KindUnknown Kind = "unknown_failure"
)

// Error is a classified, terminal pipeline failure. There is no retry: every
// Error ends the run.
type Error struct {
	Kind Kind

	// Message is a short human-readable description safe to return to callers.
	Message string

	// HTTPStatus is the upstream status for KindFetchError, zero otherwise.
	HTTPStatus int

	// Snippet is a truncated page-content excerpt kept for diagnosis
	// (challenge pages, unexpected layouts). Never part of API responses.
	Snippet string
}

func (e *Error) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s: %s (upstream status %d)", e.Kind, e.Message, e.HTTPStatus)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Errf builds a classified Error with a formatted message.
func Errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Classify returns err as a *Error, wrapping unclassified errors as
// KindUnknown so callers always see a kind.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		return me
	}
	return &Error{Kind: KindUnknown, Message: err.Error()}
}
