package domain

import "errors"

var (
	// ErrNotFound is returned by repositories when a keyed entity is absent.
	ErrNotFound = errors.New("not found")
	// ErrInvalidQuery marks malformed query parameters (bad dates, empty keywords).
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidSource marks a malformed paper source entry.
	ErrInvalidSource = errors.New("invalid source entry")
	// ErrStageBusy is returned when another worker holds the stage lock.
	ErrStageBusy = errors.New("stage is already running")
	// ErrCategoriesUnreachable is recorded when no category page of a paper could be fetched.
	ErrCategoriesUnreachable = errors.New("all category pages unreachable")
	// ErrIllegalTransition is returned for crawl status changes outside the state machine.
	ErrIllegalTransition = errors.New("illegal crawl status transition")
)
