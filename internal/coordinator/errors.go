package coordinator

import (
	"fmt"
)

// ListError means the listing operation failed or returned something unusable,
// no fetch is started when this is returned.
type ListError struct {
	Err error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("list responses: %s", e.Err.Error())
}

func (e *ListError) Unwrap() error {
	return e.Err
}

// FetchError means fetching a single response did not return a success status,
// StatusCode is 0 if no status was received at all.
type FetchError struct {
	Id         string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch response %s: %s", e.Id, e.Err.Error())
	}
	return fmt.Sprintf("fetch response %s: status %d", e.Id, e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// PersistError means a cache entry could not be checked, written or removed.
type PersistError struct {
	Id  string
	Op  string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("cache %s %s: %s", e.Op, e.Id, e.Err.Error())
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
