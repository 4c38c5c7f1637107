package pipeline

import "errors"

var (
	// ErrBatchTooLarge is returned when a batch lists more domains than allowed.
	ErrBatchTooLarge = errors.New("too many domains in batch")

	// ErrNoValidDomains is returned when no domain of a batch passes validation.
	ErrNoValidDomains = errors.New("no valid domains in batch")

	// ErrUnauthorized is returned when a stop request comes from neither the
	// crawl's owner nor an administrator.
	ErrUnauthorized = errors.New("not allowed to stop this crawl")

	// ErrTooManyCrawls is returned when the concurrent crawl limit is reached.
	ErrTooManyCrawls = errors.New("too many crawls running")

	// ErrShuttingDown is returned when a crawl is started after Shutdown.
	ErrShuttingDown = errors.New("service is shutting down")

	// ErrBatchNotFound is returned for unknown batch keys.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrSearchNotFound is returned for unknown SearchRecord IDs.
	ErrSearchNotFound = errors.New("search record not found")
)
