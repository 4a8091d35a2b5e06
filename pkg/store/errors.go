package store

import "errors"

var (
	// ErrDuplicateID is returned by CreateJob when the job id already exists.
	ErrDuplicateID = errors.New("job id already exists")

	// ErrJobNotFound is returned when no job with the given id exists.
	ErrJobNotFound = errors.New("job not found")

	// ErrNotProcessing is returned by settlement operations when the job is
	// not currently being processed.
	ErrNotProcessing = errors.New("job is not processing")

	// ErrNotDead is returned by RequeueDead when the job is not dead.
	ErrNotDead = errors.New("job is not dead")

	// ErrConfigNotFound is returned by ConfigGet for an unset key.
	ErrConfigNotFound = errors.New("config key not set")
)
