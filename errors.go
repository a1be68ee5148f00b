package fitsynth

import "errors"

var (
	// ErrInvalidConfig is returned for malformed or out-of-range
	// configuration values. Configuration errors are fatal and are never
	// retried.
	ErrInvalidConfig = errors.New("fitsynth: invalid configuration")

	// ErrMissingPointer is returned when an upstream stage's latest.json
	// pointer does not exist, i.e. the prerequisite stage has not run.
	ErrMissingPointer = errors.New("fitsynth: missing latest pointer")

	// ErrMissingArtifact is returned when a file referenced by a pointer
	// is absent from its run directory.
	ErrMissingArtifact = errors.New("fitsynth: missing run artifact")

	// ErrEmptyDataset is returned when a stage ends up with zero rows,
	// e.g. after filtering and joining teacher outputs.
	ErrEmptyDataset = errors.New("fitsynth: empty dataset")

	// ErrProviderNotSpecified is returned when the teacher provider name
	// is empty.
	ErrProviderNotSpecified = errors.New("fitsynth: teacher provider not specified")

	// ErrUnknownProvider is returned for an unrecognized teacher provider
	// name.
	ErrUnknownProvider = errors.New("fitsynth: unknown teacher provider")

	// ErrUnknownPromptType is returned when query synthesis encounters a
	// prompt type it has no template for.
	ErrUnknownPromptType = errors.New("fitsynth: unsupported prompt type")

	// ErrMissingAPIKey is returned when the live teacher provider cannot
	// resolve an API key from its configured environment variable.
	ErrMissingAPIKey = errors.New("fitsynth: missing teacher API key")
)
