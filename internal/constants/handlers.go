package constants

// Handler constants
const (
	// MaxRequestBodyBytes limits JSON request bodies
	MaxRequestBodyBytes = 1 << 20

	// MaxBatchIDs is the maximum number of face IDs in one batch commit
	MaxBatchIDs = 500

	// DefaultCLIListLimit is the default number of rows printed by list commands
	DefaultCLIListLimit = 50
)
