// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Server constants
const (
	// ShutdownTimeout bounds the graceful HTTP shutdown
	ShutdownTimeout = 30 * time.Second

	// RequestTimeout is the per-request deadline set by the chi timeout middleware
	RequestTimeout = 2 * time.Minute

	// ReadTimeout and WriteTimeout bound a single HTTP exchange
	ReadTimeout  = 30 * time.Second
	WriteTimeout = 3 * time.Minute

	// IdleTimeout closes idle keep-alive connections
	IdleTimeout = 60 * time.Second
)

// Index constants
const (
	// IndexProgressThreshold is the catalog size above which index builds show a progress bar
	IndexProgressThreshold = 1000
)
