package database

import (
	"fmt"

	"go.uber.org/zap"
)

// CorruptRow describes a persisted row that could not be parsed. Such rows
// are skipped so one bad line never blocks the rest of a store.
type CorruptRow struct {
	Store  string
	Line   int
	Reason string
}

func (c CorruptRow) Error() string {
	return fmt.Sprintf("%s: line %d: %s", c.Store, c.Line, c.Reason)
}

// WarnCorrupt logs a skipped row.
func WarnCorrupt(logger *zap.Logger, row CorruptRow) {
	logger.Warn("store corruption: skipping row",
		zap.String("store", row.Store),
		zap.Int("line", row.Line),
		zap.String("reason", row.Reason))
}
