// Package tasks implements scheduled maintenance tasks for the broadcast
// bot, along with their registration mechanism.
package tasks

import (
	"log/slog"

	"adcaster/internal/broadcast"
	"adcaster/internal/config"
	"adcaster/internal/database"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger    *slog.Logger
	Store     database.Store
	Admission *broadcast.AdmissionCache
	Config    *config.Config
}
