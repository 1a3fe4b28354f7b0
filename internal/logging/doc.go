// Package logging configures structured JSON logging with size-based file
// rotation for tasksearch. The CLI installs the resulting logger as the
// slog default; library packages log through slog and never configure it.
//
// Viewer reads the same files back for the logs command.
package logging
