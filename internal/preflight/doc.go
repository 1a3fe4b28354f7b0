// Package preflight checks that tasksearch can run in the current
// environment before a server is started or an index is rebuilt.
//
// The checks cover:
//   - free disk space where the database and the HNSW files live
//   - write permission in those directories
//   - the file descriptor limit
//   - embedder availability and dimension
//   - whether the vector index opens with that dimension
//
// Use the Checker type to run them:
//
//	checker := preflight.New(preflight.Config{DatabasePath: path, Embedder: e, Index: idx})
//	results := checker.RunAll(ctx)
//	if preflight.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
