package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/tasksearch/internal/embed"
	"github.com/Aman-CERP/tasksearch/internal/vectorindex"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status by name in JSON.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// probeTimeout bounds the embedder and index probes.
const probeTimeout = 10 * time.Second

// Config names what to check. Embedder and Index are optional; their
// checks are skipped when nil.
type Config struct {
	DatabasePath string
	VectorDir    string
	Embedder     embed.Embedder
	Index        vectorindex.Index
}

// Checker performs preflight validation checks.
type Checker struct {
	cfg Config
}

// New creates a Checker.
func New(cfg Config) *Checker {
	return &Checker{cfg: cfg}
}

// RunAll runs every applicable check.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	var results []CheckResult

	dirs := c.dataDirs()
	for _, dir := range dirs {
		results = append(results, c.CheckDiskSpace(dir))
	}
	for _, dir := range dirs {
		results = append(results, c.CheckWritePermissions(dir))
	}
	results = append(results, c.CheckFileDescriptors())

	if c.cfg.Embedder != nil {
		results = append(results, c.CheckEmbedder(ctx))
	}
	if c.cfg.Index != nil {
		results = append(results, c.CheckVectorIndex(ctx))
	}
	return results
}

// dataDirs returns the distinct directories the stores write to. An
// in-memory database has none.
func (c *Checker) dataDirs() []string {
	var dirs []string
	if c.cfg.DatabasePath != "" {
		dirs = append(dirs, filepath.Dir(c.cfg.DatabasePath))
	}
	if c.cfg.VectorDir != "" && (len(dirs) == 0 || dirs[0] != c.cfg.VectorDir) {
		dirs = append(dirs, c.cfg.VectorDir)
	}
	return dirs
}

// HasCriticalFailures returns true if any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns "ready", "ready_with_warnings" or "failed".
func SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results in plain text.
func PrintResults(w io.Writer, results []CheckResult, verbose bool) {
	_, _ = fmt.Fprintln(w, "tasksearch system check")
	_, _ = fmt.Fprintln(w, "=======================")
	_, _ = fmt.Fprintln(w)

	for _, r := range results {
		_, _ = fmt.Fprintf(w, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if verbose && r.Details != "" {
			_, _ = fmt.Fprintf(w, "      %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "Status: %s\n", strings.ToUpper(SummaryStatus(results)))

	var errs []string
	for _, r := range results {
		if r.IsCritical() {
			errs = append(errs, r.Name+": "+r.Message)
		}
	}
	if len(errs) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintf(w, "%d error(s):\n", len(errs))
		for _, e := range errs {
			_, _ = fmt.Fprintf(w, "  - %s\n", e)
		}
	}
}

// CheckWritePermissions checks that dir exists or can be created, and is
// writable.
func (c *Checker) CheckWritePermissions(dir string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
		Details:  dir,
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", dir, err)
		return result
	}
	f, err := os.CreateTemp(dir, ".tasksearch-preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckEmbedder probes the embedder and reports its model and dimension.
// Failure is fatal: nothing can be indexed or searched without it.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: true,
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	e := c.cfg.Embedder
	if !e.Available(ctx) {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not reachable", e.ModelName())
		result.Details = "start the provider or set embeddings.provider: static"
		return result
	}
	dims, err := embed.ResolveDimensions(ctx, e)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s failed to embed a probe: %v", e.ModelName(), err)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d dims)", e.ModelName(), dims)
	return result
}

// CheckVectorIndex opens the index and reports its size. A dimension
// mismatch surfaces here as a failure.
func (c *Checker) CheckVectorIndex(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     "vector_index",
		Required: true,
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	n, err := c.cfg.Index.Count(ctx)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d records", n)
	if sp, ok := c.cfg.Index.(vectorindex.StatsProvider); ok {
		st := sp.Stats()
		result.Message = fmt.Sprintf("%s, %d records, %d dims", st.Backend, n, st.Dimensions)
		if st.Orphans > st.Records && st.Orphans > 0 {
			result.Status = StatusWarn
			result.Details = fmt.Sprintf("%d deleted graph nodes await compaction", st.Orphans)
		}
	}
	return result
}
