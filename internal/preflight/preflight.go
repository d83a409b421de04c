package preflight

import (
	"context"
	"strings"

	"comicshelf/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every applicable check. targetDirectory is the resolved
// library target (database option or config default); it is skipped when
// empty.
func RunAll(ctx context.Context, cfg *config.Config, targetDirectory string) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Image cache", cfg.Paths.ImageCacheDir),
	}
	if dir := strings.TrimSpace(targetDirectory); dir != "" {
		results = append(results, CheckDirectoryAccess("Library target", dir))
	}
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		results = append(results, CheckNtfy(ctx, topic))
	}
	if url := strings.TrimSpace(cfg.Notifications.AMQPURL); url != "" {
		results = append(results, CheckAMQP(ctx, url))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
