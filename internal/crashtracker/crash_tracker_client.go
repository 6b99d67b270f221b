package crashtracker

import (
	"context"
	"time"
)

// CrashTrackerClient reports unexpected failures to an external tracker. The
// broker shares one client per process; request handlers clone it so
// concurrent scopes do not share breadcrumb state.
type CrashTrackerClient interface {
	LogAndReportErrors(ctx context.Context, err error, msg string)
	LogAndReportMessages(ctx context.Context, msg string)
	FlushEvents(waitTime time.Duration) bool
	Recover()
	Clone() CrashTrackerClient
}
