package crashtracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stellar/go-stellar-sdk/support/log"
)

type hubSentryInterface interface {
	CaptureException(exception error) *sentry.EventID
	CaptureMessage(message string) *sentry.EventID
	Clone() *sentry.Hub
	Flush(timeout time.Duration) bool
	Recover(err interface{}) *sentry.EventID
}

var _ hubSentryInterface = (*sentry.Hub)(nil)

type sentryClient struct {
	hub hubSentryInterface
}

// LogAndReportErrors logs the error with its stack, then ships it to sentry.
// Context cancellations are expected churn and never reported.
func (c *sentryClient) LogAndReportErrors(ctx context.Context, err error, msg string) {
	if errors.Is(err, context.Canceled) {
		log.Ctx(ctx).Warn("context canceled, not reporting error to sentry")
		return
	}

	if msg != "" {
		err = fmt.Errorf("%s: %w", msg, err)
	}
	log.Ctx(ctx).WithStack(err).Errorf("%+v", err)
	c.hub.CaptureException(err)
}

func (c *sentryClient) LogAndReportMessages(ctx context.Context, msg string) {
	log.Ctx(ctx).Info(msg)
	c.hub.CaptureMessage(msg)
}

// FlushEvents waits for queued events to dispatch, bounding application
// shutdown.
func (c *sentryClient) FlushEvents(waitTime time.Duration) bool {
	return c.hub.Flush(waitTime)
}

// Recover captures an unhandled panic. Meant to run deferred.
func (c *sentryClient) Recover() {
	if err := recover(); err != nil {
		c.hub.Recover(err)
	}
}

// Clone makes an independent client for a concurrent scope.
func (c *sentryClient) Clone() CrashTrackerClient {
	return &sentryClient{hub: c.hub.Clone()}
}

func NewSentryClient(sentryDSN string, environment string, gitCommit string) (*sentryClient, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         sentryDSN,
		Release:     gitCommit,
		Environment: environment,
	})
	if err != nil {
		return nil, fmt.Errorf("setting up sentry: %w", err)
	}
	return &sentryClient{hub: sentry.CurrentHub()}, nil
}

var _ CrashTrackerClient = (*sentryClient)(nil)
