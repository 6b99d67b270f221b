package utils

import (
	"github.com/sirupsen/logrus"

	"github.com/gridbroker/gridbroker/internal/crashtracker"
)

// GlobalOptionsType holds the CLI options that apply to every command and
// subcommand.
type GlobalOptionsType struct {
	LogLevel    logrus.Level
	SentryDSN   string
	Environment string
	Version     string
	GitCommit   string
}

// PopulateCrashTrackerOptions fills the crash tracker options from the global
// options.
func (g GlobalOptionsType) PopulateCrashTrackerOptions(crashTrackerOptions *crashtracker.CrashTrackerOptions) {
	if crashTrackerOptions.CrashTrackerType == crashtracker.CrashTrackerTypeSentry {
		crashTrackerOptions.SentryDSN = g.SentryDSN
	}
	crashTrackerOptions.Environment = g.Environment
	crashTrackerOptions.GitCommit = g.GitCommit
}
