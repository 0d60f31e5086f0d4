// Package logs wires the consensus core's subsystem loggers on top of
// btclog, the published sibling of the logging package used throughout
// the btcd/kaspad lineage this module is built from.
package logs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// logWriter fans writes out to stdout and the rotating log file.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	if initiated {
		os.Stdout.Write(p)
		LogRotator.Write(p)
	}
	return len(p), nil
}

var (
	backendLog = btclog.NewBackend(logWriter{})

	// LogRotator is the rotating file sink. It must be closed on shutdown.
	LogRotator *rotator.Rotator

	initiated = false
)

// SubsystemTags enumerates the consensus core's logging subsystems.
var SubsystemTags = struct {
	MPOL, // mempool
	POWE, // proof-of-work engine
	VOTE, // direct voting engine
	CNSB, // consensus bundle
	LDGR, // ledger view
	NETW, // network/peer collaborator
	AUDT string // audit sink
}{
	MPOL: "MPOL",
	POWE: "POWE",
	VOTE: "VOTE",
	CNSB: "CNSB",
	LDGR: "LDGR",
	NETW: "NETW",
	AUDT: "AUDT",
}

var subsystemLoggers = map[string]btclog.Logger{
	SubsystemTags.MPOL: backendLog.Logger(SubsystemTags.MPOL),
	SubsystemTags.POWE: backendLog.Logger(SubsystemTags.POWE),
	SubsystemTags.VOTE: backendLog.Logger(SubsystemTags.VOTE),
	SubsystemTags.CNSB: backendLog.Logger(SubsystemTags.CNSB),
	SubsystemTags.LDGR: backendLog.Logger(SubsystemTags.LDGR),
	SubsystemTags.NETW: backendLog.Logger(SubsystemTags.NETW),
	SubsystemTags.AUDT: backendLog.Logger(SubsystemTags.AUDT),
}

// InitLogRotator initializes the rotating log sink. It must be called before
// any subsystem logger is used in a long-running process.
func InitLogRotator(logFile string) {
	initiated = true
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0700); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create log directory: %s\n", err)
			return
		}
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create file rotator: %s\n", err)
		return
	}
	LogRotator = r
}

// SetLogLevel sets the logging level for the named subsystem. Unknown
// subsystems are ignored.
func SetLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}
	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets the log level for every subsystem logger.
func SetLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		SetLogLevel(subsystemID, logLevel)
	}
}

// Get returns the logger registered for tag.
func Get(tag string) (btclog.Logger, bool) {
	logger, ok := subsystemLoggers[tag]
	return logger, ok
}

// SupportedSubsystems returns the sorted set of known subsystem tags.
func SupportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// ParseAndSetDebugLevels parses a "level" or "subsys=level,subsys=level"
// debug-level string and applies it.
func ParseAndSetDebugLevels(debugLevel string) error {
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		if !validLogLevel(debugLevel) {
			return fmt.Errorf("the specified debug level [%s] is invalid", debugLevel)
		}
		SetLogLevels(debugLevel)
		return nil
	}

	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return fmt.Errorf("the specified debug level contains an invalid subsystem/level pair [%s]", logLevelPair)
		}
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]
		if _, exists := Get(subsysID); !exists {
			return fmt.Errorf("the specified subsystem [%s] is invalid -- supported subsystems %s",
				subsysID, strings.Join(SupportedSubsystems(), ", "))
		}
		if !validLogLevel(logLevel) {
			return fmt.Errorf("the specified debug level [%s] is invalid", logLevel)
		}
		SetLogLevel(subsysID, logLevel)
	}
	return nil
}

func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}
	return false
}
