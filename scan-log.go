package darkrecon

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	syslog "github.com/RackSec/srslog"
)

// ScanLogEntry is one line of the per-call audit trail.
type ScanLogEntry struct {
	Time      time.Time `json:"time"`
	ScanID    string    `json:"scan_id"`
	Provider  string    `json:"provider"`
	Target    string    `json:"target"`
	OK        bool      `json:"ok"`
	FromCache bool      `json:"from_cache"`
	Attempts  int       `json:"attempts,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`
	Error     string    `json:"error,omitempty"`
}

// ScanLog writes one JSON line per provider call to STDOUT, a file, or a
// syslog server.
type ScanLog struct {
	mu     sync.Mutex
	w      io.Writer
	sys    *syslog.Writer
	closer io.Closer
}

type ScanLogOptions struct {
	// Output filename, leave blank for STDOUT unless Syslog is set.
	OutputFile string

	// Syslog server address as network:host:port, e.g. "udp:1.2.3.4:514".
	// Leave blank to log to OutputFile/STDOUT instead.
	Syslog string

	// Syslog tag, default "darkreconx".
	SyslogTag string
}

// NewScanLog returns a scan log for the given destination.
func NewScanLog(opt ScanLogOptions) (*ScanLog, error) {
	if opt.Syslog != "" {
		network, addr, err := splitSyslogAddr(opt.Syslog)
		if err != nil {
			return nil, err
		}
		tag := opt.SyslogTag
		if tag == "" {
			tag = "darkreconx"
		}
		w, err := syslog.Dial(network, addr, syslog.LOG_INFO|syslog.LOG_DAEMON, tag)
		if err != nil {
			return nil, err
		}
		return &ScanLog{sys: w, closer: w}, nil
	}
	if opt.OutputFile != "" {
		f, err := os.OpenFile(opt.OutputFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		return &ScanLog{w: f, closer: f}, nil
	}
	return &ScanLog{w: os.Stdout}, nil
}

// Write appends one entry. Failures to write the audit trail are logged
// and otherwise ignored, they never fail a scan.
func (l *ScanLog) Write(e ScanLogEntry) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sys != nil {
		if err := l.sys.Info(string(data)); err != nil {
			Log.WithError(err).Debug("failed to write scan log to syslog")
		}
		return
	}
	if _, err := fmt.Fprintln(l.w, string(data)); err != nil {
		Log.WithError(err).Debug("failed to write scan log")
	}
}

// Close closes the underlying file or syslog connection.
func (l *ScanLog) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func splitSyslogAddr(s string) (network, addr string, err error) {
	for _, n := range []string{"udp", "tcp"} {
		prefix := n + ":"
		if len(s) > len(prefix) && s[:len(prefix)] == prefix {
			return n, s[len(prefix):], nil
		}
	}
	return "", "", fmt.Errorf("invalid syslog address %q, expected udp:host:port or tcp:host:port", s)
}
