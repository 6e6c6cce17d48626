package darkrecon

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScanLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.log")
	l, err := NewScanLog(ScanLogOptions{OutputFile: path})
	require.NoError(t, err)

	l.Write(ScanLogEntry{
		Time:      time.Now().UTC(),
		ScanID:    "scan-1",
		Provider:  "dns",
		Target:    "example.com",
		OK:        true,
		ElapsedMS: 12,
	})
	l.Write(ScanLogEntry{
		Time:     time.Now().UTC(),
		ScanID:   "scan-1",
		Provider: "whois",
		Target:   "example.com",
		Error:    "unexpected status code 500",
		Attempts: 3,
	})
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var entry ScanLogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "dns", entry.Provider)
	require.True(t, entry.OK)

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	require.Equal(t, 3, entry.Attempts)
	require.Contains(t, entry.Error, "500")
}

func TestScanLogEngineIntegration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.log")
	l, err := NewScanLog(ScanLogOptions{OutputFile: path})
	require.NoError(t, err)

	p := &TestProvider{ProviderName: "p"}
	reg := NewRegistry()
	require.NoError(t, reg.Register(p, RateSpec{}, time.Second))
	eng := NewEngine(reg, EngineOptions{ScanLog: l})
	defer eng.Close()

	_, err = eng.EnrichTarget(context.Background(), "example.com", TypeDomain, nil)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"provider":"p"`)
	require.Contains(t, string(data), `"target":"example.com"`)
}

func TestSplitSyslogAddr(t *testing.T) {
	network, addr, err := splitSyslogAddr("udp:127.0.0.1:514")
	require.NoError(t, err)
	require.Equal(t, "udp", network)
	require.Equal(t, "127.0.0.1:514", addr)

	_, _, err = splitSyslogAddr("127.0.0.1:514")
	require.Error(t, err)
}
