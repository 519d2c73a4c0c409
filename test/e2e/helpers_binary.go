//go:build e2e

package e2e

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

// refdataServer manages a running refdata server process.
type refdataServer struct {
	cmd     *exec.Cmd
	dataDir string
	address string
	logFile string
}

// startRefdata launches the refdata binary and waits for it to become healthy.
// The server is configured entirely via environment variables.
func startRefdata(t *testing.T, extraEnv ...string) *refdataServer {
	t.Helper()

	if refdataBin == "" {
		t.Skip("refdata binary not available (set REFDATA_BIN or add to PATH)")
	}

	dataDir := t.TempDir()
	port := freePort(t)
	logFile := filepath.Join(dataDir, "refdata.log")

	cmd := exec.Command(refdataBin)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("REFDATA_PORT=%d", port),
		"REFDATA_DB_DRIVER=sqlite",
		"REFDATA_DB_PATH="+filepath.Join(dataDir, "refdata.db"),
		"REFDATA_CONFIG_PATH="+filepath.Join(dataDir, "nonexistent.yaml"),
		"REFDATA_ENV_FILE="+filepath.Join(dataDir, "nonexistent.env"),
	)
	cmd.Env = append(cmd.Env, extraEnv...)

	lf, err := os.Create(logFile)
	if err != nil {
		t.Fatalf("create log file: %v", err)
	}
	cmd.Stdout = lf
	cmd.Stderr = lf

	if err := cmd.Start(); err != nil {
		lf.Close()
		t.Fatalf("start refdata: %v", err)
	}

	s := &refdataServer{
		cmd:     cmd,
		dataDir: dataDir,
		address: fmt.Sprintf("127.0.0.1:%d", port),
		logFile: logFile,
	}

	t.Cleanup(func() {
		s.stop()
		lf.Close()
	})

	if err := s.waitHealthy(10 * time.Second); err != nil {
		logs, _ := os.ReadFile(logFile)
		t.Fatalf("refdata not healthy: %v\n%s", err, logs)
	}
	return s
}

func (s *refdataServer) stop() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Signal(os.Interrupt)
		_ = s.cmd.Wait()
	}
}

func (s *refdataServer) baseURL() string {
	return "http://" + s.address
}

func (s *refdataServer) waitHealthy(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(s.baseURL() + "/")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("refdata not healthy after %s", timeout)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
