// Package testutil holds helpers shared by tests that need a real server
// process: building the fake llama server and picking free ports.
package testutil

import (
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

var (
	buildOnce sync.Once
	buildDir  string
	buildBin  string
	buildErr  error
	buildOut  []byte
)

// FakeServer builds testdata/fake_llama_server.go once per test binary and
// returns the executable path.
func FakeServer(t testing.TB) string {
	t.Helper()
	if testing.Short() {
		t.Skip("short mode: skipping subprocess test")
	}
	buildOnce.Do(func() {
		_, self, _, _ := runtime.Caller(0)
		src := filepath.Join(filepath.Dir(self), "testdata", "fake_llama_server.go")
		buildDir, buildErr = os.MkdirTemp("", "inferd-fake-")
		if buildErr != nil {
			return
		}
		buildBin = filepath.Join(buildDir, "llama-server")
		cmd := exec.Command("go", "build", "-o", buildBin, src)
		cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
		buildOut, buildErr = cmd.CombinedOutput()
	})
	if buildErr != nil {
		t.Fatalf("build fake server: %v: %s", buildErr, string(buildOut))
	}
	return buildBin
}

// Cleanup removes the fake server build directory. Call it from TestMain.
func Cleanup() {
	if buildDir != "" {
		_ = os.RemoveAll(buildDir)
	}
}

// FreePort returns a TCP port on 127.0.0.1 that was free a moment ago.
func FreePort(t testing.TB) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// SpawnCount returns how many pids the fake server appended to path.
func SpawnCount(t testing.TB, path string) int {
	t.Helper()
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatalf("read spawn log: %v", err)
	}
	return len(strings.Fields(string(b)))
}

// Eventually polls cond every 20ms until it holds or d elapses.
func Eventually(t testing.TB, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", d, msg)
}
