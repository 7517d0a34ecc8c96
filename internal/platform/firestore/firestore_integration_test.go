//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	pconfig "github.com/acrylicworks/api/internal/platform/config"
	pfirestore "github.com/acrylicworks/api/internal/platform/firestore"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

type counterDoc struct {
	Name  string `firestore:"name"`
	Count int    `firestore:"count"`
}

func TestProviderAndRepositoryIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	defer stopContainer(containerID)
	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "test-project", EmulatorHost: endpoint})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	repo := pfirestore.NewBaseRepository[counterDoc](provider, "counters_it")
	if err := repo.Create(ctx, "c-1", counterDoc{Name: "alpha", Count: 1}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(ctx, "c-1", counterDoc{Name: "dup"}); err == nil {
		t.Fatal("expected conflict creating existing document")
	}

	if err := repo.Update(ctx, "c-1", []firestore.Update{{Path: "count", Value: 2}}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if err := provider.RunInTx(ctx, func(txCtx context.Context) error {
		doc, err := repo.Get(txCtx, "c-1")
		if err != nil {
			return err
		}
		doc.Data.Count++
		return repo.Set(txCtx, "c-1", doc.Data)
	}); err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	doc, err := repo.Get(ctx, "c-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if doc.Data.Count != 3 {
		t.Fatalf("expected count=3, got %d", doc.Data.Count)
	}

	sentinel := errors.New("abort")
	if err := provider.RunInTx(ctx, func(txCtx context.Context) error {
		if err := repo.Set(txCtx, "c-1", counterDoc{Name: "alpha", Count: 100}); err != nil {
			return err
		}
		return sentinel
	}); !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	doc, _ = repo.Get(ctx, "c-1")
	if doc.Data.Count != 3 {
		t.Fatalf("expected rollback to keep count=3, got %d", doc.Data.Count)
	}

	if _, err := repo.Get(ctx, "missing"); !pfirestore.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := provider.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	cmd := exec.Command("docker", "run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080", "--quiet",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("emulator did not become ready at %s", endpoint)
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}
}
