package service

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/NitroDevv/tgbot/internal/model"
	"github.com/NitroDevv/tgbot/internal/runner"
)

type recordingLauncher struct {
	mu     sync.Mutex
	specs  []runner.LaunchSpec
	pid    int
	launch error
}

func (l *recordingLauncher) Launch(_ context.Context, spec runner.LaunchSpec) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.launch != nil {
		return 0, l.launch
	}
	l.specs = append(l.specs, spec)
	if l.pid == 0 {
		l.pid = 4242
	}
	return l.pid, nil
}

func (l *recordingLauncher) last(t *testing.T) runner.LaunchSpec {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.specs) == 0 {
		t.Fatalf("launcher never called")
	}
	return l.specs[len(l.specs)-1]
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range files {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip entry %s: %v", name, err)
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
}

func seedTemplate(t *testing.T, store *MemoryStore, tpl *model.Template) uuid.UUID {
	t.Helper()
	if err := store.CreateTemplate(context.Background(), tpl); err != nil {
		t.Fatalf("seed template: %v", err)
	}
	return tpl.ID
}

func newProvisionFixture(t *testing.T, store *MemoryStore) (*ProvisionService, *LedgerService, *recordingLauncher, string) {
	t.Helper()
	ledger := NewLedgerService(store)
	launcher := &recordingLauncher{}
	dir := filepath.Join(t.TempDir(), "instances")
	return NewProvisionService(store, ledger, launcher, dir), ledger, launcher, dir
}

func TestProvisionInsufficientFunds(t *testing.T) {
	store := NewMemoryStore()
	svc, ledger, launcher, _ := newProvisionFixture(t, store)
	ctx := context.Background()

	zipPath := filepath.Join(t.TempDir(), "shop.zip")
	writeZip(t, zipPath, map[string]string{"main.py": "TOKEN = 'YOUR_BOT_TOKEN'\n"})
	tplID := seedTemplate(t, store, &model.Template{Name: "Shop bot", FilePath: zipPath, Price: 50000})

	_, err := svc.Provision(ctx, 1, tplID, "abc123")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	if n, _ := store.CountInstances(ctx); n != 0 {
		t.Fatalf("instance created despite failed debit")
	}
	if balance, _ := ledger.GetBalance(ctx, 1); balance != 0 {
		t.Fatalf("balance moved: %v", balance)
	}
	launcher.mu.Lock()
	defer launcher.mu.Unlock()
	if len(launcher.specs) != 0 {
		t.Fatalf("launcher called despite failed debit")
	}
}

func TestProvisionSuccess(t *testing.T) {
	store := NewMemoryStore()
	svc, ledger, launcher, instancesDir := newProvisionFixture(t, store)
	ctx := context.Background()

	store.SetBalance(9, 100000)
	zipPath := filepath.Join(t.TempDir(), "shop.zip")
	writeZip(t, zipPath, map[string]string{
		"main.py":           "BOT_TOKEN = \"YOUR_BOT_TOKEN\"\nprint('hi')\n",
		"handlers/admin.py": "api_key = 'old-secret'\n",
		"README.md":         "token = 'YOUR_BOT_TOKEN' stays untouched here\n",
	})
	tplID := seedTemplate(t, store, &model.Template{Name: "Shop bot", FilePath: zipPath, RunCommand: "python main.py", Price: 50000})

	inst, err := svc.Provision(ctx, 9, tplID, "abc123")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}

	if balance, _ := ledger.GetBalance(ctx, 9); balance != 50000 {
		t.Fatalf("balance = %v, want 50000", balance)
	}
	if inst.Status != model.InstanceStatusActive {
		t.Fatalf("status = %s, want active", inst.Status)
	}
	if inst.DaysLeft != model.DefaultInstanceDays {
		t.Fatalf("days left = %d, want %d", inst.DaysLeft, model.DefaultInstanceDays)
	}
	if inst.PID == nil || *inst.PID != 4242 {
		t.Fatalf("pid not recorded: %+v", inst.PID)
	}
	if !strings.HasPrefix(inst.WorkDir, instancesDir) {
		t.Fatalf("workdir %s outside %s", inst.WorkDir, instancesDir)
	}

	spec := launcher.last(t)
	if spec.OwnerID != 9 {
		t.Fatalf("owner id = %d", spec.OwnerID)
	}
	if filepath.Base(spec.Entrypoint) != "main.py" {
		t.Fatalf("entrypoint = %s, want main.py", spec.Entrypoint)
	}
	if spec.LogPath != filepath.Join(inst.WorkDir, "log.txt") {
		t.Fatalf("log path = %s", spec.LogPath)
	}

	mainBody, err := os.ReadFile(filepath.Join(inst.WorkDir, "main.py"))
	if err != nil {
		t.Fatalf("read main.py: %v", err)
	}
	if !strings.Contains(string(mainBody), `BOT_TOKEN = "abc123"`) {
		t.Fatalf("token not injected into main.py:\n%s", mainBody)
	}
	adminBody, err := os.ReadFile(filepath.Join(inst.WorkDir, "handlers", "admin.py"))
	if err != nil {
		t.Fatalf("read admin.py: %v", err)
	}
	if !strings.Contains(string(adminBody), "api_key = 'abc123'") {
		t.Fatalf("assignment rewrite missed admin.py:\n%s", adminBody)
	}
	readme, err := os.ReadFile(filepath.Join(inst.WorkDir, "README.md"))
	if err != nil {
		t.Fatalf("read README.md: %v", err)
	}
	if strings.Contains(string(readme), "abc123") {
		t.Fatalf("token leaked into a non-python file")
	}
}

func TestProvisionTokenWithDollarSignsStaysVerbatim(t *testing.T) {
	store := NewMemoryStore()
	svc, _, _, _ := newProvisionFixture(t, store)
	ctx := context.Background()

	store.SetBalance(4, 10000)
	zipPath := filepath.Join(t.TempDir(), "echo.zip")
	writeZip(t, zipPath, map[string]string{"main.py": "api_key = 'old-secret'\n"})
	tplID := seedTemplate(t, store, &model.Template{Name: "Echo bot", FilePath: zipPath, Price: 1000})

	token := "12$10:AA$$BB"
	inst, err := svc.Provision(ctx, 4, tplID, token)
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	body, err := os.ReadFile(filepath.Join(inst.WorkDir, "main.py"))
	if err != nil {
		t.Fatalf("read main.py: %v", err)
	}
	if !strings.Contains(string(body), "api_key = '"+token+"'") {
		t.Fatalf("token mangled during injection:\n%s", body)
	}
}

func TestProvisionSingleFileTemplate(t *testing.T) {
	store := NewMemoryStore()
	svc, _, launcher, _ := newProvisionFixture(t, store)
	ctx := context.Background()

	store.SetBalance(2, 10000)
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "echo.py")
	if err := os.WriteFile(src, []byte("token = 'YOUR_BOT_TOKEN'\n"), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	tplID := seedTemplate(t, store, &model.Template{Name: "Echo bot", FilePath: src, Price: 1000})

	inst, err := svc.Provision(ctx, 2, tplID, "tok-1")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}

	// echo.py is not a well-known entrypoint name; the any-python
	// fallback must still find it.
	spec := launcher.last(t)
	if filepath.Base(spec.Entrypoint) != "echo.py" {
		t.Fatalf("entrypoint = %s, want echo.py", spec.Entrypoint)
	}
	body, err := os.ReadFile(filepath.Join(inst.WorkDir, "echo.py"))
	if err != nil {
		t.Fatalf("read copy: %v", err)
	}
	if !strings.Contains(string(body), "tok-1") {
		t.Fatalf("token not injected: %s", body)
	}
}

func TestProvisionEmptyToken(t *testing.T) {
	store := NewMemoryStore()
	svc, ledger, _, _ := newProvisionFixture(t, store)
	ctx := context.Background()

	store.SetBalance(1, 10000)
	tplID := seedTemplate(t, store, &model.Template{Name: "x", FilePath: "x.zip", Price: 100})

	if _, err := svc.Provision(ctx, 1, tplID, "   "); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if balance, _ := ledger.GetBalance(ctx, 1); balance != 10000 {
		t.Fatalf("empty token caused a debit: %v", balance)
	}
}

func TestProvisionUnknownTemplate(t *testing.T) {
	store := NewMemoryStore()
	svc, _, _, _ := newProvisionFixture(t, store)

	if _, err := svc.Provision(context.Background(), 1, uuid.New(), "tok"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProvisionMissingEntrypointLeavesAccountDebited(t *testing.T) {
	store := NewMemoryStore()
	svc, ledger, _, _ := newProvisionFixture(t, store)
	ctx := context.Background()

	store.SetBalance(4, 60000)
	zipPath := filepath.Join(t.TempDir(), "broken.zip")
	writeZip(t, zipPath, map[string]string{"README.md": "no code here\n"})
	tplID := seedTemplate(t, store, &model.Template{Name: "Broken", FilePath: zipPath, Price: 50000})

	_, err := svc.Provision(ctx, 4, tplID, "tok")
	var perr *ProvisioningError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProvisioningError, got %v", err)
	}
	if perr.Stage != "entrypoint" {
		t.Fatalf("stage = %s, want entrypoint", perr.Stage)
	}

	// The debit is not compensated on a post-debit failure.
	if balance, _ := ledger.GetBalance(ctx, 4); balance != 10000 {
		t.Fatalf("balance = %v, want 10000", balance)
	}
	if n, _ := store.CountInstances(ctx); n != 0 {
		t.Fatalf("instance recorded despite failed provisioning")
	}
}

func TestProvisionLaunchFailureLeavesAccountDebited(t *testing.T) {
	store := NewMemoryStore()
	ledger := NewLedgerService(store)
	launcher := &recordingLauncher{launch: errors.New("python3 not found")}
	svc := NewProvisionService(store, ledger, launcher, filepath.Join(t.TempDir(), "instances"))
	ctx := context.Background()

	store.SetBalance(5, 1000)
	zipPath := filepath.Join(t.TempDir(), "ok.zip")
	writeZip(t, zipPath, map[string]string{"main.py": "pass\n"})
	tplID := seedTemplate(t, store, &model.Template{Name: "ok", FilePath: zipPath, Price: 300})

	_, err := svc.Provision(ctx, 5, tplID, "tok")
	var perr *ProvisioningError
	if !errors.As(err, &perr) || perr.Stage != "launch" {
		t.Fatalf("expected launch-stage ProvisioningError, got %v", err)
	}
	if balance, _ := ledger.GetBalance(ctx, 5); balance != 700 {
		t.Fatalf("balance = %v, want 700", balance)
	}
}

func TestProvisioningErrorTruncatesDiagnostic(t *testing.T) {
	long := strings.Repeat("x", 500)
	perr := &ProvisioningError{Stage: "unpack", Err: errors.New(long)}
	msg := perr.Error()
	if len(msg) > maxDiagnosticLen+50 {
		t.Fatalf("diagnostic not truncated: %d chars", len(msg))
	}
	if !strings.Contains(msg, "unpack") {
		t.Fatalf("stage missing from message: %s", msg)
	}
}

func TestUnpackRejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "evil.zip")
	writeZip(t, zipPath, map[string]string{"../escape.py": "pass\n"})

	target := filepath.Join(dir, "out")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := unpackArchive(zipPath, target); err == nil {
		t.Fatalf("expected error for escaping entry")
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.py")); !os.IsNotExist(err) {
		t.Fatalf("entry escaped the target dir")
	}
}
