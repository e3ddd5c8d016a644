package service

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NitroDevv/tgbot/internal/model"
	"github.com/NitroDevv/tgbot/internal/repository"
	"github.com/NitroDevv/tgbot/internal/runner"
)

// tokenPlaceholder is the literal template authors put where the buyer's
// credential goes.
const tokenPlaceholder = "YOUR_BOT_TOKEN"

// tokenAssignRe matches the usual credential assignment shapes
// (BOT_TOKEN = "...", token: '...') so templates without the placeholder
// still get the buyer's token injected.
var tokenAssignRe = regexp.MustCompile(`(?i)((?:BOT_TOKEN|API_TOKEN|token|API_KEY)\s*[:=]\s*)(['"]).*?(['"])`)

// entrypointNames is the launch candidate order inside an unpacked template.
var entrypointNames = []string{"main.py", "bot.py", "start.py", "index.py", "app.py"}

type ProvisionStore interface {
	GetTemplate(ctx context.Context, id uuid.UUID) (*model.Template, error)
	CreateInstance(ctx context.Context, inst *model.Instance) error
}

// ProvisionService turns a purchased template into a running instance:
// debit, unpack, token injection, entrypoint discovery, launch, record.
type ProvisionService struct {
	store        ProvisionStore
	ledger       *LedgerService
	launcher     runner.Launcher
	instancesDir string
}

func NewProvisionService(store ProvisionStore, ledger *LedgerService, launcher runner.Launcher, instancesDir string) *ProvisionService {
	return &ProvisionService{
		store:        store,
		ledger:       ledger,
		launcher:     launcher,
		instancesDir: instancesDir,
	}
}

// Provision creates and starts an instance of the template for the user.
// The price is debited before any filesystem work; a failure after the
// debit returns *ProvisioningError and the account stays debited.
func (s *ProvisionService) Provision(ctx context.Context, userID int64, templateID uuid.UUID, token string) (*model.Instance, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	tpl, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		if errors.Is(err, repository.ErrTemplateNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	ref := fmt.Sprintf("template:%s", tpl.ID)
	if _, err := s.ledger.Debit(ctx, userID, tpl.Price, model.TransactionTypeInstancePurchase, "Purchase: "+tpl.Name, &ref); err != nil {
		return nil, err
	}

	workDir := filepath.Join(s.instancesDir, fmt.Sprintf("bot_%d_%s_%d", userID, tpl.ID, time.Now().Unix()))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, &ProvisioningError{Stage: "workdir", Err: err}
	}

	if tpl.IsArchive() {
		if err := unpackArchive(tpl.FilePath, workDir); err != nil {
			return nil, &ProvisioningError{Stage: "unpack", Err: err}
		}
	} else {
		dst := filepath.Join(workDir, filepath.Base(tpl.FilePath))
		if err := copyFile(tpl.FilePath, dst); err != nil {
			return nil, &ProvisioningError{Stage: "copy", Err: err}
		}
	}

	if err := injectToken(workDir, token); err != nil {
		return nil, &ProvisioningError{Stage: "token", Err: err}
	}

	entrypoint, err := findEntrypoint(workDir)
	if err != nil {
		return nil, &ProvisioningError{Stage: "entrypoint", Err: err}
	}

	logPath := filepath.Join(workDir, "log.txt")
	pid, err := s.launcher.Launch(ctx, runner.LaunchSpec{
		WorkDir:    workDir,
		Entrypoint: entrypoint,
		RunCommand: tpl.RunCommand,
		LogPath:    logPath,
		OwnerID:    userID,
	})
	if err != nil {
		return nil, &ProvisioningError{Stage: "launch", Err: err}
	}

	inst := &model.Instance{
		UserID:     userID,
		TemplateID: &tpl.ID,
		Token:      token,
		Status:     model.InstanceStatusActive,
		WorkDir:    workDir,
		LogPath:    logPath,
		PID:        &pid,
		DaysLeft:   model.DefaultInstanceDays,
	}
	if err := s.store.CreateInstance(ctx, inst); err != nil {
		return nil, &ProvisioningError{Stage: "record", Err: err}
	}

	log.Printf("[Provision] instance created: user=%d template=%s instance=%s pid=%d", userID, tpl.ID, inst.ID, pid)
	return inst, nil
}

// unpackArchive extracts a zip into dir, rejecting entries that escape it.
func unpackArchive(src, dir string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(dir, filepath.Clean(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes target dir: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode().Perm()|0o600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// injectToken rewrites every .py file under dir, replacing the placeholder
// and any recognized credential assignment with the buyer's token.
func injectToken(dir, token string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".py") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		content := strings.ReplaceAll(string(data), tokenPlaceholder, token)
		// The token is opaque text; $ sequences in it must not expand as
		// replacement references.
		escaped := strings.ReplaceAll(token, "$", "$$")
		content = tokenAssignRe.ReplaceAllString(content, "${1}${2}"+escaped+"${3}")
		if content == string(data) {
			return nil
		}
		return os.WriteFile(path, []byte(content), info.Mode().Perm())
	})
}

// findEntrypoint picks the script to launch: well-known names first, then
// the first .py file found anywhere in the tree.
func findEntrypoint(dir string) (string, error) {
	for _, name := range entrypointNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	var found string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".py") {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", errors.New("no runnable script in template")
	}
	return found, nil
}
