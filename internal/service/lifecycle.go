package service

import (
	"context"
	"errors"
	"log"
	"os"
	"strconv"

	"github.com/google/uuid"

	"github.com/NitroDevv/tgbot/internal/model"
	"github.com/NitroDevv/tgbot/internal/repository"
	"github.com/NitroDevv/tgbot/internal/runner"
)

type LifecycleStore interface {
	GetInstance(ctx context.Context, id uuid.UUID) (*model.InstanceWithTemplate, error)
	ListUserInstances(ctx context.Context, userID int64) ([]model.InstanceWithTemplate, error)
	UpdateInstanceStatus(ctx context.Context, id uuid.UUID, status model.InstanceStatus) error
	SetInstanceProcess(ctx context.Context, id uuid.UUID, pid int) error
	DeleteInstance(ctx context.Context, id uuid.UUID) error
	DecreaseDaysLeft(ctx context.Context) error
	DisableExpiredInstances(ctx context.Context) (int64, error)
	InstancesExpiringWithin(ctx context.Context, thresholdDays int) ([]model.InstanceWithTemplate, error)
	RenewInstance(ctx context.Context, id uuid.UUID, days int) error
}

// LifecycleService owns the running state of instances after provisioning:
// manual start/stop, expiry accounting, renewal, teardown.
type LifecycleService struct {
	store    LifecycleStore
	launcher runner.Launcher
	notifier Notifier
}

func NewLifecycleService(store LifecycleStore, launcher runner.Launcher) *LifecycleService {
	return &LifecycleService{store: store, launcher: launcher}
}

func (s *LifecycleService) SetNotifier(n Notifier) {
	s.notifier = n
}

// get loads the instance and verifies ownership. A miss on either lands on
// the same ErrNotFound.
func (s *LifecycleService) get(ctx context.Context, userID int64, id uuid.UUID) (*model.InstanceWithTemplate, error) {
	inst, err := s.store.GetInstance(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrInstanceNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if inst.UserID != userID {
		return nil, ErrNotFound
	}
	return inst, nil
}

func (s *LifecycleService) Get(ctx context.Context, userID int64, id uuid.UUID) (*model.InstanceWithTemplate, error) {
	return s.get(ctx, userID, id)
}

func (s *LifecycleService) ListForUser(ctx context.Context, userID int64) ([]model.InstanceWithTemplate, error) {
	return s.store.ListUserInstances(ctx, userID)
}

// Start relaunches a stopped or expired instance. Remaining days are NOT
// reset; an expired instance comes back active with zero days and the
// next daily tick expires it again unless an admin renews it first.
func (s *LifecycleService) Start(ctx context.Context, userID int64, id uuid.UUID) error {
	inst, err := s.get(ctx, userID, id)
	if err != nil {
		return err
	}
	if inst.Status == model.InstanceStatusActive {
		return ErrIllegalTransition
	}

	runCommand := ""
	if inst.RunCommand != nil {
		runCommand = *inst.RunCommand
	}
	entrypoint, err := findEntrypoint(inst.WorkDir)
	if err != nil {
		return &ProvisioningError{Stage: "entrypoint", Err: err}
	}
	pid, err := s.launcher.Launch(ctx, runner.LaunchSpec{
		WorkDir:    inst.WorkDir,
		Entrypoint: entrypoint,
		RunCommand: runCommand,
		LogPath:    inst.LogPath,
		OwnerID:    inst.UserID,
	})
	if err != nil {
		return &ProvisioningError{Stage: "launch", Err: err}
	}

	if err := s.store.SetInstanceProcess(ctx, id, pid); err != nil {
		return err
	}
	if err := s.store.UpdateInstanceStatus(ctx, id, model.InstanceStatusActive); err != nil {
		return err
	}
	log.Printf("[Lifecycle] instance started: user=%d instance=%s pid=%d days_left=%d", userID, id, pid, inst.DaysLeft)
	return nil
}

// Stop marks the instance stopped and signals its process if one is
// recorded. A dead pid is not an error.
func (s *LifecycleService) Stop(ctx context.Context, userID int64, id uuid.UUID) error {
	inst, err := s.get(ctx, userID, id)
	if err != nil {
		return err
	}
	if inst.Status != model.InstanceStatusActive {
		return ErrIllegalTransition
	}

	s.killProcess(inst.PID)
	if err := s.store.UpdateInstanceStatus(ctx, id, model.InstanceStatusStopped); err != nil {
		return err
	}
	log.Printf("[Lifecycle] instance stopped: user=%d instance=%s", userID, id)
	return nil
}

// Delete tears the instance down completely. The purchase is never
// refunded. Workdir removal is best effort; the row is gone either way.
func (s *LifecycleService) Delete(ctx context.Context, userID int64, id uuid.UUID) error {
	inst, err := s.get(ctx, userID, id)
	if err != nil {
		return err
	}

	s.killProcess(inst.PID)
	if err := s.store.DeleteInstance(ctx, id); err != nil {
		return err
	}
	if inst.WorkDir != "" {
		if err := os.RemoveAll(inst.WorkDir); err != nil {
			log.Printf("[Lifecycle] workdir cleanup failed: instance=%s dir=%s err=%v", id, inst.WorkDir, err)
		}
	}
	log.Printf("[Lifecycle] instance deleted: user=%d instance=%s", userID, id)
	return nil
}

// Renew sets the entitlement counter to the granted days and moves an
// expired instance back to stopped so the owner can start it.
func (s *LifecycleService) Renew(ctx context.Context, userID int64, id uuid.UUID, days int) error {
	if days <= 0 {
		return ErrInvalidAmount
	}
	inst, err := s.get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.RenewInstance(ctx, id, days); err != nil {
		return err
	}
	if inst.Status == model.InstanceStatusExpired {
		if err := s.store.UpdateInstanceStatus(ctx, id, model.InstanceStatusStopped); err != nil {
			return err
		}
	}
	return nil
}

// Logs returns up to maxBytes from the tail of the instance log.
func (s *LifecycleService) Logs(ctx context.Context, userID int64, id uuid.UUID, maxBytes int64) (string, error) {
	inst, err := s.get(ctx, userID, id)
	if err != nil {
		return "", err
	}
	f, err := os.Open(inst.LogPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	offset := int64(0)
	if info.Size() > maxBytes {
		offset = info.Size() - maxBytes
	}
	buf := make([]byte, info.Size()-offset)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Tick is the daily accounting pass: decrement remaining days on active
// instances, then expire the ones that hit zero. Returns how many expired.
func (s *LifecycleService) Tick(ctx context.Context) (int64, error) {
	if err := s.store.DecreaseDaysLeft(ctx); err != nil {
		return 0, err
	}
	expired, err := s.store.DisableExpiredInstances(ctx)
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		log.Printf("[Lifecycle] expired %d instance(s)", expired)
	}
	return expired, nil
}

// NotifyExpiring messages owners whose instances run out within
// thresholdDays. Delivery failures are logged and skipped.
func (s *LifecycleService) NotifyExpiring(ctx context.Context, thresholdDays int) (int, error) {
	if s.notifier == nil {
		return 0, nil
	}
	instances, err := s.store.InstancesExpiringWithin(ctx, thresholdDays)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, inst := range instances {
		name := "your instance"
		if inst.TemplateName != nil {
			name = *inst.TemplateName
		}
		text := formatExpiryWarning(name, inst.DaysLeft)
		if err := s.notifier.SendMessage(inst.UserID, text); err != nil {
			log.Printf("[Lifecycle] expiry notice failed: user=%d instance=%s err=%v", inst.UserID, inst.ID, err)
			continue
		}
		sent++
	}
	return sent, nil
}

func formatExpiryWarning(name string, daysLeft int) string {
	if daysLeft == 1 {
		return "⚠️ " + name + " expires tomorrow. Renew it to keep it running."
	}
	return "⚠️ " + name + " expires in " + strconv.Itoa(daysLeft) + " days. Renew it to keep it running."
}

func (s *LifecycleService) killProcess(pid *int) {
	if pid == nil || *pid <= 0 {
		return
	}
	proc, err := os.FindProcess(*pid)
	if err != nil {
		return
	}
	if err := proc.Kill(); err != nil {
		log.Printf("[Lifecycle] kill pid=%d failed: %v", *pid, err)
	}
}
