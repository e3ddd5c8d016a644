package service

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NitroDevv/tgbot/internal/model"
	"github.com/NitroDevv/tgbot/internal/repository"
)

// MemoryStore is an in-memory stand-in for the repository, satisfying
// every store interface in this package. It mirrors the repository's
// sentinel errors and mutation rules so services can be tested without a
// database.
type MemoryStore struct {
	mu sync.Mutex

	users        map[int64]*model.User
	bonusPaid    map[int64]bool
	banned       map[int64]string
	balances     map[int64]float64
	transactions []model.BalanceTransaction
	payments     map[int64]*model.Payment
	nextPayment  int64
	templates    map[uuid.UUID]*model.Template
	instances    map[uuid.UUID]*model.Instance
	channels     []model.RequiredChannel
	settings     map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[int64]*model.User),
		bonusPaid:   make(map[int64]bool),
		banned:      make(map[int64]string),
		balances:    make(map[int64]float64),
		payments:    make(map[int64]*model.Payment),
		nextPayment: 1,
		templates:   make(map[uuid.UUID]*model.Template),
		instances:   make(map[uuid.UUID]*model.Instance),
		settings:    make(map[string]string),
	}
}

func (m *MemoryStore) GetUser(_ context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) CreateUser(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateUserPhone(_ context.Context, userID int64, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.PhoneNumber = &phone
	}
	return nil
}

func (m *MemoryStore) UpdateUserName(_ context.Context, userID int64, fullName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.FullName = &fullName
	}
	return nil
}

func (m *MemoryStore) GetUserByReferralCode(_ context.Context, code string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ReferralCode == code {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *MemoryStore) CountReferrals(_ context.Context, referrerID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.users {
		if u.ReferredBy != nil && *u.ReferredBy == referrerID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) IsReferralBonusPaid(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bonusPaid[userID], nil
}

func (m *MemoryStore) MarkReferralBonusPaid(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bonusPaid[userID] = true
	return nil
}

func (m *MemoryStore) AllUsers(_ context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CountUsers(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *MemoryStore) CountActiveUsers(_ context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[int64]bool)
	for _, inst := range m.instances {
		if !inst.CreatedAt.Before(since) {
			seen[inst.UserID] = true
		}
	}
	return len(seen), nil
}

func (m *MemoryStore) IsBanned(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.banned[userID]
	return ok, nil
}

func (m *MemoryStore) BanUser(_ context.Context, userID int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.banned[userID]; !ok {
		m.banned[userID] = reason
	}
	return nil
}

func (m *MemoryStore) UnbanUser(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.banned, userID)
	return nil
}

func (m *MemoryStore) GetUserBalance(_ context.Context, userID int64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID], nil
}

func (m *MemoryStore) UpdateBalance(_ context.Context, userID int64, amount float64, txType model.TransactionType, description string, referenceID *string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := m.balances[userID]
	after := before + amount
	if amount < 0 && after < 0 {
		return before, repository.ErrInsufficientBalance
	}
	m.balances[userID] = after
	m.transactions = append(m.transactions, model.BalanceTransaction{
		ID:            uuid.New(),
		UserID:        userID,
		Amount:        amount,
		Type:          txType,
		Description:   &description,
		ReferenceID:   referenceID,
		BalanceBefore: before,
		BalanceAfter:  after,
		CreatedAt:     time.Now(),
	})
	return after, nil
}

func (m *MemoryStore) GetBalanceTransactions(_ context.Context, userID int64, limit, offset int) ([]model.BalanceTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.BalanceTransaction
	for i := len(m.transactions) - 1; i >= 0; i-- {
		if m.transactions[i].UserID == userID {
			out = append(out, m.transactions[i])
		}
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Transactions returns the full audit trail, newest last. Test helper.
func (m *MemoryStore) Transactions() []model.BalanceTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.BalanceTransaction, len(m.transactions))
	copy(out, m.transactions)
	return out
}

// SetBalance seeds an account directly, bypassing the audit trail.
func (m *MemoryStore) SetBalance(userID int64, balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = balance
}

func (m *MemoryStore) CreatePayment(_ context.Context, userID int64, amount float64, screenshotPath string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextPayment
	m.nextPayment++
	m.payments[id] = &model.Payment{
		ID:             id,
		UserID:         userID,
		Amount:         amount,
		ScreenshotPath: screenshotPath,
		Status:         model.PaymentStatusPending,
		CreatedAt:      time.Now(),
	}
	return id, nil
}

func (m *MemoryStore) GetPayment(_ context.Context, id int64) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, repository.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) PendingPayments(_ context.Context) ([]model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Payment
	for _, p := range m.payments {
		if p.Status == model.PaymentStatusPending {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ResolvePayment(_ context.Context, id int64, status model.PaymentStatus, rejectReason *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return repository.ErrPaymentNotFound
	}
	if p.Status != model.PaymentStatusPending {
		return repository.ErrPaymentNotPending
	}
	now := time.Now()
	p.Status = status
	p.RejectReason = rejectReason
	p.ResolvedAt = &now
	return nil
}

func (m *MemoryStore) CreateTemplate(_ context.Context, tpl *model.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tpl.ID == uuid.Nil {
		tpl.ID = uuid.New()
	}
	tpl.CreatedAt = time.Now()
	cp := *tpl
	m.templates[tpl.ID] = &cp
	return nil
}

func (m *MemoryStore) GetTemplate(_ context.Context, id uuid.UUID) (*model.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl, ok := m.templates[id]
	if !ok {
		return nil, repository.ErrTemplateNotFound
	}
	cp := *tpl
	return &cp, nil
}

func (m *MemoryStore) ListTemplates(_ context.Context) ([]model.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Template, 0, len(m.templates))
	for _, tpl := range m.templates {
		out = append(out, *tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) DeleteTemplate(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[id]; !ok {
		return repository.ErrTemplateNotFound
	}
	delete(m.templates, id)
	return nil
}

func (m *MemoryStore) CreateInstance(_ context.Context, inst *model.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	now := time.Now()
	inst.PaymentDate = &now
	inst.CreatedAt = now
	cp := *inst
	m.instances[inst.ID] = &cp
	return nil
}

func (m *MemoryStore) withTemplate(inst *model.Instance) *model.InstanceWithTemplate {
	out := &model.InstanceWithTemplate{Instance: *inst}
	if inst.TemplateID != nil {
		if tpl, ok := m.templates[*inst.TemplateID]; ok {
			out.TemplateName = &tpl.Name
			out.RunCommand = &tpl.RunCommand
		}
	}
	return out
}

func (m *MemoryStore) GetInstance(_ context.Context, id uuid.UUID) (*model.InstanceWithTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, repository.ErrInstanceNotFound
	}
	return m.withTemplate(inst), nil
}

func (m *MemoryStore) ListUserInstances(_ context.Context, userID int64) ([]model.InstanceWithTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.InstanceWithTemplate
	for _, inst := range m.instances {
		if inst.UserID == userID {
			out = append(out, *m.withTemplate(inst))
		}
	}
	// Newest first, as the repository orders this listing.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateInstanceStatus(_ context.Context, id uuid.UUID, status model.InstanceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return repository.ErrInstanceNotFound
	}
	inst.Status = status
	return nil
}

func (m *MemoryStore) SetInstanceProcess(_ context.Context, id uuid.UUID, pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return repository.ErrInstanceNotFound
	}
	inst.PID = &pid
	return nil
}

func (m *MemoryStore) DeleteInstance(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[id]; !ok {
		return repository.ErrInstanceNotFound
	}
	delete(m.instances, id)
	return nil
}

func (m *MemoryStore) DecreaseDaysLeft(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inst := range m.instances {
		if inst.Status == model.InstanceStatusActive && inst.DaysLeft > 0 {
			inst.DaysLeft--
		}
	}
	return nil
}

func (m *MemoryStore) DisableExpiredInstances(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, inst := range m.instances {
		if inst.Status == model.InstanceStatusActive && inst.DaysLeft <= 0 {
			inst.Status = model.InstanceStatusExpired
			inst.DaysLeft = 0
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) InstancesExpiringWithin(_ context.Context, thresholdDays int) ([]model.InstanceWithTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.InstanceWithTemplate
	for _, inst := range m.instances {
		if inst.Status == model.InstanceStatusActive && inst.DaysLeft > 0 && inst.DaysLeft <= thresholdDays {
			out = append(out, *m.withTemplate(inst))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DaysLeft < out[j].DaysLeft })
	return out, nil
}

func (m *MemoryStore) RenewInstance(_ context.Context, id uuid.UUID, days int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return repository.ErrInstanceNotFound
	}
	inst.DaysLeft = days
	now := time.Now()
	inst.PaymentDate = &now
	return nil
}

func (m *MemoryStore) CountInstances(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instances), nil
}

func (m *MemoryStore) RequiredChannels(_ context.Context) ([]model.RequiredChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.RequiredChannel, len(m.channels))
	copy(out, m.channels)
	return out, nil
}

func (m *MemoryStore) AddRequiredChannel(_ context.Context, channelID, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.channels {
		if ch.ChannelID == channelID {
			return repository.ErrChannelExists
		}
	}
	m.channels = append(m.channels, model.RequiredChannel{
		ChannelID: channelID,
		Username:  username,
		AddedAt:   time.Now(),
	})
	return nil
}

func (m *MemoryStore) RemoveRequiredChannel(_ context.Context, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, ch := range m.channels {
		if ch.ChannelID == channelID {
			m.channels = append(m.channels[:i], m.channels[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) GetSetting(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[key]
	if !ok {
		return "", repository.ErrSettingNotFound
	}
	return v, nil
}

func (m *MemoryStore) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *MemoryStore) GetSettingFloat(_ context.Context, key string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[key]
	if !ok {
		return 0, repository.ErrSettingNotFound
	}
	return strconv.ParseFloat(v, 64)
}
