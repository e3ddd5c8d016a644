// Package conversation holds the per-account step machine that gates
// multi-message flows. Exactly one workflow can be in progress per account;
// entering a new workflow replaces whatever was there. State is transient
// and in-memory, mirroring how the bot treats an abandoned flow: it simply
// stays until the next unrelated command clears it.
package conversation

import (
	"strconv"
	"sync"
)

// Step identifies what input the workflow expects next. Steps are scoped to
// a workflow by prefix so a stray handler can never confuse, say, the
// deposit amount prompt with the admin top-up prompt.
type Step string

const (
	// Registration workflow.
	StepRegistrationPhone Step = "registration/phone"

	// Deposit workflow.
	StepDepositAmount     Step = "deposit/amount"
	StepDepositScreenshot Step = "deposit/screenshot"

	// Provisioning workflow.
	StepProvisionToken Step = "provision/token"

	// Admin workflows.
	StepAdminChannel        Step = "admin/channel"
	StepAdminTemplateFile   Step = "admin/template_file"
	StepAdminTemplateName   Step = "admin/template_name"
	StepAdminTemplatePrice  Step = "admin/template_price"
	StepAdminRunCommand     Step = "admin/run_command"
	StepAdminTopUpUser      Step = "admin/topup_user"
	StepAdminTopUpAmount    Step = "admin/topup_amount"
	StepAdminReferralAmount Step = "admin/referral_amount"
	StepAdminRejectReason   Step = "admin/reject_reason"
	StepAdminBroadcast      Step = "admin/broadcast"
)

// State is the live record of one account's workflow: the current step plus
// the field values collected so far.
type State struct {
	Step Step
	data map[string]string
}

func (s *State) Set(key, value string) {
	if s.data == nil {
		s.data = make(map[string]string)
	}
	s.data[key] = value
}

func (s *State) Get(key string) (string, bool) {
	v, ok := s.data[key]
	return v, ok
}

func (s *State) GetFloat(key string) (float64, bool) {
	v, ok := s.data[key]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (s *State) GetInt64(key string) (int64, bool) {
	v, ok := s.data[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s *State) SetFloat(key string, value float64) {
	s.Set(key, strconv.FormatFloat(value, 'f', -1, 64))
}

func (s *State) SetInt64(key string, value int64) {
	s.Set(key, strconv.FormatInt(value, 10))
}

// Manager owns all live conversation states, keyed by account id.
type Manager struct {
	mu     sync.Mutex
	states map[int64]*State
}

func NewManager() *Manager {
	return &Manager{states: make(map[int64]*State)}
}

// Enter starts a workflow at the given step, discarding any state the
// account had. The replacement is wholesale: no data survives from a
// previous workflow.
func (m *Manager) Enter(userID int64, step Step) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &State{Step: step, data: make(map[string]string)}
	m.states[userID] = st
	return st
}

// Get returns the account's live state, or nil when no workflow is active.
func (m *Manager) Get(userID int64) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[userID]
}

// Advance moves the account's current workflow to the next step, keeping
// collected data. It is a no-op when no workflow is active.
func (m *Manager) Advance(userID int64, step Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[userID]; ok {
		st.Step = step
	}
}

// Finish clears the account's workflow after successful completion.
func (m *Manager) Finish(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, userID)
}

// Cancel aborts the account's workflow. Identical effect to Finish; kept
// separate so call sites read as what they are.
func (m *Manager) Cancel(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, userID)
}
