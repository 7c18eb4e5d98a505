package app

import (
	"context"
	"sync"
	"time"

	"github.com/owdiscord/trakt/internal/domain"
)

// --- UserRepository mock ---

type appliedSanction struct {
	user         domain.UserID
	kind         domain.SanctionKind
	delayPeriods int
}

type upsertCall struct {
	user  domain.UserID
	score int
}

type mockUserRepo struct {
	mu sync.Mutex

	awards map[domain.UserID]bool
	scores map[domain.UserID]int

	upsertCalls     []upsertCall
	upsertQualifies map[domain.UserID]bool
	upsertErrFor    map[domain.UserID]error

	advanceQualified []domain.UserID
	advanceErr       error

	decayResult domain.DecayResult
	decayErr    error

	hasAwardErr error
	setAwardErr error

	sanctions       []appliedSanction
	cleared         []appliedSanction
	sanctionErr     error
	resetUserCalls  []domain.UserID
	userLeftCalls   []domain.UserID
	overrideTimeErr error
	userRecord      *domain.User
	userErr         error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		awards:          map[domain.UserID]bool{},
		scores:          map[domain.UserID]int{},
		upsertQualifies: map[domain.UserID]bool{},
		upsertErrFor:    map[domain.UserID]error{},
	}
}

func (m *mockUserRepo) MessageScore(ctx context.Context, id domain.UserID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scores[id], nil
}

func (m *mockUserRepo) TimeScore(ctx context.Context, id domain.UserID) (int, error) {
	return 0, nil
}

func (m *mockUserRepo) User(ctx context.Context, id domain.UserID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userErr != nil {
		return nil, m.userErr
	}
	if m.userRecord == nil {
		return nil, domain.ErrUserNotFound
	}
	return m.userRecord, nil
}

func (m *mockUserRepo) UpsertMessageScore(ctx context.Context, id domain.UserID, score int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.upsertErrFor[id]; err != nil {
		return false, err
	}
	m.upsertCalls = append(m.upsertCalls, upsertCall{user: id, score: score})
	m.scores[id] = score
	return m.upsertQualifies[id], nil
}

func (m *mockUserRepo) AdvanceTimeScores(ctx context.Context) ([]domain.UserID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.advanceQualified, m.advanceErr
}

func (m *mockUserRepo) DecayMessageScores(ctx context.Context) (domain.DecayResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decayResult, m.decayErr
}

func (m *mockUserRepo) HasAward(ctx context.Context, id domain.UserID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasAwardErr != nil {
		return false, m.hasAwardErr
	}
	return m.awards[id], nil
}

func (m *mockUserRepo) SetAward(ctx context.Context, id domain.UserID, has bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setAwardErr != nil {
		return m.setAwardErr
	}
	m.awards[id] = has
	return nil
}

func (m *mockUserRepo) AwardHolders(ctx context.Context) (map[domain.UserID]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	holders := map[domain.UserID]struct{}{}
	for id, has := range m.awards {
		if has {
			holders[id] = struct{}{}
		}
	}
	return holders, nil
}

func (m *mockUserRepo) ApplySanction(ctx context.Context, id domain.UserID, kind domain.SanctionKind, delayPeriods int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sanctionErr != nil {
		return m.sanctionErr
	}
	m.sanctions = append(m.sanctions, appliedSanction{user: id, kind: kind, delayPeriods: delayPeriods})
	return nil
}

func (m *mockUserRepo) ClearSanction(ctx context.Context, id domain.UserID, kind domain.SanctionKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sanctionErr != nil {
		return m.sanctionErr
	}
	m.cleared = append(m.cleared, appliedSanction{user: id, kind: kind})
	return nil
}

func (m *mockUserRepo) OverrideTimeScore(ctx context.Context, id domain.UserID, value int) error {
	return m.overrideTimeErr
}

func (m *mockUserRepo) ResetUser(ctx context.Context, id domain.UserID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetUserCalls = append(m.resetUserCalls, id)
	_, existed := m.scores[id]
	delete(m.scores, id)
	return existed, nil
}

func (m *mockUserRepo) UserLeft(ctx context.Context, id domain.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userLeftCalls = append(m.userLeftCalls, id)
	m.awards[id] = false
	return nil
}

func (m *mockUserRepo) getSanctions() []appliedSanction {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]appliedSanction, len(m.sanctions))
	copy(cp, m.sanctions)
	return cp
}

func (m *mockUserRepo) getCleared() []appliedSanction {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]appliedSanction, len(m.cleared))
	copy(cp, m.cleared)
	return cp
}

func (m *mockUserRepo) getUpserts() []upsertCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]upsertCall, len(m.upsertCalls))
	copy(cp, m.upsertCalls)
	return cp
}

// --- VoiceRepository mock ---

type voiceTimeCall struct {
	user domain.UserID
	d    time.Duration
}

type mockVoiceRepo struct {
	mu sync.Mutex

	awards map[domain.UserID]bool

	added       []voiceTimeCall
	addErr      error
	tickResult  domain.VoiceTickResult
	tickErr     error
	voiceErr    error
	setVoiceErr error
}

func newMockVoiceRepo() *mockVoiceRepo {
	return &mockVoiceRepo{awards: map[domain.UserID]bool{}}
}

func (m *mockVoiceRepo) AddVoiceTime(ctx context.Context, id domain.UserID, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	m.added = append(m.added, voiceTimeCall{user: id, d: d})
	return nil
}

func (m *mockVoiceRepo) VoiceTick(ctx context.Context) (domain.VoiceTickResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tickResult, m.tickErr
}

func (m *mockVoiceRepo) VoiceAward(ctx context.Context, id domain.UserID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.voiceErr != nil {
		return false, m.voiceErr
	}
	return m.awards[id], nil
}

func (m *mockVoiceRepo) SetVoiceAward(ctx context.Context, id domain.UserID, has bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setVoiceErr != nil {
		return m.setVoiceErr
	}
	m.awards[id] = has
	return nil
}

func (m *mockVoiceRepo) getAdded() []voiceTimeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]voiceTimeCall, len(m.added))
	copy(cp, m.added)
	return cp
}

// --- RoleAssigner / Notifier mocks ---

type roleCall struct {
	user   domain.UserID
	reason string
}

type mockRoles struct {
	mu            sync.Mutex
	grants        []roleCall
	revokes       []roleCall
	grantErr      error
	revokeErr     error
	grantAttempts int

	// When set, GrantRole signals started and blocks until release is closed.
	started chan struct{}
	release chan struct{}
}

func (m *mockRoles) GrantRole(ctx context.Context, id domain.UserID, reason string) error {
	if m.started != nil {
		m.started <- struct{}{}
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grantAttempts++
	if m.grantErr != nil {
		return m.grantErr
	}
	m.grants = append(m.grants, roleCall{user: id, reason: reason})
	return nil
}

func (m *mockRoles) getGrantAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grantAttempts
}

func (m *mockRoles) RevokeRole(ctx context.Context, id domain.UserID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revokeErr != nil {
		return m.revokeErr
	}
	m.revokes = append(m.revokes, roleCall{user: id, reason: reason})
	return nil
}

func (m *mockRoles) getGrants() []roleCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]roleCall, len(m.grants))
	copy(cp, m.grants)
	return cp
}

func (m *mockRoles) getRevokes() []roleCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]roleCall, len(m.revokes))
	copy(cp, m.revokes)
	return cp
}

type mockAppNotifier struct {
	mu            sync.Mutex
	announcements []string
}

func (m *mockAppNotifier) AnnounceAward(ctx context.Context, id domain.UserID, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.announcements = append(m.announcements, msg)
	return nil
}

func (m *mockAppNotifier) NotifyFollow(ctx context.Context, owner, target domain.UserID, event domain.EventContext) error {
	return nil
}

func (m *mockAppNotifier) getAnnouncements() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]string, len(m.announcements))
	copy(cp, m.announcements)
	return cp
}

// --- ProgressCache mock ---

type mockCache struct {
	mu sync.Mutex

	snapshot []domain.ProgressSnapshot
	scores   map[domain.UserID]int

	submitted  []domain.UserID
	overridden []domain.ProgressSnapshot
	decayed    []int
	evictCalls int
	removed    []map[domain.UserID]struct{}
	marked     []domain.UserID
	unawarded  []domain.UserID
}

func newMockCache() *mockCache {
	return &mockCache{scores: map[domain.UserID]int{}}
}

func (m *mockCache) SubmitProgress(id domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, id)
}

func (m *mockCache) MessageScoreForUser(id domain.UserID) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	score, ok := m.scores[id]
	return score, ok
}

func (m *mockCache) OverrideMessageScore(id domain.UserID, value int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overridden = append(m.overridden, domain.ProgressSnapshot{User: id, Score: value})
	m.scores[id] = value
}

func (m *mockCache) Decay(amount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decayed = append(m.decayed, amount)
}

func (m *mockCache) Snapshot() []domain.ProgressSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]domain.ProgressSnapshot, len(m.snapshot))
	copy(cp, m.snapshot)
	return cp
}

func (m *mockCache) EvictIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictCalls++
}

func (m *mockCache) RemoveUsers(ids map[domain.UserID]struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, ids)
}

func (m *mockCache) MarkAwarded(id domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked = append(m.marked, id)
}

func (m *mockCache) Unaward(id domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unawarded = append(m.unawarded, id)
}

func (m *mockCache) getMarked() []domain.UserID {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]domain.UserID, len(m.marked))
	copy(cp, m.marked)
	return cp
}

func (m *mockCache) getUnawarded() []domain.UserID {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]domain.UserID, len(m.unawarded))
	copy(cp, m.unawarded)
	return cp
}

// --- Awarder mock ---

type mockAwarder struct {
	mu            sync.Mutex
	granted       []domain.UserID
	stripped      []domain.UserID
	strippedGone  []domain.UserID
	grantedVoice  []domain.UserID
	strippedVoice []domain.UserID
}

func (m *mockAwarder) Grant(ctx context.Context, id domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.granted = append(m.granted, id)
}

func (m *mockAwarder) Strip(ctx context.Context, id domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stripped = append(m.stripped, id)
}

func (m *mockAwarder) StripRemoved(ctx context.Context, id domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strippedGone = append(m.strippedGone, id)
}

func (m *mockAwarder) GrantVoice(ctx context.Context, id domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grantedVoice = append(m.grantedVoice, id)
}

func (m *mockAwarder) StripVoice(ctx context.Context, id domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strippedVoice = append(m.strippedVoice, id)
}

func (m *mockAwarder) getGranted() []domain.UserID {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]domain.UserID, len(m.granted))
	copy(cp, m.granted)
	return cp
}

func (m *mockAwarder) getStrippedGone() []domain.UserID {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]domain.UserID, len(m.strippedGone))
	copy(cp, m.strippedGone)
	return cp
}
