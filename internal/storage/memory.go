package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaycore/assistant-core/pkg/models"
)

// NewMemoryStore returns a Store backed entirely by in-process maps, used
// by unit tests and local development without a database.
func NewMemoryStore() Store {
	m := &memoryBackend{
		users:           map[string]*models.User{},
		platformLinks:   map[string]*models.PlatformLink{},
		personas:        map[string]*models.Persona{},
		conversations:   map[string]*models.Conversation{},
		messages:        map[string][]*models.Message{},
		memorySummaries: map[string][]*models.MemorySummary{},
		tokenLogs:       map[string][]*models.TokenLog{},
		jobs:            map[string]*models.ScheduledJob{},
		workflows:       map[string]*models.ScheduledWorkflow{},
		reminders:       map[string]*models.LocationReminder{},
		locations:       map[string]*models.UserLocation{},
		namedPlaces:     map[string]*models.UserNamedPlace{},
		credentials:     map[string]*models.UserCredential{},
	}
	return Store{
		Users:              (*memoryUserStore)(m),
		PlatformLinks:      (*memoryPlatformLinkStore)(m),
		Personas:           (*memoryPersonaStore)(m),
		Conversations:      (*memoryConversationStore)(m),
		Messages:           (*memoryMessageStore)(m),
		MemorySummaries:    (*memoryMemorySummaryStore)(m),
		TokenLogs:          (*memoryTokenLogStore)(m),
		ScheduledJobs:      (*memoryScheduledJobStore)(m),
		ScheduledWorkflows: (*memoryScheduledWorkflowStore)(m),
		LocationReminders:  (*memoryLocationReminderStore)(m),
		UserLocations:      (*memoryUserLocationStore)(m),
		UserNamedPlaces:    (*memoryUserNamedPlaceStore)(m),
		UserCredentials:    (*memoryUserCredentialStore)(m),
		ErrorLogs:          (*memoryErrorLogStore)(m),
	}
}

type memoryBackend struct {
	mu sync.RWMutex

	users           map[string]*models.User
	platformLinks   map[string]*models.PlatformLink // key: platform+"/"+platformUserID
	personas        map[string]*models.Persona
	conversations   map[string]*models.Conversation
	messages        map[string][]*models.Message // key: conversationID
	memorySummaries map[string][]*models.MemorySummary // key: userID
	tokenLogs       map[string][]*models.TokenLog // key: userID
	jobs            map[string]*models.ScheduledJob
	workflows       map[string]*models.ScheduledWorkflow
	reminders       map[string]*models.LocationReminder
	locations       map[string]*models.UserLocation // key: userID
	namedPlaces     map[string]*models.UserNamedPlace
	credentials     map[string]*models.UserCredential // key: userID+"/"+service+"/"+key
	errorLogs       []*models.ErrorLog
}

func linkKey(platform, platformUserID string) string { return platform + "/" + platformUserID }
func credKey(userID, service, key string) string     { return userID + "/" + service + "/" + key }

type memoryUserStore memoryBackend

func (m *memoryUserStore) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if _, ok := m.users[user.ID]; ok {
		return ErrAlreadyExists
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *memoryUserStore) Get(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *memoryUserStore) Update(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return ErrNotFound
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

type memoryPlatformLinkStore memoryBackend

func (m *memoryPlatformLinkStore) FindOrCreate(ctx context.Context, platform, platformUserID string) (*models.PlatformLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := linkKey(platform, platformUserID)
	if link, ok := m.platformLinks[key]; ok {
		clone := *link
		return &clone, nil
	}
	userID := uuid.NewString()
	m.users[userID] = &models.User{
		ID:         userID,
		Permission: models.PermissionUser,
		UsageResetAt: time.Now().UTC(),
		CreatedAt:  time.Now().UTC(),
	}
	link := &models.PlatformLink{
		ID:             uuid.NewString(),
		Platform:       platform,
		PlatformUserID: platformUserID,
		UserID:         userID,
		CreatedAt:      time.Now().UTC(),
	}
	m.platformLinks[key] = link
	clone := *link
	return &clone, nil
}

func (m *memoryPlatformLinkStore) Get(ctx context.Context, platform, platformUserID string) (*models.PlatformLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	link, ok := m.platformLinks[linkKey(platform, platformUserID)]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *link
	return &clone, nil
}

type memoryPersonaStore memoryBackend

func (m *memoryPersonaStore) Get(ctx context.Context, id string) (*models.Persona, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.personas[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (m *memoryPersonaStore) ResolveDefault(ctx context.Context, platform, platformServerID string) (*models.Persona, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var fallback *models.Persona
	for _, p := range m.personas {
		if !p.IsDefault {
			continue
		}
		if p.Platform == platform && p.PlatformServerID == platformServerID {
			clone := *p
			return &clone, nil
		}
		if p.PlatformServerID == "" {
			fallback = p
		}
	}
	if fallback == nil {
		return nil, ErrNotFound
	}
	clone := *fallback
	return &clone, nil
}

// AddPersona is a test helper for seeding personas directly.
func (m *memoryBackend) AddPersona(p *models.Persona) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	clone := *p
	m.personas[p.ID] = &clone
}

type memoryConversationStore memoryBackend

func (m *memoryConversationStore) Create(ctx context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	clone := *conv
	m.conversations[conv.ID] = &clone
	return nil
}

func (m *memoryConversationStore) Get(ctx context.Context, id string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (m *memoryConversationStore) FindActive(ctx context.Context, userID, platform, channelID, threadID string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *models.Conversation
	for _, c := range m.conversations {
		if c.UserID != userID || c.Platform != platform || c.PlatformChannelID != channelID || c.PlatformThreadID != threadID {
			continue
		}
		if c.IsSummarized {
			continue
		}
		if best == nil || c.LastActiveAt.After(best.LastActiveAt) {
			best = c
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	clone := *best
	return &clone, nil
}

func (m *memoryConversationStore) Update(ctx context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[conv.ID]; !ok {
		return ErrNotFound
	}
	clone := *conv
	m.conversations[conv.ID] = &clone
	return nil
}

func (m *memoryConversationStore) ListStaleUnsummarized(ctx context.Context, cutoff time.Time) ([]*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Conversation
	for _, c := range m.conversations {
		if c.IsSummarized {
			continue
		}
		if c.LastActiveAt.Before(cutoff) {
			clone := *c
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActiveAt.Before(out[j].LastActiveAt) })
	return out, nil
}

type memoryMessageStore memoryBackend

func (m *memoryMessageStore) Append(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	clone := *msg
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], &clone)
	return nil
}

func (m *memoryMessageStore) ListByConversation(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.messages[conversationID]
	if limit <= 0 || limit >= len(all) {
		out := make([]*models.Message, len(all))
		copy(out, all)
		return out, nil
	}
	start := len(all) - limit
	out := make([]*models.Message, limit)
	copy(out, all[start:])
	return out, nil
}

type memoryMemorySummaryStore memoryBackend

func (m *memoryMemorySummaryStore) Create(ctx context.Context, summary *models.MemorySummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if summary.ID == "" {
		summary.ID = uuid.NewString()
	}
	clone := *summary
	m.memorySummaries[summary.UserID] = append(m.memorySummaries[summary.UserID], &clone)
	return nil
}

func (m *memoryMemorySummaryStore) RecallByEmbedding(ctx context.Context, userID string, embedding []float32, topK int) ([]*models.MemorySummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := append([]*models.MemorySummary(nil), m.memorySummaries[userID]...)
	var withEmbedding []*models.MemorySummary
	for _, s := range all {
		if len(s.Embedding) > 0 {
			withEmbedding = append(withEmbedding, s)
		}
	}
	sort.Slice(withEmbedding, func(i, j int) bool {
		return cosineDistance(embedding, withEmbedding[i].Embedding) < cosineDistance(embedding, withEmbedding[j].Embedding)
	})
	if topK > 0 && topK < len(withEmbedding) {
		withEmbedding = withEmbedding[:topK]
	}
	return withEmbedding, nil
}

func (m *memoryMemorySummaryStore) RecallRecent(ctx context.Context, userID string, topK int) ([]*models.MemorySummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := append([]*models.MemorySummary(nil), m.memorySummaries[userID]...)
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if topK > 0 && topK < len(all) {
		all = all[:topK]
	}
	return all, nil
}

// cosineDistance mirrors pgvector's `<=>` operator (1 - cosine similarity)
// closely enough for deterministic ordering in tests.
func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 2 // maximally dissimilar sentinel
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	similarity := dot / (sqrt(normA) * sqrt(normB))
	return 1 - similarity
}

func sqrt(v float64) float64 {
	if v <= 0 {
		return 0
	}
	x := v
	for i := 0; i < 40; i++ {
		x = 0.5 * (x + v/x)
	}
	return x
}

type memoryTokenLogStore memoryBackend

func (m *memoryTokenLogStore) Create(ctx context.Context, log *models.TokenLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	clone := *log
	m.tokenLogs[log.UserID] = append(m.tokenLogs[log.UserID], &clone)
	return nil
}

func (m *memoryTokenLogStore) SumTokensThisMonth(ctx context.Context, userID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resetAt := time.Time{}
	if u, ok := m.users[userID]; ok {
		resetAt = u.UsageResetAt
	}
	var sum int64
	for _, l := range m.tokenLogs[userID] {
		if l.CreatedAt.Before(resetAt) {
			continue
		}
		sum += int64(l.InputTokens + l.OutputTokens)
	}
	return sum, nil
}

type memoryScheduledJobStore memoryBackend

func (m *memoryScheduledJobStore) Create(ctx context.Context, job *models.ScheduledJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	clone := *job
	m.jobs[job.ID] = &clone
	return nil
}

func (m *memoryScheduledJobStore) Get(ctx context.Context, id string) (*models.ScheduledJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *j
	return &clone, nil
}

func (m *memoryScheduledJobStore) Update(ctx context.Context, job *models.ScheduledJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	clone := *job
	m.jobs[job.ID] = &clone
	return nil
}

func (m *memoryScheduledJobStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*models.ScheduledJob
	for _, j := range m.jobs {
		if j.Status != models.JobStatusActive {
			continue
		}
		if j.NextRunAt == nil || j.NextRunAt.After(now) {
			continue
		}
		due = append(due, j)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(*due[j].NextRunAt) })
	if limit > 0 && limit < len(due) {
		due = due[:limit]
	}
	out := make([]*models.ScheduledJob, 0, len(due))
	for _, j := range due {
		j.Attempts++
		clone := *j
		out = append(out, &clone)
	}
	return out, nil
}

type memoryScheduledWorkflowStore memoryBackend

func (m *memoryScheduledWorkflowStore) Get(ctx context.Context, id string) (*models.ScheduledWorkflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *wf
	return &clone, nil
}

func (m *memoryScheduledWorkflowStore) Update(ctx context.Context, wf *models.ScheduledWorkflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[wf.ID]; !ok {
		return ErrNotFound
	}
	clone := *wf
	m.workflows[wf.ID] = &clone
	return nil
}

func (m *memoryScheduledWorkflowStore) AllJobsTerminal(ctx context.Context, workflowID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, j := range m.jobs {
		if j.WorkflowID != nil && *j.WorkflowID == workflowID && j.Status == models.JobStatusActive {
			return false, nil
		}
	}
	return true, nil
}

type memoryLocationReminderStore memoryBackend

func (m *memoryLocationReminderStore) Create(ctx context.Context, r *models.LocationReminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	clone := *r
	m.reminders[r.ID] = &clone
	return nil
}

func (m *memoryLocationReminderStore) Update(ctx context.Context, r *models.LocationReminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reminders[r.ID]; !ok {
		return ErrNotFound
	}
	clone := *r
	m.reminders[r.ID] = &clone
	return nil
}

func (m *memoryLocationReminderStore) ListActiveByUser(ctx context.Context) (map[string][]*models.LocationReminder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[string][]*models.LocationReminder{}
	for _, r := range m.reminders {
		if r.Status != models.ReminderActive {
			continue
		}
		clone := *r
		out[r.UserID] = append(out[r.UserID], &clone)
	}
	return out, nil
}

type memoryUserLocationStore memoryBackend

func (m *memoryUserLocationStore) Upsert(ctx context.Context, loc *models.UserLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *loc
	m.locations[loc.UserID] = &clone
	return nil
}

func (m *memoryUserLocationStore) Get(ctx context.Context, userID string) (*models.UserLocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loc, ok := m.locations[userID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *loc
	return &clone, nil
}

type memoryUserNamedPlaceStore memoryBackend

func (m *memoryUserNamedPlaceStore) Create(ctx context.Context, place *models.UserNamedPlace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if place.ID == "" {
		place.ID = uuid.NewString()
	}
	for _, p := range m.namedPlaces {
		if p.UserID == place.UserID && p.Name == place.Name {
			return ErrAlreadyExists
		}
	}
	clone := *place
	m.namedPlaces[place.ID] = &clone
	return nil
}

func (m *memoryUserNamedPlaceStore) FindByName(ctx context.Context, userID, name string) (*models.UserNamedPlace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.namedPlaces {
		if p.UserID == userID && p.Name == name {
			clone := *p
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

type memoryUserCredentialStore memoryBackend

func (m *memoryUserCredentialStore) Upsert(ctx context.Context, cred *models.UserCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}
	clone := *cred
	m.credentials[credKey(cred.UserID, cred.Service, cred.Key)] = &clone
	return nil
}

func (m *memoryUserCredentialStore) Get(ctx context.Context, userID, service, key string) (*models.UserCredential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.credentials[credKey(userID, service, key)]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *c
	return &clone, nil
}

type memoryErrorLogStore memoryBackend

func (m *memoryErrorLogStore) Create(ctx context.Context, entry *models.ErrorLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	clone := *entry
	m.errorLogs = append(m.errorLogs, &clone)
	return nil
}
