// Package session implements the conversation lifecycle manager: the
// active/concluded state machine, the single-active-session invariant,
// message append/title/summary generation, and the idle monitor, per
// spec.md §4.G.
package session

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fyang0507/notion-rag-core/internal/llm"
	"github.com/fyang0507/notion-rag-core/internal/ragerrors"
	"github.com/fyang0507/notion-rag-core/internal/store"
)

const (
	summaryMessageCount = 12 // N in generate_summary
	titleWordLimit      = 8
	cjkRatioThreshold    = 0.3
)

const (
	titlePrompt = "Write a title of at most 8 words for a conversation that begins with this message. " +
		"Respond with the title only, no quotes, no preamble.\n\n%s"

	summaryPrompt = "Summarize the following conversation in 2-3 sentences.\n\n%s"
)

// Manager owns the session lifecycle. ensure_single_active_session is
// serialized by lock, either the in-process mutex (Lock) or a Redis
// SETNX-based distributed lock (RedisLock), so more than one request
// worker can share the same store safely.
type Manager struct {
	Store Store
	Chat  llm.ChatProvider
	Lock  Locker
	Log   zerolog.Logger
}

// Store is the subset of store.Store the session manager depends on.
type Store interface {
	CreateSession(ctx context.Context, s store.ChatSession) (store.ChatSession, error)
	GetSession(ctx context.Context, id uuid.UUID) (store.ChatSession, error)
	GetActiveSession(ctx context.Context) (store.ChatSession, bool, error)
	UpdateSession(ctx context.Context, s store.ChatSession) error
	ListIdleCandidates(ctx context.Context, idleSince int64) ([]store.ChatSession, error)
	AppendMessage(ctx context.Context, msg store.ChatMessage) (store.ChatMessage, error)
	ListMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]store.ChatMessage, error)
}

// New constructs a Manager with an in-process mutex lock by default.
func New(st Store, chat llm.ChatProvider, log zerolog.Logger) *Manager {
	return &Manager{Store: st, Chat: chat, Lock: &MutexLock{}, Log: log}
}

// EnsureSingleActiveSession is the serialization point of spec.md §4.G: it
// reads the currently-active session and, if different from target,
// concludes it before activating target. Callers hold the lock for the
// whole read-then-write sequence so concurrent session creations cannot
// race two sessions into "active" simultaneously.
func (m *Manager) EnsureSingleActiveSession(ctx context.Context, target uuid.UUID) error {
	unlock, err := m.Lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: acquire session lock: %v", ragerrors.StoreFailure, err)
	}
	defer unlock()

	active, found, err := m.Store.GetActiveSession(ctx)
	if err != nil {
		return fmt.Errorf("%w: get active session: %v", ragerrors.StoreFailure, err)
	}
	if found && active.ID != target {
		if err := m.concludeLocked(ctx, active, "superseded", true); err != nil {
			return err
		}
	}

	targetSession, err := m.Store.GetSession(ctx, target)
	if err != nil {
		return fmt.Errorf("%w: get target session: %v", ragerrors.SessionNotFound, err)
	}
	if targetSession.Status != store.SessionActive {
		targetSession.Status = store.SessionActive
		if err := m.Store.UpdateSession(ctx, targetSession); err != nil {
			return fmt.Errorf("%w: activate session: %v", ragerrors.StoreFailure, err)
		}
	}
	return nil
}

// CreateSession starts a new active session, concluding any
// previously-active one.
func (m *Manager) CreateSession(ctx context.Context) (store.ChatSession, error) {
	s, err := m.Store.CreateSession(ctx, store.ChatSession{
		ID:     uuid.New(),
		Status: store.SessionActive,
	})
	if err != nil {
		return store.ChatSession{}, fmt.Errorf("%w: create session: %v", ragerrors.StoreFailure, err)
	}
	if err := m.EnsureSingleActiveSession(ctx, s.ID); err != nil {
		return store.ChatSession{}, err
	}
	return m.Store.GetSession(ctx, s.ID)
}

// AppendMessage appends msg to sessionID, resuming the session to active
// first if it was concluded, per spec.md §4.G.
func (m *Manager) AppendMessage(ctx context.Context, sessionID uuid.UUID, msg store.ChatMessage) (store.ChatMessage, error) {
	s, err := m.Store.GetSession(ctx, sessionID)
	if err != nil {
		return store.ChatMessage{}, fmt.Errorf("%w: %v", ragerrors.SessionNotFound, err)
	}
	if s.Status == store.SessionConcluded {
		if err := m.EnsureSingleActiveSession(ctx, sessionID); err != nil {
			return store.ChatMessage{}, err
		}
	}

	msg.SessionID = sessionID
	saved, err := m.Store.AppendMessage(ctx, msg)
	if err != nil {
		return store.ChatMessage{}, fmt.Errorf("%w: append message: %v", ragerrors.StoreFailure, err)
	}

	if s.Title == "" && msg.Role == store.RoleUser {
		if title, err := m.GenerateTitle(ctx, sessionID); err == nil {
			s.Title = title
			s.UpdatedAt = saved.CreatedAt
			_ = m.Store.UpdateSession(ctx, s)
		}
	}
	return saved, nil
}

// GenerateTitle implements spec.md §4.G's generate_title: verbatim if the
// first user message is short enough, else an LLM-generated title,
// falling back to truncation on LLM failure.
func (m *Manager) GenerateTitle(ctx context.Context, sessionID uuid.UUID) (string, error) {
	messages, err := m.Store.ListMessages(ctx, sessionID, 1)
	if err != nil {
		return "", fmt.Errorf("%w: list messages: %v", ragerrors.StoreFailure, err)
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("%w: no messages to title from", ragerrors.SessionNotFound)
	}
	first := messages[0].Content

	if isShortEnoughForTitle(first) {
		return first, nil
	}

	if m.Chat != nil {
		resp, err := m.Chat.Complete(ctx, llm.CompletionRequest{
			Messages: []llm.Message{{Role: "user", Content: fmt.Sprintf(titlePrompt, first)}},
		})
		if err == nil {
			title := strings.TrimSpace(resp.Content)
			if title != "" {
				return truncateWords(title, titleWordLimit), nil
			}
		}
	}
	return truncateWords(first, titleWordLimit), nil
}

// GenerateSummary implements generate_summary: the first N messages
// summarized by the LLM.
func (m *Manager) GenerateSummary(ctx context.Context, sessionID uuid.UUID) (string, error) {
	messages, err := m.Store.ListMessages(ctx, sessionID, summaryMessageCount)
	if err != nil {
		return "", fmt.Errorf("%w: list messages: %v", ragerrors.StoreFailure, err)
	}
	if len(messages) == 0 {
		return "", nil
	}

	var b strings.Builder
	for _, msg := range messages {
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}

	if m.Chat == nil {
		return "", fmt.Errorf("%w: no chat provider configured", ragerrors.LLMFailure)
	}
	resp, err := m.Chat.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: fmt.Sprintf(summaryPrompt, b.String())}},
	})
	if err != nil {
		return "", fmt.Errorf("%w: generate summary: %v", ragerrors.LLMFailure, err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// ConcludeSession implements conclude_session: only for sessions with
// message_count >= 2; regenerates the title if distinct, generates a
// summary if absent, sets status to concluded. A session with fewer than
// 2 messages is left untouched — this is the explicit/idle-monitor entry
// point, not the supersession path (see EnsureSingleActiveSession).
func (m *Manager) ConcludeSession(ctx context.Context, sessionID uuid.UUID, reason string) error {
	s, err := m.Store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("%w: %v", ragerrors.SessionNotFound, err)
	}
	return m.concludeLocked(ctx, s, reason, false)
}

// concludeLocked transitions s to concluded. When force is false (the
// explicit/idle-monitor path), a session with message_count < 2 is left
// untouched entirely, per spec.md §4.G's conclude_session guard. When
// force is true (EnsureSingleActiveSession superseding the active
// session), the status transition always happens regardless of message
// count — the single-active-session invariant must hold even for a
// session that never grew past its first message — while title/summary
// regeneration still only runs once there's enough to summarize.
func (m *Manager) concludeLocked(ctx context.Context, s store.ChatSession, reason string, force bool) error {
	if s.MessageCount < 2 && !force {
		return nil
	}

	if s.MessageCount >= 2 {
		if title, err := m.GenerateTitle(ctx, s.ID); err == nil && title != s.Title {
			s.Title = title
		}
		if s.Summary == nil {
			if summary, err := m.GenerateSummary(ctx, s.ID); err == nil && summary != "" {
				s.Summary = &summary
			} else if err != nil {
				m.Log.Warn().Err(err).Str("session_id", s.ID.String()).Str("reason", reason).Msg("summary generation failed at conclude")
			}
		}
	}

	s.Status = store.SessionConcluded
	if err := m.Store.UpdateSession(ctx, s); err != nil {
		return fmt.Errorf("%w: conclude session: %v", ragerrors.StoreFailure, err)
	}
	return nil
}

func isShortEnoughForTitle(s string) bool {
	if cjkRatio(s) > cjkRatioThreshold {
		return len([]rune(s)) <= titleWordLimit
	}
	return len(strings.Fields(s)) <= titleWordLimit
}

func cjkRatio(s string) float64 {
	runes := []rune(s)
	if len(runes) == 0 {
		return 0
	}
	han := 0
	for _, r := range runes {
		if unicode.Is(unicode.Han, r) {
			han++
		}
	}
	return float64(han) / float64(len(runes))
}

func truncateWords(s string, n int) string {
	if cjkRatio(s) > cjkRatioThreshold {
		runes := []rune(s)
		if len(runes) > n {
			return string(runes[:n])
		}
		return s
	}
	fields := strings.Fields(s)
	if len(fields) > n {
		return strings.Join(fields[:n], " ")
	}
	return s
}

// IsCJKQuery reports whether query contains at least one CJK ideograph,
// used by the chat endpoint's no-results short-circuit (spec.md §7).
func IsCJKQuery(query string) bool {
	for _, r := range query {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
