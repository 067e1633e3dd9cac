package session

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fyang0507/notion-rag-core/internal/llm"
	"github.com/fyang0507/notion-rag-core/internal/store"
)

type fakeChat struct {
	response string
}

func (f fakeChat) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	return llm.CompletionResponse{Content: f.response}, nil
}

func (f fakeChat) Stream(_ context.Context, _ llm.CompletionRequest) (<-chan llm.StreamDelta, func() error) {
	ch := make(chan llm.StreamDelta)
	close(ch)
	return ch, func() error { return nil }
}

func newManager(st store.Store) *Manager {
	return New(st, fakeChat{response: "Generated Title Here Too Long"}, zerolog.Nop())
}

func TestCreateSession_ConcludesPreviouslyActive(t *testing.T) {
	st := store.NewMemory()
	m := newManager(st)

	first, err := m.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := m.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	refreshedFirst, err := st.GetSession(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("get first: %v", err)
	}
	if refreshedFirst.Status != store.SessionConcluded {
		t.Fatalf("expected first session concluded, got %s", refreshedFirst.Status)
	}
	if second.Status != store.SessionActive {
		t.Fatalf("expected second session active, got %s", second.Status)
	}

	active, found, err := st.GetActiveSession(context.Background())
	if err != nil || !found || active.ID != second.ID {
		t.Fatalf("expected second session to be the sole active one: found=%v id=%v err=%v", found, active.ID, err)
	}
}

func TestAppendMessage_DensOrderAndAutoTitle(t *testing.T) {
	st := store.NewMemory()
	m := newManager(st)

	s, err := m.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := m.AppendMessage(context.Background(), s.ID, store.ChatMessage{Role: store.RoleUser, Content: "hi there"}); err != nil {
		t.Fatalf("append user: %v", err)
	}
	if _, err := m.AppendMessage(context.Background(), s.ID, store.ChatMessage{Role: store.RoleAssistant, Content: "hello"}); err != nil {
		t.Fatalf("append assistant: %v", err)
	}

	msgs, err := st.ListMessages(context.Background(), s.ID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].MessageOrder != 0 || msgs[1].MessageOrder != 1 {
		t.Fatalf("expected dense order 0,1, got %+v", msgs)
	}

	refreshed, err := st.GetSession(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if refreshed.Title != "hi there" {
		t.Fatalf("expected short first message to be used verbatim as title, got %q", refreshed.Title)
	}
	if refreshed.MessageCount != 2 {
		t.Fatalf("expected message_count 2, got %d", refreshed.MessageCount)
	}
}

func TestGenerateTitle_LongMessageUsesLLMWithWordLimit(t *testing.T) {
	st := store.NewMemory()
	m := newManager(st)

	s, err := m.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	long := "this is a very long first message that definitely exceeds the eight word verbatim title threshold"
	if _, err := m.AppendMessage(context.Background(), s.ID, store.ChatMessage{Role: store.RoleUser, Content: long}); err != nil {
		t.Fatalf("append: %v", err)
	}

	refreshed, err := st.GetSession(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(splitFields(refreshed.Title)) > titleWordLimit {
		t.Fatalf("expected title truncated to %d words, got %q", titleWordLimit, refreshed.Title)
	}
}

func TestConcludeSession_RequiresTwoMessages(t *testing.T) {
	st := store.NewMemory()
	m := newManager(st)

	s, err := m.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.AppendMessage(context.Background(), s.ID, store.ChatMessage{Role: store.RoleUser, Content: "only one"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := m.ConcludeSession(context.Background(), s.ID, "manual"); err != nil {
		t.Fatalf("conclude: %v", err)
	}
	refreshed, _ := st.GetSession(context.Background(), s.ID)
	if refreshed.Status != store.SessionActive {
		t.Fatalf("expected session to remain active with only 1 message, got %s", refreshed.Status)
	}

	if _, err := m.AppendMessage(context.Background(), s.ID, store.ChatMessage{Role: store.RoleAssistant, Content: "reply"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := m.ConcludeSession(context.Background(), s.ID, "manual"); err != nil {
		t.Fatalf("conclude: %v", err)
	}
	refreshed, _ = st.GetSession(context.Background(), s.ID)
	if refreshed.Status != store.SessionConcluded {
		t.Fatalf("expected session concluded after 2 messages, got %s", refreshed.Status)
	}
	if refreshed.Summary == nil || *refreshed.Summary == "" {
		t.Fatalf("expected a non-empty summary on conclude")
	}
}

func TestIdleMonitor_SweepConcludesStaleSessions(t *testing.T) {
	st := store.NewMemory()
	m := newManager(st)

	s, err := m.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.AppendMessage(context.Background(), s.ID, store.ChatMessage{Role: store.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := m.AppendMessage(context.Background(), s.ID, store.ChatMessage{Role: store.RoleAssistant, Content: "hello"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	refreshed, _ := st.GetSession(context.Background(), s.ID)
	stale := refreshed.LastMessageAt.Add(-11 * time.Minute)
	refreshed.LastMessageAt = &stale
	if err := st.UpdateSession(context.Background(), refreshed); err != nil {
		t.Fatalf("backdate session: %v", err)
	}

	mon := NewIdleMonitor(m)
	mon.sweep(context.Background())

	final, err := st.GetSession(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if final.Status != store.SessionConcluded {
		t.Fatalf("expected idle sweep to conclude the session, got %s", final.Status)
	}
}

func splitFields(s string) []string {
	var out []string
	cur := ""
	for _, r := range s {
		if r == ' ' {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}
