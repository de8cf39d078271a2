package bot

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"holidaybot/internal/holidays"
	kit "holidaybot/internal/transport"
	"holidaybot/internal/transport/router"
	logx "holidaybot/pkg/logx"
)

var msk = time.FixedZone("MSK", 3*60*60)

type fakeAdapter struct {
	mu     sync.Mutex
	out    chan string
	admins map[int64]bool
	err    error
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{out: make(chan string, 16), admins: map[int64]bool{}}
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.out <- text
	return kit.MessageRef{}, nil
}

func (f *fakeAdapter) IsChatAdmin(_ context.Context, _ int64, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.admins[userID], f.err
}

func (f *fakeAdapter) SelfID() int64 { return 999 }

func (f *fakeAdapter) reply(t *testing.T) string {
	t.Helper()
	select {
	case s := <-f.out:
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("no reply")
		return ""
	}
}

type failingFetcher struct{}

func (failingFetcher) Fetch(context.Context) (string, error) { return "", errors.New("offline") }

type env struct {
	adapter *fakeAdapter
	store   *holidays.Store
	updates chan<- kit.Update
}

func setup(t *testing.T, policy router.Policy) *env {
	t.Helper()
	now := time.Date(2024, 1, 7, 10, 0, 0, 0, msk)
	store, err := holidays.OpenStore(filepath.Join(t.TempDir(), "holidays.json"), "09:00", now, logx.Nop())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	store.SetSlots(
		holidays.NewSlot(now, []string{"Рождество Христово", "День <тестировщика>"}, now, ""),
		holidays.NewSlot(now.AddDate(0, 0, 1), nil, now, ""),
		now,
	)
	svc := holidays.NewService(store, failingFetcher{}, holidays.ServiceOptions{})
	b := New(svc, Options{Clock: func() time.Time { return now }})

	fa := newFakeAdapter()
	r := router.New(logx.Nop(), fa, RouterOptions())
	r.SetCommands(b.Commands())
	r.SetPolicy(policy)

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 8)
	done := make(chan struct{})
	go func() {
		_ = r.Run(ctx, updates)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &env{adapter: fa, store: store, updates: updates}
}

func (e *env) send(chatID, fromID int64, text string) {
	e.updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: chatID, FromID: fromID, Text: text}}
}

func TestStart(t *testing.T) {
	t.Parallel()
	e := setup(t, router.Policy{})
	e.send(1, 2, "/start")
	if got := e.adapter.reply(t); got != textStart {
		t.Fatalf("got %q", got)
	}
}

func TestHolidays_ServesCachedDigest(t *testing.T) {
	t.Parallel()
	e := setup(t, router.Policy{TargetChatID: -100})
	e.send(-100, 2, "/holidays")
	got := e.adapter.reply(t)
	want := "🎉 Праздники на сегодня:\n\n✝️ Рождество Христово\n✨ День &lt;тестировщика&gt;"
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestHolidays_FetchFailureIsReported(t *testing.T) {
	t.Parallel()
	e := setup(t, router.Policy{})
	old := time.Date(2023, 12, 1, 10, 0, 0, 0, msk)
	e.store.SetSlots(
		holidays.NewSlot(old, []string{"Старый праздник"}, old, ""),
		holidays.NewSlot(old.AddDate(0, 0, 1), nil, old, ""),
		old,
	)
	e.send(5, 2, "/holidays")
	got := e.adapter.reply(t)
	if !strings.Contains(got, holidays.TextFetchFailed) {
		t.Fatalf("fetch failure not reported: %q", got)
	}
}

func TestChatID(t *testing.T) {
	t.Parallel()
	e := setup(t, router.Policy{})
	e.send(-1001234, 2, "/chatid")
	got := e.adapter.reply(t)
	if !strings.HasPrefix(got, "ID этого чата: <code>-1001234</code>\n") {
		t.Fatalf("got %q", got)
	}
}

func TestHolidaysTime_RequiresTargetChat(t *testing.T) {
	t.Parallel()
	e := setup(t, router.Policy{AdminIDs: []int64{7}})
	e.send(1, 7, "/holidaystime 08:30")
	if got := e.adapter.reply(t); got != textChatNotConfigured {
		t.Fatalf("got %q", got)
	}
	if e.store.AutopostTime() != "09:00" {
		t.Fatalf("autopost time changed without target chat")
	}
}

func TestHolidaysTime_AdminOnly(t *testing.T) {
	t.Parallel()
	e := setup(t, router.Policy{TargetChatID: -100})
	e.send(-100, 8, "/holidaystime 08:30")
	if got := e.adapter.reply(t); got != textAdminOnly {
		t.Fatalf("got %q", got)
	}
}

func TestHolidaysTime_Flow(t *testing.T) {
	t.Parallel()
	e := setup(t, router.Policy{TargetChatID: -100, AdminIDs: []int64{7}})
	e.adapter.admins[8] = true

	steps := []struct {
		from int64
		text string
		want string
	}{
		{7, "/holidaystime", "Текущее время автопубликации: 09:00 (МСК)."},
		{7, `/holidaystime ""`, textTimeRequired},
		{7, "/holidaystime 25:00", "Недопустимое значение часов или минут"},
		{7, "/holidaystime 8-30", "Время должно быть в формате ЧЧ:ММ"},
		{7, "/holidaystime 8:5", "Время автопубликации обновлено: 08:05 (МСК)."},
		{8, "/holidaystime@holiday_bot 21:15", "Время автопубликации обновлено: 21:15 (МСК)."},
		{8, "/holidaystime", "Текущее время автопубликации: 21:15 (МСК)."},
	}
	for _, s := range steps {
		e.send(-100, s.from, s.text)
		if got := e.adapter.reply(t); got != s.want {
			t.Fatalf("%s: got %q want %q", s.text, got, s.want)
		}
	}
	if !e.store.Signal().Pending() {
		t.Fatalf("autopost signal not raised")
	}
}

func TestSetDigestLimit(t *testing.T) {
	t.Parallel()
	b := New(nil, Options{})
	if b.DigestLimit() != holidays.DefaultDigestLimit {
		t.Fatalf("default limit %d", b.DigestLimit())
	}
	b.SetDigestLimit(3)
	if b.DigestLimit() != 3 {
		t.Fatalf("limit %d", b.DigestLimit())
	}
	b.SetDigestLimit(-1)
	if b.DigestLimit() != holidays.DefaultDigestLimit {
		t.Fatalf("non-positive limit should reset to default")
	}
}

func TestStartupCheck(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		target int64
		admin  bool
		err    error
		want   string
	}{
		{"no target", 0, false, nil, "target chat not configured"},
		{"not admin", -100, false, nil, "bot is not an administrator"},
		{"lookup error", -100, false, errors.New("forbidden"), "cannot verify bot rights"},
		{"ok", -100, true, nil, ""},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		log := logx.NewWriter(&buf, "debug")
		fa := newFakeAdapter()
		fa.admins[fa.SelfID()] = tc.admin
		fa.err = tc.err
		StartupCheck(context.Background(), fa, tc.target, log)
		out := buf.String()
		if tc.want == "" {
			if strings.Contains(out, "WRN") || strings.Contains(out, "warn") {
				t.Fatalf("%s: unexpected warning %q", tc.name, out)
			}
			continue
		}
		if !strings.Contains(out, tc.want) {
			t.Fatalf("%s: log %q does not contain %q", tc.name, out, tc.want)
		}
	}
}
