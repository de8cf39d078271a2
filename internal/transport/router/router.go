package router

import (
	"context"
	"runtime/debug"
	"slices"
	"strconv"
	"sync"
	"time"

	rtsup "holidaybot/internal/runtime/supervisor"
	kit "holidaybot/internal/transport"
	logx "holidaybot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	// AccessAdmin allows users from Policy.AdminIDs and administrators of
	// Policy.TargetChatID.
	AccessAdmin
)

type Command struct {
	Name        string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // optional per-command override
	// Precondition runs before the access check. A non-empty result is sent
	// as the reply and the command is skipped.
	Precondition func(req *Request) string
	Handle       HandlerFunc
}

// Policy is the hot-reloadable part of routing.
type Policy struct {
	AdminIDs []int64
	// TargetChatID restricts routing to one chat. 0 accepts every chat.
	TargetChatID int64
}

type Options struct {
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration
	DenyText       string
	BusyText       string
	HelpHeader     string
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	// Args are the quoted-aware tokens after the command; Rest is the raw remainder.
	Args  []string
	Rest  string
	ReqID string

	Adapter kit.Adapter
	Logger  logx.Logger
	Policy  Policy
}

// Reply sends HTML text to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

type Router struct {
	mu     sync.RWMutex
	cmds   map[string]Command
	order  []string
	policy Policy

	log     logx.Logger
	adapter kit.Adapter
	admins  kit.ChatAdminChecker
	opts    Options

	jobs chan func()
}

func New(log logx.Logger, adapter kit.Adapter, opts Options) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	r := &Router{
		cmds:    map[string]Command{},
		log:     log,
		adapter: adapter,
		opts:    opts,
		jobs:    make(chan func(), opts.QueueSize),
	}
	if c, ok := adapter.(kit.ChatAdminChecker); ok {
		r.admins = c
	}
	return r
}

// SetAdminChecker overrides the chat-admin lookup (nil disables it).
func (r *Router) SetAdminChecker(c kit.ChatAdminChecker) {
	r.mu.Lock()
	r.admins = c
	r.mu.Unlock()
}

// SetPolicy replaces admin ids and target chat. Safe during hot reload.
func (r *Router) SetPolicy(p Policy) {
	p.AdminIDs = slices.Clone(p.AdminIDs)
	r.mu.Lock()
	r.policy = p
	r.mu.Unlock()
}

func (r *Router) policySnapshot() Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p := r.policy
	p.AdminIDs = slices.Clone(p.AdminIDs)
	return p
}

// SetCommands replaces the registry. A help command is always added.
func (r *Router) SetCommands(cmds []Command) {
	m := make(map[string]Command, len(cmds)+1)
	order := make([]string, 0, len(cmds)+1)
	add := func(c Command) {
		if c.Name == "" || c.Handle == nil {
			return
		}
		if _, dup := m[c.Name]; !dup {
			order = append(order, c.Name)
		}
		m[c.Name] = c
	}
	for _, c := range cmds {
		add(c)
	}
	add(Command{
		Name:        "help",
		Description: "список команд",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, r.helpText())
		},
	})

	r.mu.Lock()
	r.cmds = m
	r.order = order
	r.mu.Unlock()
}

// MenuCommands returns the registry as menu entries, in registration order.
func (r *Router) MenuCommands() []kit.BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]kit.BotCommand, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, kit.BotCommand{Command: name, Description: r.cmds[name].Description})
	}
	return out
}

// UpdateMenu pushes the registry to the platform menu when the adapter supports it.
func (r *Router) UpdateMenu(ctx context.Context) error {
	up, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	return up.UpdateMenuCommands(ctx, r.MenuCommands())
}

// IsAdmin reports whether userID passes AccessAdmin under the current policy.
func (r *Router) IsAdmin(ctx context.Context, userID int64) bool {
	if userID == 0 {
		return false
	}
	p := r.policySnapshot()
	if slices.Contains(p.AdminIDs, userID) {
		return true
	}
	r.mu.RLock()
	checker := r.admins
	r.mu.RUnlock()
	if checker == nil || p.TargetChatID == 0 {
		return false
	}
	ok, err := checker.IsChatAdmin(ctx, p.TargetChatID, userID)
	if err != nil {
		r.log.Debug("chat admin lookup failed", logx.Int64("user_id", userID), logx.Err(err))
		return false
	}
	return ok
}

// Run dispatches updates to a bounded worker pool until ctx is done or
// updates is closed.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log),
		rtsup.WithCancelOnError(false),
	)
	r.log.Info("command dispatcher started", logx.Int("workers", r.opts.Workers), logx.Int("job_queue_cap", cap(r.jobs)))

	for i := 0; i < r.opts.Workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-r.jobs:
					r.runJob(idx, job)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
		)
	}

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) runJob(worker int, job func()) {
	if job == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

func (r *Router) route(ctx context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	msg := up.Message
	word, rest, ok := splitCommand(msg.Text)
	if !ok {
		return
	}

	policy := r.policySnapshot()
	if policy.TargetChatID != 0 && msg.ChatID != policy.TargetChatID {
		return
	}

	r.mu.RLock()
	cmd, found := r.cmds[word]
	r.mu.RUnlock()
	if !found {
		r.log.Debug("unknown command", logx.String("cmd", word), logx.Int64("chat_id", msg.ChatID))
		return
	}

	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	rid := newReqID()
	req := &Request{
		Update:  up,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    tokenizeCommandLine(rest),
		Rest:    rest,
		ReqID:   rid,
		Adapter: r.adapter,
		Policy:  policy,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.opts.DefaultTimeout
	}
	h := cmd.Handle
	if cmd.Access == AccessAdmin {
		h = r.requireAdmin(h)
	}
	if cmd.Precondition != nil {
		h = precondition(cmd.Precondition, h)
	}
	final := Chain(h,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(timeout),
	)

	select {
	case r.jobs <- func() { _ = final(ctx, req) }:
	default:
		if r.opts.BusyText != "" {
			_, _ = r.adapter.SendText(ctx, chat, r.opts.BusyText, nil)
		}
		r.log.Warn("command queue full", logx.String("cmd", cmd.Name))
	}
}

func (r *Router) requireAdmin(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if r.IsAdmin(ctx, req.FromID) {
			return next(ctx, req)
		}
		req.Logger.Debug("access denied")
		if r.opts.DenyText == "" {
			return nil
		}
		return req.Reply(ctx, r.opts.DenyText)
	}
}

func precondition(check func(*Request) string, next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if text := check(req); text != "" {
			return req.Reply(ctx, text)
		}
		return next(ctx, req)
	}
}
