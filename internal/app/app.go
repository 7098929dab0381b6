// Package app wires the REST client, socket manager, notification store and
// conversation view models into one signed-in chat client.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"chat-client/internal/api"
	"chat-client/internal/conversation"
	"chat-client/internal/mention"
	"chat-client/internal/models"
	"chat-client/internal/notifications"
	"chat-client/internal/ws"
)

// ErrNotSignedIn is returned by operations that need an identity.
var ErrNotSignedIn = errors.New("not signed in")

// Config is the subset of settings the client needs.
type Config struct {
	APIBaseURL  string
	WSBaseURL   string
	DeviceID    string
	DialRetries int
	HTTPTimeout time.Duration
}

// IdentityStore persists the signed-in identity between runs.
type IdentityStore interface {
	Save(ctx context.Context, id models.Identity) error
	Load(ctx context.Context) (models.Identity, error)
	Clear(ctx context.Context) error
}

// Option configures a Client.
type Option func(*Client)

// WithAuditor reports failed sends through a.
func WithAuditor(a conversation.Auditor) Option {
	return func(c *Client) { c.audit = a }
}

// WithAPIOptions passes extra options to every REST client built.
func WithAPIOptions(opts ...api.Option) Option {
	return func(c *Client) { c.apiOpts = append(c.apiOpts, opts...) }
}

// openView is an open conversation. cancel ends its socket, including a dial
// still in flight.
type openView struct {
	vm     *conversation.ViewModel
	cancel context.CancelFunc
}

// Client is the headless chat client of one user.
type Client struct {
	cfg      Config
	sessions IdentityStore
	store    *notifications.Store
	audit    conversation.Auditor
	apiOpts  []api.Option
	convs    directory

	mu       sync.Mutex
	identity models.Identity
	api      *api.Client
	sockets  *ws.Manager
	open     map[models.ConversationRef]openView
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a signed-out client.
func New(cfg Config, sessions IdentityStore, opts ...Option) *Client {
	c := &Client{
		cfg:      cfg,
		sessions: sessions,
		store:    notifications.NewStore(),
		open:     make(map[models.ConversationRef]openView),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login persists id and starts the session.
func (c *Client) Login(ctx context.Context, id models.Identity) error {
	if id.UserID == 0 || id.Token == "" {
		return fmt.Errorf("login: user id and token are required")
	}
	if err := c.sessions.Save(ctx, id); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return c.start(ctx, id)
}

// Resume starts the session remembered from a previous run.
func (c *Client) Resume(ctx context.Context) error {
	id, err := c.sessions.Load(ctx)
	if err != nil {
		return err
	}
	return c.start(ctx, id)
}

func (c *Client) start(ctx context.Context, id models.Identity) error {
	c.shutdown()

	opts := append([]api.Option{api.WithDeviceID(c.cfg.DeviceID)}, c.apiOpts...)
	if c.cfg.HTTPTimeout > 0 {
		opts = append(opts, api.WithTimeout(c.cfg.HTTPTimeout))
	}
	rest := api.NewClient(c.cfg.APIBaseURL, opts...).WithToken(id.Token)
	sockets := ws.NewManager(ws.Options{
		BaseURL:  c.cfg.WSBaseURL,
		Token:    id.Token,
		UserID:   id.UserID,
		DeviceID: c.cfg.DeviceID,
		Retries:  c.cfg.DialRetries,
	})
	lifetime, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.identity = id
	c.api = rest
	c.sockets = sockets
	c.ctx = lifetime
	c.cancel = cancel
	c.mu.Unlock()

	if _, err := sockets.OpenUser(lifetime, c.handleSignal); err != nil {
		log.Printf("app: user channel unavailable user_id=%d: %v", id.UserID, err)
	}
	log.Printf("app: signed in user_id=%d username=%s", id.UserID, id.Username)
	return nil
}

// handleSignal counts a direct message unless its conversation is open.
func (c *Client) handleSignal(sig models.DMSignal) {
	ref := models.ChatRef(sig.ChatID)
	c.mu.Lock()
	_, open := c.open[ref]
	c.mu.Unlock()
	if open {
		return
	}
	c.store.RecordIncomingDM(sig.ChatID, sig.Sender)
	c.convs.update(ref, func(conv *models.Conversation) {
		conv.UnreadCount++
	})
}

// Logout closes every socket and view, resets the store and forgets the
// persisted identity.
func (c *Client) Logout(ctx context.Context) error {
	c.shutdown()
	c.store.Reset()
	c.convs.reset()
	c.mu.Lock()
	c.identity = models.Identity{}
	c.api = nil
	c.sockets = nil
	c.mu.Unlock()
	if err := c.sessions.Clear(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Close releases sockets and views but keeps the persisted identity.
func (c *Client) Close() {
	c.shutdown()
}

func (c *Client) shutdown() {
	c.mu.Lock()
	views := make([]openView, 0, len(c.open))
	for ref, view := range c.open {
		views = append(views, view)
		delete(c.open, ref)
	}
	sockets := c.sockets
	cancel := c.cancel
	c.mu.Unlock()

	for _, view := range views {
		view.vm.Close()
		view.cancel()
	}
	if sockets != nil {
		sockets.CloseAll()
	}
	if cancel != nil {
		cancel()
	}
}

func (c *Client) session() (models.Identity, *api.Client, *ws.Manager, context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api == nil {
		return models.Identity{}, nil, nil, nil, ErrNotSignedIn
	}
	return c.identity, c.api, c.sockets, c.ctx, nil
}

// Identity returns the signed-in user.
func (c *Client) Identity() (models.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity, c.api != nil
}

// Store is the process-wide notification store.
func (c *Client) Store() *notifications.Store {
	return c.store
}

// ListConversations fetches the user's chats and groups and keeps them as
// the conversation list.
func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	id, rest, _, _, err := c.session()
	if err != nil {
		return nil, err
	}
	list, err := rest.ListConversations(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	c.convs.replace(list, c.store.Snapshot().UnreadDMs)
	c.mu.Lock()
	open := make([]models.ConversationRef, 0, len(c.open))
	for ref := range c.open {
		open = append(open, ref)
	}
	c.mu.Unlock()
	for _, ref := range open {
		c.convs.update(ref, func(conv *models.Conversation) { conv.UnreadCount = 0 })
	}
	return c.convs.snapshot(), nil
}

// Conversations returns the conversation list as last fetched and updated
// since.
func (c *Client) Conversations() []models.Conversation {
	return c.convs.snapshot()
}

// StartChat opens or creates the private chat with friendID.
func (c *Client) StartChat(ctx context.Context, friendID int) (models.ConversationRef, error) {
	id, rest, _, _, err := c.session()
	if err != nil {
		return models.ConversationRef{}, err
	}
	ref, err := rest.StartChat(ctx, friendID)
	if err != nil {
		return models.ConversationRef{}, err
	}
	c.convs.add(models.Conversation{
		Ref:            ref,
		ParticipantIDs: []int{id.UserID, friendID},
		DisplayName:    "user " + strconv.Itoa(friendID),
	})
	return ref, nil
}

// OpenConversation loads the history of ref and dials its socket
// concurrently. The view model is returned even when one of them failed, so
// the caller can show what arrived. If the conversation is closed or ctx ends
// before the open completes, the socket is closed and the open fails.
func (c *Client) OpenConversation(ctx context.Context, ref models.ConversationRef) (*conversation.ViewModel, error) {
	id, rest, sockets, lifetime, err := c.session()
	if err != nil {
		return nil, err
	}

	vm := conversation.New(ref, id.UserID, rest,
		conversation.WithUnreadClearer(c.store),
		conversation.WithAuditor(c.audit))
	vm.Subscribe(func(list []models.Message) {
		c.convs.update(ref, func(conv *models.Conversation) {
			conv.UnreadCount = 0
			if n := len(list); n > 0 {
				conv.LastMessage = preview(list[n-1])
			}
		})
	})
	socketCtx, cancel := context.WithCancel(lifetime)

	c.mu.Lock()
	prev, replaced := c.open[ref]
	c.open[ref] = openView{vm: vm, cancel: cancel}
	c.mu.Unlock()
	if replaced {
		prev.vm.Close()
		prev.cancel()
	}

	stop := context.AfterFunc(ctx, func() { c.closeView(ref, vm) })
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return vm.Load(gctx)
	})
	g.Go(func() error {
		ch, err := sockets.OpenConversation(socketCtx, ref, vm.HandleIncoming)
		if err != nil {
			return fmt.Errorf("socket %s: %w", ref, err)
		}
		if !c.current(ref, vm) {
			ch.Close()
			return fmt.Errorf("socket %s: %w", ref, conversation.ErrClosed)
		}
		vm.AttachSocket(ch)
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Printf("app: open %s: %v", ref, err)
		return vm, err
	}
	return vm, nil
}

// current reports whether vm is still the open view of ref.
func (c *Client) current(ref models.ConversationRef, vm *conversation.ViewModel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	view, ok := c.open[ref]
	return ok && view.vm == vm && !vm.Closed()
}

// Conversation returns the open view model of ref.
func (c *Client) Conversation(ref models.ConversationRef) (*conversation.ViewModel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	view, ok := c.open[ref]
	return view.vm, ok
}

// CloseConversation closes the view model and socket of ref.
func (c *Client) CloseConversation(ref models.ConversationRef) {
	c.closeView(ref, nil)
}

// closeView closes the view of ref. With only set, a view opened later for
// the same ref is left alone.
func (c *Client) closeView(ref models.ConversationRef, only *conversation.ViewModel) {
	c.mu.Lock()
	view, ok := c.open[ref]
	if only != nil && (!ok || view.vm != only) {
		c.mu.Unlock()
		return
	}
	delete(c.open, ref)
	sockets := c.sockets
	c.mu.Unlock()

	if ok {
		view.vm.Close()
		view.cancel()
	}
	if sockets != nil {
		sockets.CloseConversation(ref)
	}
}

// WithConversation opens ref, runs fn and closes it on every exit path.
func (c *Client) WithConversation(ctx context.Context, ref models.ConversationRef, fn func(*conversation.ViewModel) error) error {
	vm, err := c.OpenConversation(ctx, ref)
	if vm != nil {
		defer c.closeView(ref, vm)
	}
	if err != nil {
		return err
	}
	return fn(vm)
}

// DeleteConversation hides ref on the backend and tears down its local state.
func (c *Client) DeleteConversation(ctx context.Context, ref models.ConversationRef) error {
	_, rest, _, _, err := c.session()
	if err != nil {
		return err
	}
	if err := rest.DeleteConversation(ctx, ref); err != nil {
		return err
	}
	c.CloseConversation(ref)
	c.convs.remove(ref)
	if ref.Kind != models.KindGroup {
		c.store.ClearUnreadDM(ref.ID)
	}
	return nil
}

// ToggleBell flips the bell dropdown. Opening it re-fetches notifications.
func (c *Client) ToggleBell(ctx context.Context) (bool, error) {
	_, rest, _, _, err := c.session()
	if err != nil {
		return false, err
	}
	open := c.store.ToggleBell()
	if !open {
		return false, nil
	}
	list, unread, err := rest.ListNotifications(ctx)
	if err != nil {
		log.Printf("app: notifications fetch failed: %v", err)
		return true, err
	}
	c.store.SetNotifications(list, unread)
	return true, nil
}

// ToggleMessages flips the messages dropdown. Opening it fetches the
// conversation list.
func (c *Client) ToggleMessages(ctx context.Context) (bool, []models.Conversation, error) {
	if _, _, _, _, err := c.session(); err != nil {
		return false, nil, err
	}
	if !c.store.ToggleMessages() {
		return false, nil, nil
	}
	list, err := c.ListConversations(ctx)
	if err != nil {
		log.Printf("app: conversation list fetch failed: %v", err)
		return true, nil, err
	}
	return true, list, nil
}

// MarkNotificationRead marks one notification read on the backend, then in
// the store.
func (c *Client) MarkNotificationRead(ctx context.Context, id int) error {
	_, rest, _, _, err := c.session()
	if err != nil {
		return err
	}
	if err := rest.MarkNotificationRead(ctx, id); err != nil {
		return err
	}
	c.store.MarkOneRead(id)
	return nil
}

// MarkAllNotificationsRead marks everything read on the backend, then in the
// store.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	_, rest, _, _, err := c.session()
	if err != nil {
		return err
	}
	if err := rest.MarkAllNotificationsRead(ctx); err != nil {
		return err
	}
	c.store.MarkAllRead()
	return nil
}

// NewComposer returns a mention-aware composer backed by user search.
func (c *Client) NewComposer() (*mention.Autocomplete, error) {
	_, rest, _, _, err := c.session()
	if err != nil {
		return nil, err
	}
	return mention.New(rest), nil
}

// SearchUsers looks users up by name.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]models.UserSummary, error) {
	_, rest, _, _, err := c.session()
	if err != nil {
		return nil, err
	}
	return rest.SearchUsers(ctx, query)
}
