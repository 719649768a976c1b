package view

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	feedport "chatsync/internal/infrastructure/changefeed/port"
	chat "chatsync/internal/pkg/chat/application/domain"
	"chatsync/internal/pkg/chat/application/session"
	"chatsync/internal/pkg/chat/application/usecase"
	repository "chatsync/internal/pkg/chat/persistence/repository/port"

	"github.com/rs/zerolog"
)

// ErrAlreadyMounted is returned by Mount while a previous mount is live.
var ErrAlreadyMounted = errors.New("view: already mounted")

// DeletePolicy decides how a successful delete reaches the local list.
type DeletePolicy int

const (
	// DeleteViaChannel leaves removal to the DELETE event of the feed.
	DeleteViaChannel DeletePolicy = iota
	// DeleteLocal removes the row locally as soon as the request succeeds.
	DeleteLocal
	// DeleteReload reloads the whole conversation after the request succeeds.
	DeleteReload
)

// ChannelState is the state of the view's change feed subscription.
type ChannelState int

const (
	Disconnected ChannelState = iota
	Connected
)

func (s ChannelState) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

const defaultRequestTimeout = 3 * time.Second

// Options configures a MessageSyncView.
type Options struct {
	ConversationID string
	// RequestTimeout bounds every backend call. Zero means 3s.
	RequestTimeout time.Duration
	// Optimistic appends a sent message before the backend echoes it.
	Optimistic   bool
	DeletePolicy DeletePolicy
	Logger       zerolog.Logger
}

// Deps are the backend collaborators of the view. Dispatcher is optional and
// defaults to a direct insert through Repo.
type Deps struct {
	Repo       repository.ChatRepository
	Profiles   repository.ProfileRepository
	Feed       feedport.Feed
	Session    session.Provider
	Dispatcher usecase.Dispatcher
}

// MessageSyncView mirrors the messages of one conversation: it fetches them,
// resolves sender avatars and keeps the list current from the change feed.
// All methods are safe for concurrent use. Backend failures are logged and
// swallowed.
type MessageSyncView struct {
	opts    Options
	log     zerolog.Logger
	feed    feedport.Feed
	session session.Provider

	load    *usecase.LoadMessagesUseCase
	avatars *usecase.ResolveAvatarsUseCase
	send    *usecase.SendMessageUseCase
	del     *usecase.DeleteMessageUseCase

	mu        sync.Mutex
	messages  []chat.Message
	ids       map[string]struct{}
	avatarMap map[string]string
	attempted map[string]struct{} // senders looked up this mount, found or not
	state     ChannelState
	onChange  func()

	// epoch advances on every Mount and Unmount; work started in an older
	// epoch does not touch state.
	epoch   uint64
	mounted bool
	stopped bool
	mctx    context.Context
	cancel  context.CancelFunc
	sub     feedport.Subscription
	wg      sync.WaitGroup
}

func NewMessageSyncView(deps Deps, opts Options) *MessageSyncView {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	d := deps.Dispatcher
	if d == nil {
		d = usecase.NewDirectDispatcher(deps.Repo)
	}
	profiles := deps.Profiles
	if profiles == nil {
		if p, ok := deps.Repo.(repository.ProfileRepository); ok {
			profiles = p
		}
	}
	return &MessageSyncView{
		opts:      opts,
		log:       opts.Logger.With().Str("component", "message-sync-view").Str("conversation_id", opts.ConversationID).Logger(),
		feed:      deps.Feed,
		session:   deps.Session,
		load:      usecase.NewLoadMessagesUseCase(deps.Repo),
		avatars:   usecase.NewResolveAvatarsUseCase(profiles),
		send:      usecase.NewSendMessageUseCase(d),
		del:       usecase.NewDeleteMessageUseCase(deps.Repo),
		ids:       make(map[string]struct{}),
		avatarMap: make(map[string]string),
		attempted: make(map[string]struct{}),
	}
}

// ConversationID returns the conversation the view mirrors.
func (v *MessageSyncView) ConversationID() string { return v.opts.ConversationID }

// OnChange registers fn to run after every state change. fn runs on the
// goroutine that made the change, outside the view's lock, and must not
// call Unmount.
func (v *MessageSyncView) OnChange(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onChange = fn
}

// Mount resets the view state, then fetches the conversation, resolves the
// avatars of its senders and subscribes to its change feed. Failures of any
// step are logged; the view stays Disconnected when the subscription fails.
func (v *MessageSyncView) Mount(ctx context.Context) error {
	v.mu.Lock()
	if v.mounted {
		v.mu.Unlock()
		return ErrAlreadyMounted
	}
	v.epoch++
	epoch := v.epoch
	v.mounted = true
	v.stopped = false
	v.messages = nil
	v.ids = make(map[string]struct{})
	v.avatarMap = make(map[string]string)
	v.attempted = make(map[string]struct{})
	v.state = Disconnected
	v.mctx, v.cancel = context.WithCancel(ctx)
	mctx := v.mctx
	v.mu.Unlock()

	if msgs, err := v.Load(mctx, v.opts.ConversationID); err == nil {
		v.ResolveAvatars(mctx, chat.SenderIDs(msgs))
	}

	if v.feed == nil {
		v.log.Warn().Msg("no change feed configured, live updates disabled")
		return nil
	}
	filter := feedport.Filter{
		Table:          chat.MessagesTable,
		Events:         []chat.EventType{chat.EventInsert, chat.EventDelete},
		ConversationID: v.opts.ConversationID,
	}
	sub, err := v.feed.Subscribe(mctx, feedport.ConversationTopic(v.opts.ConversationID), filter, v.OnChannelEvent)
	if err != nil {
		v.log.Error().Err(err).Msg("subscribe failed")
		return nil
	}

	v.mu.Lock()
	if v.epoch != epoch {
		// unmounted while subscribing
		v.mu.Unlock()
		if err := sub.Unsubscribe(); err != nil {
			v.log.Warn().Err(err).Msg("unsubscribe failed")
		}
		return nil
	}
	v.sub = sub
	v.state = Connected
	v.mu.Unlock()
	v.log.Debug().Msg("subscribed")
	v.changed()
	return nil
}

// Unmount releases the subscription, cancels and waits for background work.
// It is idempotent; once it returns the view state no longer changes. It
// must not be called from a feed handler or an OnChange callback.
func (v *MessageSyncView) Unmount() {
	v.mu.Lock()
	if !v.mounted {
		v.mu.Unlock()
		return
	}
	v.epoch++
	v.mounted = false
	v.stopped = true
	v.state = Disconnected
	sub, cancel := v.sub, v.cancel
	v.sub, v.cancel, v.mctx = nil, nil, nil
	v.mu.Unlock()

	cancel()
	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			v.log.Warn().Err(err).Msg("unsubscribe failed")
		}
	}
	v.wg.Wait()
	v.log.Debug().Msg("unmounted")
}

// Wait blocks until background sends and lookups have finished.
func (v *MessageSyncView) Wait() {
	v.wg.Wait()
}

// Load fetches every row of conversationID and makes the sorted result the
// new view state.
func (v *MessageSyncView) Load(ctx context.Context, conversationID string) ([]chat.Message, error) {
	epoch, ok := v.begin()
	if !ok {
		return nil, errUnmounted
	}
	cctx, cancel := context.WithTimeout(ctx, v.opts.RequestTimeout)
	defer cancel()

	msgs, err := v.load.Execute(cctx, usecase.LoadMessagesInput{ConversationID: conversationID})
	if err != nil {
		v.log.Error().Err(err).Msg("load messages failed")
		return nil, err
	}

	v.mu.Lock()
	if v.epoch != epoch {
		v.mu.Unlock()
		return msgs, nil
	}
	v.messages = make([]chat.Message, 0, len(msgs))
	v.ids = make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		if _, dup := v.ids[m.ID]; dup {
			continue
		}
		v.ids[m.ID] = struct{}{}
		v.messages = append(v.messages, m)
	}
	v.mu.Unlock()
	v.changed()
	return msgs, nil
}

// Reload fetches the conversation again and resolves senders not seen before.
func (v *MessageSyncView) Reload(ctx context.Context) {
	msgs, err := v.Load(ctx, v.opts.ConversationID)
	if err != nil {
		return
	}
	v.ResolveAvatars(ctx, chat.SenderIDs(msgs))
}

// ResolveAvatars looks up the avatar of every sender not attempted yet in
// this mount, one request per distinct sender, and returns the avatars known
// for senderIDs. Senders without a profile or whose lookup failed are absent
// and are not looked up again until the next Mount.
func (v *MessageSyncView) ResolveAvatars(ctx context.Context, senderIDs []string) map[string]string {
	epoch, ok := v.begin()
	if !ok {
		return map[string]string{}
	}
	v.mu.Lock()
	todo := v.claimLocked(senderIDs)
	v.mu.Unlock()

	found := v.lookupAvatars(ctx, epoch, todo)

	out := make(map[string]string, len(senderIDs))
	for id, url := range found {
		out[id] = url
	}
	v.mu.Lock()
	for _, id := range senderIDs {
		if url, known := v.avatarMap[id]; known {
			out[id] = url
		}
	}
	v.mu.Unlock()
	return out
}

// claimLocked returns the senders of ids nobody has looked up yet and marks
// them attempted.
func (v *MessageSyncView) claimLocked(ids []string) []string {
	var todo []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, known := v.avatarMap[id]; known {
			continue
		}
		if _, done := v.attempted[id]; done {
			continue
		}
		v.attempted[id] = struct{}{}
		todo = append(todo, id)
	}
	return todo
}

func (v *MessageSyncView) lookupAvatars(ctx context.Context, epoch uint64, todo []string) map[string]string {
	if len(todo) == 0 {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, v.opts.RequestTimeout)
	found, err := v.avatars.Execute(cctx, usecase.ResolveAvatarsInput{SenderIDs: todo})
	cancel()
	if err != nil {
		v.log.Warn().Err(err).Msg("some avatars could not be resolved")
	}

	v.mu.Lock()
	live := v.epoch == epoch
	if live {
		for id, url := range found {
			// known senders are never refreshed
			if _, known := v.avatarMap[id]; !known {
				v.avatarMap[id] = url
			}
		}
	}
	v.mu.Unlock()
	if live && len(found) > 0 {
		v.changed()
	}
	return found
}

// Send validates content and dispatches one insert in the background. Blank
// content or a missing user is logged and nothing is sent.
func (v *MessageSyncView) Send(ctx context.Context, content string) {
	var senderID string
	if v.session != nil {
		if u := v.session.CurrentUser(); u != nil {
			senderID = u.ID
		}
	}
	msg, err := v.send.Validate(usecase.SendMessageInput{
		ConversationID: v.opts.ConversationID,
		SenderID:       senderID,
		Content:        content,
	})
	if err != nil {
		v.log.Warn().Err(err).Msg("message not sent")
		return
	}

	if v.opts.Optimistic {
		v.insert(*msg)
	}
	started := v.spawn(ctx, func(bctx context.Context) {
		// an accepted send outlives Unmount, which waits for it
		cctx, cancel := context.WithTimeout(context.WithoutCancel(bctx), v.opts.RequestTimeout)
		defer cancel()
		if _, err := v.send.Deliver(cctx, *msg); err != nil {
			v.log.Error().Err(err).Str("message_id", msg.ID).Msg("send failed")
		}
	})
	if !started {
		v.log.Warn().Msg("view unmounted, message not sent")
	}
}

// Delete issues one remove request for messageID. Messages of other senders
// held by the view are refused.
func (v *MessageSyncView) Delete(ctx context.Context, messageID string) {
	epoch, ok := v.begin()
	if !ok {
		v.log.Warn().Msg("view unmounted, delete ignored")
		return
	}
	if m, held := v.find(messageID); held && v.session != nil {
		if u := v.session.CurrentUser(); u == nil || u.ID != m.SenderID {
			v.log.Warn().Str("message_id", messageID).Msg("cannot delete another sender's message")
			return
		}
	}

	cctx, cancel := context.WithTimeout(ctx, v.opts.RequestTimeout)
	err := v.del.Execute(cctx, usecase.DeleteMessageInput{ConversationID: v.opts.ConversationID, MessageID: messageID})
	cancel()
	if err != nil {
		v.log.Error().Err(err).Str("message_id", messageID).Msg("delete failed")
		return
	}

	switch v.opts.DeletePolicy {
	case DeleteLocal:
		v.remove(epoch, messageID)
	case DeleteReload:
		v.Reload(ctx)
	}
}

// OnChannelEvent applies one change feed event: INSERT appends the row
// unless its id is already present, DELETE removes the row with that id.
// Rows of other conversations are ignored.
func (v *MessageSyncView) OnChannelEvent(e chat.ChangeEvent) {
	if e.Table != "" && e.Table != chat.MessagesTable {
		return
	}
	if conv := e.ConversationID(); conv != "" && conv != v.opts.ConversationID {
		return
	}
	switch e.Type {
	case chat.EventInsert:
		if e.New == nil || e.New.ID == "" {
			return
		}
		if v.insert(*e.New) {
			v.resolveNewSender(e.New.SenderID)
		}
	case chat.EventDelete:
		v.mu.Lock()
		epoch := v.epoch
		v.mu.Unlock()
		v.remove(epoch, e.RowID())
	}
}

// Messages returns a copy of the list, newest first.
func (v *MessageSyncView) Messages() []chat.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]chat.Message, len(v.messages))
	copy(out, v.messages)
	return out
}

// Avatars returns a copy of the sender to avatar map.
func (v *MessageSyncView) Avatars() map[string]string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]string, len(v.avatarMap))
	for k, val := range v.avatarMap {
		out[k] = val
	}
	return out
}

// LookupID returns the id of the single held message starting with prefix.
func (v *MessageSyncView) LookupID(prefix string) (string, bool) {
	if prefix == "" {
		return "", false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	var match string
	for _, m := range v.messages {
		if strings.HasPrefix(m.ID, prefix) {
			if match != "" {
				return "", false
			}
			match = m.ID
		}
	}
	return match, match != ""
}

func (v *MessageSyncView) State() ChannelState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

var errUnmounted = errors.New("view: unmounted")

// begin reports the current epoch and whether the view accepts work.
func (v *MessageSyncView) begin() (uint64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.epoch, !v.stopped
}

// spawn runs fn on a tracked goroutine bound to the mount context, or to a
// detached copy of ctx when the view was never mounted.
func (v *MessageSyncView) spawn(ctx context.Context, fn func(context.Context)) bool {
	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		return false
	}
	base := v.mctx
	if base == nil {
		base = context.WithoutCancel(ctx)
	}
	v.wg.Add(1)
	v.mu.Unlock()

	go func() {
		defer v.wg.Done()
		fn(base)
	}()
	return true
}

func (v *MessageSyncView) find(id string) (chat.Message, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.ids[id]; !ok {
		return chat.Message{}, false
	}
	for _, m := range v.messages {
		if m.ID == id {
			return m, true
		}
	}
	return chat.Message{}, false
}

// insert adds m unless its id is present and keeps the list sorted.
func (v *MessageSyncView) insert(m chat.Message) bool {
	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		return false
	}
	if _, dup := v.ids[m.ID]; dup {
		v.mu.Unlock()
		return false
	}
	v.ids[m.ID] = struct{}{}
	v.messages = append(v.messages, m)
	chat.SortNewestFirst(v.messages)
	v.mu.Unlock()
	v.changed()
	return true
}

func (v *MessageSyncView) remove(epoch uint64, id string) {
	if id == "" {
		return
	}
	v.mu.Lock()
	if v.stopped || v.epoch != epoch {
		v.mu.Unlock()
		return
	}
	if _, ok := v.ids[id]; !ok {
		v.mu.Unlock()
		return
	}
	delete(v.ids, id)
	for i, m := range v.messages {
		if m.ID == id {
			v.messages = append(v.messages[:i], v.messages[i+1:]...)
			break
		}
	}
	v.mu.Unlock()
	v.changed()
}

// resolveNewSender looks up the avatar of a sender first seen on the feed.
func (v *MessageSyncView) resolveNewSender(senderID string) {
	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		return
	}
	epoch := v.epoch
	todo := v.claimLocked([]string{senderID})
	v.mu.Unlock()
	if len(todo) == 0 {
		return
	}
	v.spawn(context.Background(), func(ctx context.Context) {
		v.lookupAvatars(ctx, epoch, todo)
	})
}

func (v *MessageSyncView) changed() {
	v.mu.Lock()
	fn := v.onChange
	stopped := v.stopped
	v.mu.Unlock()
	if fn != nil && !stopped {
		fn()
	}
}
