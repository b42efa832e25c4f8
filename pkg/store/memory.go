package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/birdthread/threader-go/pkg/db/models"
)

// MemoryStore is the in-memory Store implementation. It backs the engine's
// unit suites and is usable as a throwaway store for one-off crawls.
// Transactions copy the entity maps up front and swap them in on commit,
// so a failed transaction leaves the store untouched.
type MemoryStore struct {
	mu            sync.RWMutex
	tweets        map[string]models.Tweet
	users         map[string]models.User
	conversations map[string]models.Conversation
	discussions   map[string]models.Discussion
	media         map[string]models.Media
	hub           *hub
	logger        *logrus.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *logrus.Logger) *MemoryStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &MemoryStore{
		tweets:        make(map[string]models.Tweet),
		users:         make(map[string]models.User),
		conversations: make(map[string]models.Conversation),
		discussions:   make(map[string]models.Discussion),
		media:         make(map[string]models.Media),
		hub:           newHub(),
		logger:        logger,
	}
}

func (s *MemoryStore) Tweet(id string) (*models.Tweet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tweets[id]
	if !ok {
		return nil, false
	}
	return &t, true
}

func (s *MemoryStore) User(id string) (*models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, false
	}
	return &u, true
}

func (s *MemoryStore) Conversation(id string) (*models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, false
	}
	return &c, true
}

func (s *MemoryStore) Discussion(id string) (*models.Discussion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.discussions[id]
	if !ok {
		return nil, false
	}
	return &d, true
}

func (s *MemoryStore) Media(key string) (*models.Media, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.media[key]
	if !ok {
		return nil, false
	}
	return &m, true
}

func (s *MemoryStore) SaveTweet(t *models.Tweet) error {
	return s.Transaction(func(tx Store) error { return tx.SaveTweet(t) })
}

func (s *MemoryStore) SaveUser(u *models.User) error {
	return s.Transaction(func(tx Store) error { return tx.SaveUser(u) })
}

func (s *MemoryStore) SaveConversation(c *models.Conversation) error {
	return s.Transaction(func(tx Store) error { return tx.SaveConversation(c) })
}

func (s *MemoryStore) SaveDiscussion(d *models.Discussion) error {
	return s.Transaction(func(tx Store) error { return tx.SaveDiscussion(d) })
}

func (s *MemoryStore) SaveMedia(m *models.Media) error {
	return s.Transaction(func(tx Store) error { return tx.SaveMedia(m) })
}

func (s *MemoryStore) ConversationsWithoutDiscussion() ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return conversationsWithoutDiscussion(s.conversations), nil
}

func (s *MemoryStore) ConversationTweets(conversationID string) ([]models.Tweet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return conversationTweets(s.tweets, conversationID), nil
}

func (s *MemoryStore) DiscussionConversations(discussionID string) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return discussionConversations(s.conversations, discussionID), nil
}

func (s *MemoryStore) TweetsWithDanglingRefs() ([]models.Tweet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tweetsWithDanglingRefs(s.tweets), nil
}

func (s *MemoryStore) FollowedUserIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, u := range s.users {
		if u.Following {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) NewestTweetID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	newest := ""
	for id, t := range s.tweets {
		if t.Unavailable {
			continue
		}
		if newest == "" || LessTweetID(newest, id) {
			newest = id
		}
	}
	return newest, newest != ""
}

func (s *MemoryStore) MarkDiscussionRead(id string, opts ...TxOption) error {
	return s.Transaction(func(tx Store) error {
		return markDiscussionRead(tx, id)
	}, opts...)
}

// Transaction runs fn against a staged copy of the store. On success the
// copy replaces the live maps and buffered notifications fire; on error
// the copy is discarded.
func (s *MemoryStore) Transaction(fn func(tx Store) error, opts ...TxOption) error {
	options := applyTxOptions(opts)

	s.mu.Lock()
	tx := &memoryTx{
		store:         s,
		tweets:        copyMap(s.tweets),
		users:         copyMap(s.users),
		conversations: copyMap(s.conversations),
		discussions:   copyMap(s.discussions),
		media:         copyMap(s.media),
	}

	if err := fn(tx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("transaction rolled back: %w", err)
	}

	s.tweets = tx.tweets
	s.users = tx.users
	s.conversations = tx.conversations
	s.discussions = tx.discussions
	s.media = tx.media
	changes := tx.changes
	s.mu.Unlock()

	s.hub.publish(changes, options.suppressed)
	return nil
}

func (s *MemoryStore) Subscribe(cols ...Collection) (ObserverToken, <-chan Change) {
	return s.hub.subscribe(cols...)
}

func (s *MemoryStore) Unsubscribe(token ObserverToken) {
	s.hub.unsubscribe(token)
}

// memoryTx is the transactional view handed to Transaction callbacks.
// It is not safe for concurrent use; the enclosing Transaction holds the
// store lock for its whole lifetime.
type memoryTx struct {
	store         *MemoryStore
	tweets        map[string]models.Tweet
	users         map[string]models.User
	conversations map[string]models.Conversation
	discussions   map[string]models.Discussion
	media         map[string]models.Media
	changes       []Change
}

func (tx *memoryTx) record(col Collection, id string) {
	tx.changes = append(tx.changes, Change{Collection: col, ID: id})
}

func (tx *memoryTx) Tweet(id string) (*models.Tweet, bool) {
	t, ok := tx.tweets[id]
	if !ok {
		return nil, false
	}
	return &t, true
}

func (tx *memoryTx) User(id string) (*models.User, bool) {
	u, ok := tx.users[id]
	if !ok {
		return nil, false
	}
	return &u, true
}

func (tx *memoryTx) Conversation(id string) (*models.Conversation, bool) {
	c, ok := tx.conversations[id]
	if !ok {
		return nil, false
	}
	return &c, true
}

func (tx *memoryTx) Discussion(id string) (*models.Discussion, bool) {
	d, ok := tx.discussions[id]
	if !ok {
		return nil, false
	}
	return &d, true
}

func (tx *memoryTx) Media(key string) (*models.Media, bool) {
	m, ok := tx.media[key]
	if !ok {
		return nil, false
	}
	return &m, true
}

func (tx *memoryTx) SaveTweet(t *models.Tweet) error {
	tx.tweets[t.ID] = *t
	tx.record(TweetsCollection, t.ID)
	return nil
}

func (tx *memoryTx) SaveUser(u *models.User) error {
	tx.users[u.ID] = *u
	tx.record(UsersCollection, u.ID)
	return nil
}

func (tx *memoryTx) SaveConversation(c *models.Conversation) error {
	tx.conversations[c.ID] = *c
	tx.record(ConversationsCollection, c.ID)
	return nil
}

func (tx *memoryTx) SaveDiscussion(d *models.Discussion) error {
	tx.discussions[d.ID] = *d
	tx.record(DiscussionsCollection, d.ID)
	return nil
}

func (tx *memoryTx) SaveMedia(m *models.Media) error {
	tx.media[m.MediaKey] = *m
	tx.record(MediaCollection, m.MediaKey)
	return nil
}

func (tx *memoryTx) ConversationsWithoutDiscussion() ([]models.Conversation, error) {
	return conversationsWithoutDiscussion(tx.conversations), nil
}

func (tx *memoryTx) ConversationTweets(conversationID string) ([]models.Tweet, error) {
	return conversationTweets(tx.tweets, conversationID), nil
}

func (tx *memoryTx) DiscussionConversations(discussionID string) ([]models.Conversation, error) {
	return discussionConversations(tx.conversations, discussionID), nil
}

func (tx *memoryTx) TweetsWithDanglingRefs() ([]models.Tweet, error) {
	return tweetsWithDanglingRefs(tx.tweets), nil
}

func (tx *memoryTx) FollowedUserIDs() ([]string, error) {
	var ids []string
	for id, u := range tx.users {
		if u.Following {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (tx *memoryTx) NewestTweetID() (string, bool) {
	newest := ""
	for id, t := range tx.tweets {
		if t.Unavailable {
			continue
		}
		if newest == "" || LessTweetID(newest, id) {
			newest = id
		}
	}
	return newest, newest != ""
}

func (tx *memoryTx) MarkDiscussionRead(id string, _ ...TxOption) error {
	return markDiscussionRead(tx, id)
}

// Transaction on an open transaction joins it. Suppression options of the
// nested call are ignored; the outer transaction already owns them.
func (tx *memoryTx) Transaction(fn func(tx Store) error, _ ...TxOption) error {
	return fn(tx)
}

func (tx *memoryTx) Subscribe(cols ...Collection) (ObserverToken, <-chan Change) {
	return tx.store.hub.subscribe(cols...)
}

func (tx *memoryTx) Unsubscribe(token ObserverToken) {
	tx.store.hub.unsubscribe(token)
}

func copyMap[V any](src map[string]V) map[string]V {
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func conversationsWithoutDiscussion(conversations map[string]models.Conversation) []models.Conversation {
	var out []models.Conversation
	for _, c := range conversations {
		if !c.Attached() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func conversationTweets(tweets map[string]models.Tweet, conversationID string) []models.Tweet {
	var out []models.Tweet
	for _, t := range tweets {
		if t.ConversationID == conversationID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func discussionConversations(conversations map[string]models.Conversation, discussionID string) []models.Conversation {
	var out []models.Conversation
	for _, c := range conversations {
		if c.DiscussionID == discussionID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func tweetsWithDanglingRefs(tweets map[string]models.Tweet) []models.Tweet {
	var out []models.Tweet
	for _, t := range tweets {
		if t.Dangling != 0 {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// markDiscussionRead is shared by both store implementations. Writes are
// skipped for rows already marked read, keeping repeat calls mutation-free.
func markDiscussionRead(tx Store, id string) error {
	d, ok := tx.Discussion(id)
	if !ok {
		return fmt.Errorf("discussion not found: %s", id)
	}
	if !d.Read {
		d.Read = true
		if err := tx.SaveDiscussion(d); err != nil {
			return err
		}
	}

	convs, err := tx.DiscussionConversations(id)
	if err != nil {
		return err
	}
	for _, c := range convs {
		tweets, err := tx.ConversationTweets(c.ID)
		if err != nil {
			return err
		}
		for i := range tweets {
			if tweets[i].Read {
				continue
			}
			tweets[i].Read = true
			if err := tx.SaveTweet(&tweets[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// LessTweetID orders tweet IDs numerically: IDs are decimal strings, so a
// shorter string is always the smaller number and equal lengths compare
// lexically.
func LessTweetID(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
