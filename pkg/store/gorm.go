package store

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/birdthread/threader-go/pkg/db/models"
)

// GormStore is the postgres-backed Store implementation.
type GormStore struct {
	db      *gorm.DB
	hub     *hub
	logger  *logrus.Logger
	pending *[]Change // non-nil inside a transaction
}

// NewGormStore wraps an established gorm connection.
func NewGormStore(db *gorm.DB, logger *logrus.Logger) *GormStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &GormStore{
		db:     db,
		hub:    newHub(),
		logger: logger,
	}
}

func (s *GormStore) record(col Collection, id string) {
	if s.pending != nil {
		*s.pending = append(*s.pending, Change{Collection: col, ID: id})
		return
	}
	// Direct save outside a transaction notifies immediately.
	s.hub.publish([]Change{{Collection: col, ID: id}}, nil)
}

func (s *GormStore) find(dest interface{}, id string) bool {
	err := s.db.Where("id = ?", id).First(dest).Error
	if err == nil {
		return true
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.WithError(err).WithField("id", id).Error("store lookup failed")
	}
	return false
}

func (s *GormStore) Tweet(id string) (*models.Tweet, bool) {
	var t models.Tweet
	if !s.find(&t, id) {
		return nil, false
	}
	return &t, true
}

func (s *GormStore) User(id string) (*models.User, bool) {
	var u models.User
	if !s.find(&u, id) {
		return nil, false
	}
	return &u, true
}

func (s *GormStore) Conversation(id string) (*models.Conversation, bool) {
	var c models.Conversation
	if !s.find(&c, id) {
		return nil, false
	}
	return &c, true
}

func (s *GormStore) Discussion(id string) (*models.Discussion, bool) {
	var d models.Discussion
	if !s.find(&d, id) {
		return nil, false
	}
	return &d, true
}

func (s *GormStore) Media(key string) (*models.Media, bool) {
	var m models.Media
	err := s.db.Where("media_key = ?", key).First(&m).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.WithError(err).WithField("media_key", key).Error("store lookup failed")
		}
		return nil, false
	}
	return &m, true
}

func (s *GormStore) upsert(value interface{}, col Collection, id string) error {
	if err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(value).Error; err != nil {
		return fmt.Errorf("failed to save %s %s: %w", col, id, err)
	}
	s.record(col, id)
	return nil
}

func (s *GormStore) SaveTweet(t *models.Tweet) error {
	return s.upsert(t, TweetsCollection, t.ID)
}

func (s *GormStore) SaveUser(u *models.User) error {
	return s.upsert(u, UsersCollection, u.ID)
}

func (s *GormStore) SaveConversation(c *models.Conversation) error {
	return s.upsert(c, ConversationsCollection, c.ID)
}

func (s *GormStore) SaveDiscussion(d *models.Discussion) error {
	return s.upsert(d, DiscussionsCollection, d.ID)
}

func (s *GormStore) SaveMedia(m *models.Media) error {
	return s.upsert(m, MediaCollection, m.MediaKey)
}

func (s *GormStore) ConversationsWithoutDiscussion() ([]models.Conversation, error) {
	var out []models.Conversation
	err := s.db.Where("discussion_id = ''").Order("id").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query dangling conversations: %w", err)
	}
	return out, nil
}

func (s *GormStore) ConversationTweets(conversationID string) ([]models.Tweet, error) {
	var out []models.Tweet
	err := s.db.Where("conversation_id = ?", conversationID).Order("id").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation tweets: %w", err)
	}
	return out, nil
}

func (s *GormStore) DiscussionConversations(discussionID string) ([]models.Conversation, error) {
	var out []models.Conversation
	err := s.db.Where("discussion_id = ?", discussionID).Order("id").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query discussion conversations: %w", err)
	}
	return out, nil
}

func (s *GormStore) TweetsWithDanglingRefs() ([]models.Tweet, error) {
	var out []models.Tweet
	err := s.db.Where("dangling <> 0").Order("id").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query dangling tweets: %w", err)
	}
	return out, nil
}

func (s *GormStore) FollowedUserIDs() ([]string, error) {
	var ids []string
	err := s.db.Model(&models.User{}).Where("following = true").Order("id").Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query followed users: %w", err)
	}
	return ids, nil
}

func (s *GormStore) NewestTweetID() (string, bool) {
	// Numeric-string order: longer decimal strings are larger numbers.
	var id string
	err := s.db.Model(&models.Tweet{}).
		Where("unavailable = false").
		Order("length(id) DESC, id DESC").
		Limit(1).
		Pluck("id", &id).Error
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}

func (s *GormStore) MarkDiscussionRead(id string, opts ...TxOption) error {
	return s.Transaction(func(tx Store) error {
		return markDiscussionRead(tx, id)
	}, opts...)
}

func (s *GormStore) Transaction(fn func(tx Store) error, opts ...TxOption) error {
	if s.pending != nil {
		// Already inside a transaction; join it.
		return fn(s)
	}

	options := applyTxOptions(opts)
	changes := make([]Change, 0, 16)

	err := s.db.Transaction(func(gtx *gorm.DB) error {
		tx := &GormStore{
			db:      gtx,
			hub:     s.hub,
			logger:  s.logger,
			pending: &changes,
		}
		return fn(tx)
	})
	if err != nil {
		return fmt.Errorf("transaction rolled back: %w", err)
	}

	s.hub.publish(changes, options.suppressed)
	return nil
}

func (s *GormStore) Subscribe(cols ...Collection) (ObserverToken, <-chan Change) {
	return s.hub.subscribe(cols...)
}

func (s *GormStore) Unsubscribe(token ObserverToken) {
	s.hub.unsubscribe(token)
}
