package twitter

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	// MaxTweetLookup is the v2 tweet lookup endpoint's batch cap.
	MaxTweetLookup = 100
	// MaxUserLookup is the v2 user lookup endpoint's batch cap.
	MaxUserLookup = 100
)

type TwitterConfig struct {
	// API Authentication
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
	BearerToken       string

	// AccountID is the authenticated user's ID, required by the
	// timeline and following endpoints.
	AccountID string

	// API Endpoints
	BaseURL       string
	TweetEndpoint string
	UserEndpoint  string

	// Rate Limiting
	RateLimit  int // requests per window
	RateWindow int // window length in minutes

	// API Fields Configuration (based on Twitter v2 data dictionary)
	TweetFields     []string
	ExpansionFields []string
	MediaFields     []string
	UserFields      []string

	// General Config
	Logger *logrus.Logger
}

func NewTwitterConfig() (*TwitterConfig, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	rateLimit, _ := strconv.Atoi(getEnvOrDefault("TWITTER_RATE_LIMIT", "180"))
	rateWindow, _ := strconv.Atoi(getEnvOrDefault("TWITTER_RATE_WINDOW", "15"))

	config := &TwitterConfig{
		ConsumerKey:       os.Getenv("TWITTER_CONSUMER_KEY"),
		ConsumerSecret:    os.Getenv("TWITTER_CONSUMER_SECRET"),
		AccessToken:       os.Getenv("TWITTER_ACCESS_TOKEN"),
		AccessTokenSecret: os.Getenv("TWITTER_ACCESS_TOKEN_SECRET"),
		BearerToken:       os.Getenv("TWITTER_BEARER_TOKEN"),
		AccountID:         os.Getenv("TWITTER_ACCOUNT_ID"),

		BaseURL:       getEnvOrDefault("TWITTER_API_BASE_URL", "https://api.twitter.com/2"),
		TweetEndpoint: "/tweets",
		UserEndpoint:  "/users",

		RateLimit:  rateLimit,
		RateWindow: rateWindow,

		TweetFields: []string{
			"id",
			"text",
			"created_at",
			"author_id",
			"conversation_id",
			"in_reply_to_user_id",
			"referenced_tweets",
			"entities",
		},
		ExpansionFields: []string{
			"author_id",
			"referenced_tweets.id",
			"referenced_tweets.id.author_id",
			"in_reply_to_user_id",
			"attachments.media_keys",
			"entities.mentions.username",
		},
		MediaFields: []string{
			"media_key",
			"type",
			"url",
			"preview_image_url",
			"width",
			"height",
			"alt_text",
		},
		UserFields: []string{"id", "name", "username"},

		Logger: func() *logrus.Logger {
			log := logrus.New()
			if level := os.Getenv("LOG_LEVEL"); level != "" {
				if parsedLevel, err := logrus.ParseLevel(level); err == nil {
					log.SetLevel(parsedLevel)
				}
			}
			return log
		}(),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *TwitterConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}

	if !c.HasReadAccess() {
		return fmt.Errorf("either OAuth 1.0a credentials or Bearer token must be provided")
	}
	if c.AccountID == "" {
		return fmt.Errorf("TWITTER_ACCOUNT_ID is required")
	}

	if c.RateLimit < 1 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.RateWindow < 1 {
		return fmt.Errorf("rate window must be positive")
	}

	if c.BaseURL == "" {
		c.BaseURL = "https://api.twitter.com/2"
	}
	if c.TweetEndpoint == "" {
		c.TweetEndpoint = "/tweets"
	}
	if c.UserEndpoint == "" {
		c.UserEndpoint = "/users"
	}

	return nil
}

// HasWriteAccess returns true if OAuth 1.0a credentials are configured
func (c *TwitterConfig) HasWriteAccess() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" &&
		c.AccessToken != "" && c.AccessTokenSecret != ""
}

// HasReadAccess returns true if either OAuth 1.0a or Bearer token is configured
func (c *TwitterConfig) HasReadAccess() bool {
	return c.HasWriteAccess() || c.BearerToken != ""
}

// Helper function to get environment variable with default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
