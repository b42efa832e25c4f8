package twitter

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// GetTweetsByIDs retrieves up to MaxTweetLookup tweets in one call, with
// referenced tweets, authors and media expanded into includes.
// Rate limit: 300/15m (app), 900/15m (user)
func (c *TwitterClient) GetTweetsByIDs(ctx context.Context, ids []string) (*TweetResponse, error) {
	if len(ids) == 0 {
		return &TweetResponse{}, nil
	}
	if len(ids) > MaxTweetLookup {
		return nil, fmt.Errorf("tweet lookup limited to %d ids, got %d", MaxTweetLookup, len(ids))
	}

	log := c.logger.WithFields(logrus.Fields{
		"method": "GetTweetsByIDs",
		"count":  len(ids),
	})

	query := c.lookupQuery()
	query.Set("ids", strings.Join(ids, ","))

	log.WithField("endpoint", c.config.TweetEndpoint).Debug("Fetching tweets by id")

	resp, err := c.makeRequest(ctx, c.config.TweetEndpoint, query)
	if err != nil {
		log.WithError(err).Error("Failed to fetch tweets")
		return nil, fmt.Errorf("failed to fetch tweets: %w", err)
	}

	var tweetResp TweetResponse
	if err := decodeResponse(resp, &tweetResp); err != nil {
		log.WithError(err).Error("Failed to decode response")
		return nil, err
	}

	// Partial errors (deleted or protected tweets) arrive alongside
	// data; the caller decides which IDs count as landed.
	for _, apiErr := range tweetResp.Errors {
		log.WithFields(logrus.Fields{
			"error_code":    apiErr.Code,
			"error_message": apiErr.Message,
		}).Warn("Tweet lookup partial error")
	}

	log.WithFields(logrus.Fields{
		"tweets_found":    len(tweetResp.Data),
		"included_tweets": includedTweetCount(&tweetResp),
	}).Debug("Received tweet lookup response")

	return &tweetResp, nil
}

func includedTweetCount(resp *TweetResponse) int {
	if resp.Includes == nil {
		return 0
	}
	return len(resp.Includes.Tweets)
}

// GetUsersByIDs retrieves up to MaxUserLookup users in one call.
// Rate limit: 300/15m (app), 900/15m (user)
func (c *TwitterClient) GetUsersByIDs(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxUserLookup {
		return nil, fmt.Errorf("user lookup limited to %d ids, got %d", MaxUserLookup, len(ids))
	}

	log := c.logger.WithFields(logrus.Fields{
		"method": "GetUsersByIDs",
		"count":  len(ids),
	})

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("user.fields", strings.Join(c.config.UserFields, ","))

	resp, err := c.makeRequest(ctx, c.config.UserEndpoint, query)
	if err != nil {
		log.WithError(err).Error("Failed to fetch users")
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}

	var userResp UserResponse
	if err := decodeResponse(resp, &userResp); err != nil {
		log.WithError(err).Error("Failed to decode response")
		return nil, err
	}

	log.WithField("users_found", len(userResp.Data)).Debug("Received user lookup response")
	return userResp.Data, nil
}
