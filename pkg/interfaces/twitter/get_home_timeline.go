package twitter

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
)

// GetHomeTimelineParams holds the parameters for the GetHomeTimeline request
type GetHomeTimelineParams struct {
	SinceID  string
	UntilID  string
	MaxPages int // 0 means a single page
}

// GetHomeTimeline retrieves the authenticated user's reverse-chronological
// home timeline, following pagination tokens up to MaxPages pages.
// Rate limit: 180/15m (user)
func (c *TwitterClient) GetHomeTimeline(ctx context.Context, params GetHomeTimelineParams) (*TweetResponse, error) {
	log := c.logger.WithFields(logrus.Fields{
		"method":   "GetHomeTimeline",
		"since_id": params.SinceID,
	})

	endpoint := fmt.Sprintf("%s/%s/timelines/reverse_chronological",
		c.config.UserEndpoint, c.config.AccountID)

	merged := &TweetResponse{Includes: &TweetIncludes{}}
	paginationToken := ""
	pages := 0

	for {
		query := c.lookupQuery()
		query.Set("max_results", strconv.Itoa(MaxTweetLookup))
		if params.SinceID != "" {
			query.Set("since_id", params.SinceID)
		}
		if params.UntilID != "" {
			query.Set("until_id", params.UntilID)
		}
		if paginationToken != "" {
			query.Set("pagination_token", paginationToken)
		}

		log.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"page":     pages + 1,
		}).Debug("Fetching home timeline page")

		resp, err := c.makeRequest(ctx, endpoint, query)
		if err != nil {
			log.WithError(err).Error("Failed to fetch home timeline")
			return nil, fmt.Errorf("failed to fetch home timeline: %w", err)
		}

		var page TweetResponse
		if err := decodeResponse(resp, &page); err != nil {
			log.WithError(err).Error("Failed to decode response")
			return nil, err
		}

		merged.Data = append(merged.Data, page.Data...)
		if page.Includes != nil {
			merged.Includes.Tweets = append(merged.Includes.Tweets, page.Includes.Tweets...)
			merged.Includes.Users = append(merged.Includes.Users, page.Includes.Users...)
			merged.Includes.Media = append(merged.Includes.Media, page.Includes.Media...)
		}

		pages++
		if page.Meta == nil || page.Meta.NextToken == "" {
			break
		}
		if params.MaxPages > 0 && pages >= params.MaxPages {
			log.WithField("pages", pages).Debug("Page cap reached")
			break
		}
		paginationToken = page.Meta.NextToken
	}

	log.WithFields(logrus.Fields{
		"tweets_found": len(merged.Data),
		"pages":        pages,
	}).Debug("Received home timeline")

	return merged, nil
}
