package twitter

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// GetFollowingIDs retrieves the IDs of every user the authenticated
// account follows, following pagination to the end of the list.
// Rate limit: 15/15m (user)
func (c *TwitterClient) GetFollowingIDs(ctx context.Context) ([]string, error) {
	log := c.logger.WithField("method", "GetFollowingIDs")

	endpoint := fmt.Sprintf("%s/%s/following", c.config.UserEndpoint, c.config.AccountID)

	var ids []string
	paginationToken := ""

	for {
		query := url.Values{}
		query.Set("max_results", "1000")
		query.Set("user.fields", strings.Join(c.config.UserFields, ","))
		if paginationToken != "" {
			query.Set("pagination_token", paginationToken)
		}

		resp, err := c.makeRequest(ctx, endpoint, query)
		if err != nil {
			log.WithError(err).Error("Failed to fetch following list")
			return nil, fmt.Errorf("failed to fetch following list: %w", err)
		}

		var page UserResponse
		if err := decodeResponse(resp, &page); err != nil {
			log.WithError(err).Error("Failed to decode response")
			return nil, err
		}

		for _, u := range page.Data {
			ids = append(ids, u.ID)
		}

		if page.Meta == nil || page.Meta.NextToken == "" {
			break
		}
		paginationToken = page.Meta.NextToken
	}

	log.WithField("following_count", len(ids)).Debug("Received following list")
	return ids, nil
}
