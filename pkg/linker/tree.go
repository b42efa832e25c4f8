package linker

import (
	"fmt"
	"sort"

	"github.com/birdthread/threader-go/pkg/db/models"
	"github.com/birdthread/threader-go/pkg/store"
)

// Node is one tweet in a discussion's reply tree. Nodes live in the
// Thread's arena and point at each other by index, never by pointer, so
// there are no back-references to dangle.
type Node struct {
	TweetID  string
	Parent   int // index into Thread.Nodes; -1 for the root
	Children []int
}

// Thread is the assembled reply tree of one discussion.
type Thread struct {
	DiscussionID string
	Nodes        []Node
	Root         int // index of the root node; -1 when the tree is empty
}

// BuildThread assembles the reply tree for a discussion from the store.
// Tweets are ordered by (creation time, then ID) before placement, so the
// resulting arena layout and child order are deterministic even when two
// tweets share a timestamp.
func BuildThread(st store.Store, discussionID string) (*Thread, error) {
	convs, err := st.DiscussionConversations(discussionID)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, fmt.Errorf("discussion not found or empty: %s", discussionID)
	}

	var tweets []models.Tweet
	rootByConversation := make(map[string]string, len(convs))
	for _, c := range convs {
		members, err := st.ConversationTweets(c.ID)
		if err != nil {
			return nil, err
		}
		rootByConversation[c.ID] = c.ID
		tweets = append(tweets, members...)
	}

	sort.Slice(tweets, func(i, j int) bool {
		if !tweets[i].CreatedAt.Equal(tweets[j].CreatedAt) {
			return tweets[i].CreatedAt.Before(tweets[j].CreatedAt)
		}
		return tweets[i].ID < tweets[j].ID
	})

	thread := &Thread{DiscussionID: discussionID, Root: -1}
	index := make(map[string]int, len(tweets))
	for _, t := range tweets {
		thread.Nodes = append(thread.Nodes, Node{TweetID: t.ID, Parent: -1})
		index[t.ID] = len(thread.Nodes) - 1
	}

	for _, t := range tweets {
		i := index[t.ID]
		parentID := treeParent(&t, index, rootByConversation)
		if parentID == "" {
			if thread.Root == -1 {
				thread.Root = i
			}
			continue
		}
		p := index[parentID]
		thread.Nodes[i].Parent = p
		thread.Nodes[p].Children = append(thread.Nodes[p].Children, i)
	}

	if thread.Root == -1 && len(thread.Nodes) > 0 {
		thread.Root = 0
	}
	return thread, nil
}

// treeParent resolves the tweet this tweet hangs under: its primary
// reference when that tweet is part of the thread, otherwise its
// conversation root.
func treeParent(t *models.Tweet, index map[string]int, rootByConversation map[string]string) string {
	if ref := t.PrimaryReference(); ref != "" {
		if _, in := index[ref]; in {
			return ref
		}
	}
	root := rootByConversation[t.ConversationID]
	if root != t.ID {
		if _, in := index[root]; in {
			return root
		}
	}
	return ""
}

// Walk visits the thread depth-first from the root, calling fn with each
// node index and its depth.
func (t *Thread) Walk(fn func(i, depth int)) {
	if t.Root < 0 {
		return
	}
	var visit func(i, depth int)
	visit = func(i, depth int) {
		fn(i, depth)
		for _, c := range t.Nodes[i].Children {
			visit(c, depth+1)
		}
	}
	visit(t.Root, 0)
}
