package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/slack-go/slack"
)

// ChannelResolver maps configured channel names ("#reviews" or "reviews")
// to channel IDs. IDs pass through untouched. The channel list is fetched
// once per resolver, on the first name lookup.
type ChannelResolver struct {
	api *slack.Client

	mu     sync.Mutex
	byName map[string]string
}

func NewChannelResolver(api *slack.Client) *ChannelResolver {
	return &ChannelResolver{api: api}
}

func (r *ChannelResolver) Resolve(ctx context.Context, nameOrID string) (string, error) {
	val := strings.TrimSpace(nameOrID)
	if val == "" {
		return "", fmt.Errorf("empty slack channel")
	}
	if isLikelyChannelID(val) {
		return val, nil
	}
	key := strings.ToLower(strings.TrimPrefix(val, "#"))

	channels, err := r.cachedChannels(ctx)
	if err != nil {
		return "", fmt.Errorf("listing slack channels: %w", err)
	}
	id, ok := channels[key]
	if !ok {
		return "", fmt.Errorf("slack channel %q not found or bot is not a member", val)
	}
	return id, nil
}

func (r *ChannelResolver) cachedChannels(ctx context.Context) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byName != nil {
		return r.byName, nil
	}

	byName := make(map[string]string)
	params := &slack.GetConversationsParameters{
		ExcludeArchived: true,
		Limit:           200,
		Types:           []string{"public_channel", "private_channel"},
	}
	for {
		channels, cursor, err := r.api.GetConversationsContext(ctx, params)
		if err != nil {
			return nil, err
		}
		for _, ch := range channels {
			name := strings.ToLower(ch.Name)
			if _, exists := byName[name]; !exists && name != "" {
				byName[name] = ch.ID
			}
		}
		if cursor == "" {
			break
		}
		params.Cursor = cursor
	}
	r.byName = byName
	return byName, nil
}

// isLikelyChannelID matches public (C), private (G) and DM (D) channel IDs.
func isLikelyChannelID(val string) bool {
	if len(val) < 9 {
		return false
	}
	for i, c := range val {
		if i == 0 {
			if c != 'C' && c != 'G' && c != 'D' {
				return false
			}
			continue
		}
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
