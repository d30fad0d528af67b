package redisrepo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// PendingPubSub announces matches that received intake rows. Messages are
// hints only: a lost message delays reconciliation until the next sweep.
type PendingPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewPendingPubSub(rdb *redis.Client) *PendingPubSub {
	return &PendingPubSub{
		rdb:     rdb,
		channel: ChannelPending(),
	}
}

type pendingMsg struct {
	Type    string `json:"type"`
	MatchID int64  `json:"match_id"`
	TsUnix  int64  `json:"ts_unix"`
}

func (p *PendingPubSub) PublishPending(ctx context.Context, matchID int64) error {
	msg := pendingMsg{
		Type:    "requests_pending",
		MatchID: matchID,
		TsUnix:  time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe calls handler for every announced match until ctx is done.
func (p *PendingPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, matchID int64)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg pendingMsg
			if err := json.Unmarshal([]byte(m.Payload), &msg); err == nil &&
				msg.MatchID > 0 {
				handler(ctx, msg.MatchID)
			}
		}
	}
}
