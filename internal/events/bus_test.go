package events

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Xausdorf/votechain/internal/usecase"
)

func TestDecodeChange(t *testing.T) {
	change, err := DecodeChange(`{"kind":"vote.cast","voting":"0xabc","origin":"node-1"}`)
	require.NoError(t, err)
	assert.Equal(t, usecase.Change{Kind: usecase.ChangeVoteCast, Voting: "0xabc", Origin: "node-1"}, change)

	_, err = DecodeChange(`{"voting":"0xabc"}`)
	assert.Error(t, err)
	_, err = DecodeChange(`not json`)
	assert.Error(t, err)
}

func TestDispatchSkipsMalformed(t *testing.T) {
	b := NewBusWithClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "", zaptest.NewLogger(t))
	t.Cleanup(func() { _ = b.Close() })

	var got []usecase.Change
	apply := func(c usecase.Change) { got = append(got, c) }

	b.dispatch(`{"kind":"voting.created","voting":"0x1","origin":"a"}`, apply)
	b.dispatch(`{}`, apply)
	require.Len(t, got, 1)
	assert.Equal(t, usecase.ChangeCreated, got[0].Kind)
	assert.Equal(t, DefaultChannel, b.channel)
}

func TestPublishUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	b := NewBusWithClient(client, "test", zaptest.NewLogger(t))
	t.Cleanup(func() { _ = b.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := b.Publish(ctx, usecase.Change{Kind: usecase.ChangeVoteCast, Voting: "0x1", Origin: "a"})
	assert.Error(t, err)
}
