package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	return client, srv
}

func TestPublisherPublishesNotification(t *testing.T) {
	ctx := context.Background()
	client, srv := newTestClient(t)

	_, err := client.CreateTopic(ctx, "alerts")
	require.NoError(t, err)

	pub := New(client)
	newValue := "$250"
	id, err := pub.Publish(ctx, "alerts", watch.Notification{
		Subject:   "pagewatch alert",
		MonitorID: "m1",
		NewValue:  &newValue,
		SentAt:    time.Unix(100, 0).UTC(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got watch.Notification
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, "m1", got.MonitorID)
	require.Equal(t, "$250", *got.NewValue)

	require.NoError(t, pub.Close())
}

func TestPublisherReusesTopicHandle(t *testing.T) {
	ctx := context.Background()
	client, srv := newTestClient(t)
	_, err := client.CreateTopic(ctx, "alerts")
	require.NoError(t, err)

	pub := New(client)
	for i := 0; i < 3; i++ {
		_, err := pub.Publish(ctx, "alerts", map[string]int{"n": i})
		require.NoError(t, err)
	}
	require.Len(t, pub.topics, 1)
	require.Len(t, srv.Messages(), 3)
	require.NoError(t, pub.Close())
}

func TestPublisherMissingTopicFails(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	pub := New(client)
	_, err := pub.Publish(ctx, "missing", "x")
	require.Error(t, err)
	require.NoError(t, pub.Close())
}

func TestPublisherValidation(t *testing.T) {
	t.Parallel()

	_, err := (&Publisher{}).Publish(context.Background(), "t", "x")
	require.ErrorContains(t, err, "not configured")

	client, _ := newTestClient(t)
	pub := New(client)
	_, err = pub.Publish(context.Background(), "", "x")
	require.ErrorContains(t, err, "topic is required")
	_, err = pub.Publish(context.Background(), "t", func() {})
	require.ErrorContains(t, err, "marshal payload")
	require.NoError(t, pub.Close())
}

func TestPubsubCarrier(t *testing.T) {
	t.Parallel()

	c := &pubsubCarrier{attrs: map[string]string{}}
	c.Set("traceparent", "00-abc")
	require.Equal(t, "00-abc", c.Get("traceparent"))
	require.Equal(t, []string{"traceparent"}, c.Keys())
}
