package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestPublisher(t *testing.T) (*Publisher, *pstest.Server) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	_, err = client.CreateTopic(ctx, "catalog-updates")
	require.NoError(t, err)

	pub := New(client)
	t.Cleanup(func() { _ = pub.Close() })
	return pub, srv
}

func TestPublishSendsJSON(t *testing.T) {
	pub, srv := newTestPublisher(t)

	id, err := pub.Publish(context.Background(), "catalog-updates", map[string]any{
		"subject_id":   "w1",
		"content_type": "label",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got map[string]string
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, "w1", got["subject_id"])
	assert.Equal(t, "label", got["content_type"])
}

func TestPublishRequiresTopic(t *testing.T) {
	pub, _ := newTestPublisher(t)
	_, err := pub.Publish(context.Background(), "", "x")
	require.Error(t, err)
}

func TestPublishUnknownTopicFails(t *testing.T) {
	pub, _ := newTestPublisher(t)
	_, err := pub.Publish(context.Background(), "missing", "x")
	require.Error(t, err)
}

func TestPublishWithoutClient(t *testing.T) {
	_, err := (&Publisher{}).Publish(context.Background(), "t", "x")
	require.Error(t, err)
}

func TestCarrierKeys(t *testing.T) {
	c := &pubsubCarrier{attrs: map[string]string{}}
	c.Set("traceparent", "00-abc")
	assert.Equal(t, "00-abc", c.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, c.Keys())
}
