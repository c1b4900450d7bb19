package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	platformevents "github.com/Varn22/pixel-time-tracker/pkg/platform/events"
)

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestDeliverFramesPayloadAndSetsHeaders(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	dispatcher := NewDispatcher(nil, producer, registry, time.Millisecond, 10)

	payload := json.RawMessage(`{"user_id":"u1","new_level":2}`)
	messages := []Message{
		{EventID: 1, UserID: "u1", EventType: platformevents.TypeLevelUp, Topic: "progress_events", SchemaSubject: "progress_events-value", PartitionKey: "u1", Payload: payload},
		{EventID: 2, UserID: "u1", EventType: platformevents.TypeAchievementUnlocked, Topic: "achievement_events", SchemaSubject: "achievement_events-value", PartitionKey: "u1", Payload: payload},
		{EventID: 3, UserID: "u2", EventType: platformevents.TypeLevelUp, Topic: "progress_events", SchemaSubject: "progress_events-value", PartitionKey: "u2", Payload: payload},
	}

	delivered, failed, err := dispatcher.deliver(context.Background(), messages)
	require.NoError(t, err)
	require.Len(t, delivered, 3)
	require.Empty(t, failed)

	require.Len(t, producer.writes, 2)
	require.Equal(t, "progress_events", producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 2)
	require.Equal(t, "achievement_events", producer.writes[1].topic)
	require.Equal(t, []string{"progress_events-value", "achievement_events-value"}, registry.calls, "schema IDs are cached per subject")

	first := producer.writes[0].messages[0]
	require.Equal(t, "u1", string(first.Key))
	require.Equal(t, platformevents.TypeLevelUp, header(first, "event_type"))
	require.Equal(t, "u1", header(first, "user_id"))
	require.Equal(t, "progress_events-value", header(first, "schema_subject"))
	require.Equal(t, byte(0), first.Value[0])
	require.EqualValues(t, 42, binary.BigEndian.Uint32(first.Value[1:5]))
	require.JSONEq(t, string(payload), string(first.Value[5:]))
}

func TestDeliverRejectsUnknownEventTypes(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{}
	dispatcher := NewDispatcher(nil, producer, registry, time.Millisecond, 10)

	_, failed, err := dispatcher.deliver(context.Background(), []Message{{EventID: 9, EventType: "user.deleted", Topic: "x"}})
	require.ErrorContains(t, err, "no schema metadata for event_type=user.deleted")
	require.Len(t, failed, 1)
	require.Empty(t, producer.writes)
	require.Empty(t, registry.calls)
}

func TestDeliverIsolatesFailingTopic(t *testing.T) {
	producer := &stubProducer{failTopic: "achievement_events"}
	dispatcher := NewDispatcher(nil, producer, &stubRegistry{id: 5}, time.Millisecond, 10)

	payload := json.RawMessage(`{"user_id":"u1"}`)
	delivered, failed, err := dispatcher.deliver(context.Background(), []Message{
		{EventID: 1, EventType: platformevents.TypeAchievementUnlocked, Topic: "achievement_events", SchemaSubject: "achievement_events-value", Payload: payload},
		{EventID: 2, EventType: platformevents.TypeLevelUp, Topic: "progress_events", SchemaSubject: "progress_events-value", Payload: payload},
	})
	require.ErrorContains(t, err, "write achievement_events")
	require.Equal(t, []int64{2}, eventIDs(delivered))
	require.Equal(t, []int64{1}, eventIDs(failed))
	require.Len(t, producer.writes, 1)
	require.Equal(t, "progress_events", producer.writes[0].topic)
}

func TestDeliverPropagatesProducerErrors(t *testing.T) {
	producer := &stubProducer{err: errors.New("broker down")}
	dispatcher := NewDispatcher(nil, producer, &stubRegistry{}, time.Millisecond, 10)

	delivered, failed, err := dispatcher.deliver(context.Background(), []Message{{EventType: platformevents.TypeActivityCompleted, Topic: "activity_events", SchemaSubject: "activity_events-value", Payload: json.RawMessage(`{}`)}})
	require.ErrorContains(t, err, "broker down")
	require.Empty(t, delivered)
	require.Len(t, failed, 1)
}

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	m := NewDLQManager(nil, 5, time.Minute, nil)
	require.Equal(t, time.Minute, m.backoffDelay(1))
	require.Equal(t, 4*time.Minute, m.backoffDelay(3))
	require.Equal(t, time.Hour, m.backoffDelay(10))
	require.Equal(t, time.Hour, m.backoffDelay(64))
}

func TestSchemaRegistryRegistersMissingSubject(t *testing.T) {
	var registered bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/subjects/progress_events-value/versions/latest":
			if !registered {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(`{"id":7}`))
		case r.Method == http.MethodPost && r.URL.Path == "/subjects/progress_events-value/versions":
			registered = true
			_, _ = w.Write([]byte(`{"id":7}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL + "/")
	id, err := client.EnsureSchema(context.Background(), "progress_events-value", levelUpSchema)
	require.NoError(t, err)
	require.Equal(t, 7, id)
	require.True(t, registered)

	_, err = client.EnsureSchema(context.Background(), "other-value", levelUpSchema)
	require.ErrorContains(t, err, "status 500")
}

func TestSchemaRegistrySendsURLCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":11}`))
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(strings.Replace(srv.URL, "http://", "http://key:secret@", 1))
	id, err := client.EnsureSchema(context.Background(), "activity_events-value", activityCompletedSchema)
	require.NoError(t, err)
	require.Equal(t, 11, id)
}

func TestStaticRegistryIsStablePerSubject(t *testing.T) {
	r := NewStaticRegistry()
	a, _ := r.EnsureSchema(context.Background(), "a", "")
	b, _ := r.EnsureSchema(context.Background(), "b", "")
	again, _ := r.EnsureSchema(context.Background(), "a", "")
	require.Equal(t, a, again)
	require.NotEqual(t, a, b)
}
