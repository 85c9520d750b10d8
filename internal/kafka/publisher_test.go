package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credio/credio-alerts/internal/models"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testEvent() models.Disaster {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return models.Disaster{
		ID:         "usgs_us7000abcd",
		Source:     "usgs",
		ExternalID: "us7000abcd",
		Type:       models.DisasterTypeEarthquake,
		Severity:   models.SeverityHigh,
		Status:     models.StatusActive,
		Latitude:   12,
		Longitude:  77,
		RadiusKm:   100,
		Title:      "M 6.2 - near Bengaluru",
		Magnitude:  6.2,
		StartedAt:  now,
		Version:    2,
		UpdatedAt:  now,
	}
}

func TestSerializeToMessage(t *testing.T) {
	msg, err := serializeToMessage(testEvent())
	require.NoError(t, err)

	assert.Equal(t, []byte("usgs_us7000abcd"), msg.Key)
	assert.Contains(t, string(msg.Value), `"type":"EARTHQUAKE"`)
	assert.Contains(t, string(msg.Value), `"severity":"HIGH"`)
	assert.Contains(t, string(msg.Value), `"externalId":"us7000abcd"`)
	assert.Contains(t, string(msg.Value), `"version":2`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "version", msg.Headers[0].Key)
	assert.Equal(t, []byte("2"), msg.Headers[0].Value)
	assert.Equal(t, []byte("ACTIVE"), msg.Headers[1].Value)
}

func TestPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{writer: w}

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("usgs_us7000abcd"), w.msgs[0].Key)

	w.err = errors.New("broker down")
	assert.Error(t, p.Publish(context.Background(), testEvent()))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
