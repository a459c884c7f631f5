package tracing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesFiltersUnknownKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("event_type", "JourneyCreated"),
		attribute.String("user_email", "a@b.c"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("event_type"), attrs[0].Key)
}

func TestSafeErrorTruncates(t *testing.T) {
	err := SafeError(errors.New("first line\nsecond line"))
	assert.EqualError(t, err, "first line")

	long := SafeError(errors.New(strings.Repeat("x", 300)))
	assert.Len(t, long.Error(), 256)
	assert.Nil(t, SafeError(nil))
}

func TestNewProviderWithoutExporter(t *testing.T) {
	tp, err := NewProvider(nil, Config{ServiceName: "journeys", SamplingRatio: 1}, nil)
	assert.NoError(t, err)
	assert.NotNil(t, tp)
}

func TestSamplerBounds(t *testing.T) {
	assert.Equal(t, "AlwaysOnSampler", sampler(1).Description())
	assert.Equal(t, "AlwaysOffSampler", sampler(0).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}
