//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/hydro-etl/internal/adapter/kafka"
	"github.com/couchcryptid/hydro-etl/internal/adapter/memory"
	"github.com/couchcryptid/hydro-etl/internal/config"
	"github.com/couchcryptid/hydro-etl/internal/domain"
	"github.com/couchcryptid/hydro-etl/internal/observability"
	"github.com/couchcryptid/hydro-etl/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testTopic = "test-hydro-products"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("hydro-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
}

type productMessage struct {
	Product domain.Product
	Key     string
	Headers map[string]string
}

func readProduct(ctx context.Context, t *testing.T, consumer *kafkago.Reader) productMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read product topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var p domain.Product
	require.NoError(t, json.Unmarshal(msg.Value, &p), "unmarshal product")
	return productMessage{Product: p, Key: string(msg.Key), Headers: headers}
}

func newConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestNotifierPublishesProduct verifies a product event round-trips through Kafka.
func TestNotifierPublishesProduct(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic}
	notifier := kafka.NewNotifier(cfg, discardLogger())
	t.Cleanup(func() { _ = notifier.Close() })

	date := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, notifier.NotifyProduct(ctx, domain.Product{
		RunID:     "run-int",
		Kind:      domain.ProductDailyAggregate,
		Path:      "/out/20100101.nc",
		Date:      &date,
		CreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}))

	pm := readProduct(ctx, t, newConsumer(t, broker))
	assert.Equal(t, "/out/20100101.nc", pm.Key)
	assert.Equal(t, "daily_aggregate", pm.Headers["kind"])
	_, err := time.Parse(time.RFC3339, pm.Headers["created_at"])
	assert.NoError(t, err, "created_at should be valid RFC3339")
	assert.Equal(t, "run-int", pm.Product.RunID)
	require.NotNil(t, pm.Product.Date)
	assert.Equal(t, date, *pm.Product.Date)
}

// TestReturnPeriodRunAnnouncesProduct wires the return-period runner to a real
// broker and checks the committed region is announced once.
func TestReturnPeriodRunAnnouncesProduct(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic}
	notifier := kafka.NewNotifier(cfg, discardLogger())
	t.Cleanup(func() { _ = notifier.Close() })

	src := filepath.Join("/master", "africa-geoglows", "Qout_era5.nc")
	store := memory.NewStorage()
	store.Put(memory.NewDataset(src).
		AddDimension("time", domain.RequiredDays(2000, 2001)).
		AddDimension("rivid", 1).
		AddVariable("rivid", domain.Int32, []string{"rivid"}, nil, []float64{7}).
		AddVariable("lat", domain.Float64, []string{"rivid"}, nil, []float64{1}).
		AddVariable("lon", domain.Float64, []string{"rivid"}, nil, []float64{2}).
		AddVariable("Qout", domain.Float32, []string{"time", "rivid"}, nil, ramp(domain.RequiredDays(2000, 2001))))

	job := pipeline.ReturnPeriodJob{
		Source:  pipeline.QoutSource{Region: "africa-geoglows", Path: src},
		Profile: pipeline.SourceProfile{Tag: "era5", StartYear: 2000, EndYear: 2001},
		Output:  filepath.Join("/master", "africa-geoglows", "gumbel_return_periods_era5_2000_2001.nc4"),
	}
	r := pipeline.NewReturnPeriodRunner(store, notifier, discardLogger(), observability.NewMetricsForTesting(), "run-int")
	require.NoError(t, r.Run(ctx, []pipeline.ReturnPeriodJob{job}, pipeline.ReturnPeriodConfig{}))

	pm := readProduct(ctx, t, newConsumer(t, broker))
	assert.Equal(t, job.Output, pm.Key)
	assert.Equal(t, "return_periods", pm.Headers["kind"])
	assert.Equal(t, 1, pm.Product.Units)
	assert.Equal(t, 2000, pm.Product.StartYear)
	assert.Equal(t, 2001, pm.Product.EndYear)
}

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}
