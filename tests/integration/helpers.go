package integration

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"artspire/internal/logger"
	"artspire/internal/recommendations"
)

const (
	containerStartupTimeout = 60
	eventWaitTimeout        = 30 * time.Second
)

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestEntries() []recommendations.Entry {
	return []recommendations.Entry{
		{ArtID: 1, Neighbours: []recommendations.Neighbour{{ArtID: 2, Score: 0.9}, {ArtID: 3, Score: 0.5}, {ArtID: 1, Score: 1}}},
		{ArtID: 2, Neighbours: []recommendations.Neighbour{{ArtID: 1, Score: 0.9}, {ArtID: 3, Score: 0.9}}},
		{ArtID: 3, Neighbours: []recommendations.Neighbour{{ArtID: 1, Score: 0.5}}},
	}
}

func createKafkaTopic(t *testing.T, brokers []string, topic string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		t.Fatalf("failed to dial kafka: %v", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		t.Fatalf("failed to find kafka controller: %v", err)
	}

	controllerConn, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		t.Fatalf("failed to dial kafka controller: %v", err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	if err != nil {
		t.Fatalf("failed to create topic %s: %v", topic, err)
	}
}
