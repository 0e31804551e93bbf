package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// AnalyticsEvent mirrors the consumer's ingestion format
type AnalyticsEvent struct {
	UserID    string                 `json:"userId"`
	EventType string                 `json:"eventType"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// sendInterval converts an events-per-second rate into a ticker period
func sendInterval(eventsPerSecond int) (time.Duration, error) {
	if eventsPerSecond < 1 {
		return 0, fmt.Errorf("rate must be at least 1 event per second, got %d", eventsPerSecond)
	}
	return time.Second / time.Duration(eventsPerSecond), nil
}

var eventTypes = []string{
	"level_start", "level_complete", "level_failed", "player_death",
	"enemy_killed", "powerup_collected", "dash_used", "session_start",
	"session_end", "settings_changed",
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "game-events", "Kafka topic")
	totalUsers := flag.Int("users", 100, "Number of synthetic users")
	eventsPerSecond := flag.Int("rate", 50, "Events per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	interval, err := sendInterval(*eventsPerSecond)
	if err != nil {
		log.Fatalf("Invalid rate: %v", err)
	}

	brokerList := strings.Split(*brokers, ",")

	fmt.Printf("Analytics event producer\n")
	fmt.Printf("  brokers: %s\n", *brokers)
	fmt.Printf("  topic:   %s\n", *topic)
	fmt.Printf("  users:   %d\n", *totalUsers)
	fmt.Printf("  rate:    %d/sec\n", *eventsPerSecond)
	fmt.Println()

	// Synthetic user pool; ids only need to be well-formed. The sink
	// stores events from unregistered users with a NULL user reference.
	userIDs := make([]string, *totalUsers)
	for i := range userIDs {
		userIDs[i] = uuid.New().String()
	}

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	// Track producer successes and errors
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	sendEvent := func(event AnalyticsEvent) {
		data, err := json.Marshal(event)
		if err != nil {
			log.Printf("Failed to marshal event: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(event.UserID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
			return
		}
	}

	shutdown := func() {
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\nCompleted. Sent: %d, Errors: %d\n",
			atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var eventCount int64

	fmt.Println("Producing events, press Ctrl+C to stop")

	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			shutdown()
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\nDuration reached, shutting down...")
				shutdown()
				return
			}

			event := AnalyticsEvent{
				UserID:    userIDs[rand.Intn(len(userIDs))],
				EventType: eventTypes[rand.Intn(len(eventTypes))],
				Metadata: map[string]interface{}{
					"levelId": rand.Intn(10) + 1,
					"session": rand.Intn(1000),
				},
				Timestamp: time.Now(),
			}
			sendEvent(event)
			atomic.AddInt64(&eventCount, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] Events: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&eventCount),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
