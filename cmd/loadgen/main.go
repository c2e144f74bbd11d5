package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

// QueueJoinMessage is the wire format consumed by the action ingester
type QueueJoinMessage struct {
	Kind              string `json:"kind"`
	PlayerID          string `json:"player_id"`
	SkillRange        int    `json:"skill_range,omitempty"`
	MaxWaitSeconds    int    `json:"max_wait_seconds,omitempty"`
	Region            string `json:"region,omitempty"`
	ConnectionQuality string `json:"connection_quality,omitempty"`
	LatencyMs         int    `json:"latency_ms,omitempty"`
}

// registerPlayer is the registration payload for the HTTP API
type registerPlayer struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	SkillRating int    `json:"skill_rating"`
	Region      string `json:"region"`
}

var playerPrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
	"Ace", "Bolt", "Crash", "Dash", "Edge", "Flash", "Glitch", "Haze", "Ion", "Jade",
	"Knight", "Luna", "Mystic", "Neon", "Orion", "Pulse", "Quantum", "Rebel", "Spark", "Turbo",
}

var regions = []string{"us-east", "us-west", "eu-west", "ap-south"}

var qualities = []string{"poor", "fair", "good", "excellent"}

func getPlayerName(idx int) string {
	prefixIdx := idx % len(playerPrefixes)
	suffix := idx/len(playerPrefixes) + 1
	return fmt.Sprintf("%s%d", playerPrefixes[prefixIdx], suffix)
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "mafia-actions", "Kafka topic")
	apiURL := flag.String("api", "http://localhost:8080", "Server API base URL for player registration")
	totalPlayers := flag.Int("players", 200, "Total number of players to register")
	joinsPerSecond := flag.Int("rate", 20, "Queue joins per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	registerOnly := flag.Bool("register-only", false, "Only register players, no queue joins")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  🎭 Mafia Matchmaking Load Generator")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  API:              %s\n", *apiURL)
	fmt.Printf("  Total Players:    %d\n", *totalPlayers)
	fmt.Printf("  Joins/sec:        %d\n", *joinsPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Register players through the HTTP API so queue joins resolve
	// against the registry
	fmt.Printf("Registering %d players...\n", *totalPlayers)
	client := &http.Client{Timeout: 5 * time.Second}
	registered := 0
	for i := 0; i < *totalPlayers; i++ {
		player := registerPlayer{
			ID:          getPlayerName(i),
			Username:    getPlayerName(i),
			SkillRating: rand.Intn(1600) + 400,
			Region:      regions[i%len(regions)],
		}
		body, _ := json.Marshal(player)
		resp, err := client.Post(*apiURL+"/api/v1/players", "application/json", bytes.NewReader(body))
		if err != nil {
			log.Printf("Failed to register %s: %v", player.ID, err)
			continue
		}
		resp.Body.Close()
		registered++
		if registered%50 == 0 {
			fmt.Printf("\r  Progress: %d/%d players", registered, *totalPlayers)
		}
	}
	fmt.Printf("\n✓ Registered %d players\n\n", registered)

	if *registerOnly {
		fmt.Println("Register-only mode: Exiting after registering players")
		return
	}

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	// Create producer
	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	// Handle producer errors and successes
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

	sendJoin := func(msg QueueJoinMessage) {
		data, err := json.Marshal(msg)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		m := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(msg.PlayerID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- m:
		case <-done:
			return
		}
	}

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Streaming queue joins (%d/sec)\n", *joinsPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	interval := time.Second / time.Duration(*joinsPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var joinCount int64

	shutdown := func(reason string) {
		fmt.Printf("\n\n%s\n", reason)
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	for {
		select {
		case <-sigChan:
			shutdown("Shutting down...")
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				shutdown("Duration reached, shutting down...")
				return
			}

			idx := rand.Intn(*totalPlayers)
			msg := QueueJoinMessage{
				Kind:              "queue_join",
				PlayerID:          getPlayerName(idx),
				SkillRange:        rand.Intn(150) + 50,
				MaxWaitSeconds:    rand.Intn(240) + 60,
				Region:            regions[idx%len(regions)],
				ConnectionQuality: qualities[rand.Intn(len(qualities))],
				LatencyMs:         rand.Intn(180) + 20,
			}
			sendJoin(msg)
			atomic.AddInt64(&joinCount, 1)

		case <-statsTicker.C:
			joins := atomic.LoadInt64(&joinCount)
			success := atomic.LoadInt64(&successCount)
			errors := atomic.LoadInt64(&errorCount)
			fmt.Printf("[%s] Joins: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				joins,
				success,
				errors,
			)
		}
	}
}
