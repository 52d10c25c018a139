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
)

// ScoreSubmission mirrors the ingestion message format
type ScoreSubmission struct {
	Player        string   `json:"player"`
	Username      string   `json:"username"`
	Time          int64    `json:"time"`
	Penalty       bool     `json:"penalty"`
	Timestamp     string   `json:"timestamp"`
	GameMode      string   `json:"game_mode,omitempty"`
	HitsCount     *int     `json:"hits_count,omitempty"`
	Accuracy      *float64 `json:"accuracy,omitempty"`
	SequenceTimes []int64  `json:"sequence_times,omitempty"`
	TotalTargets  *int     `json:"total_targets,omitempty"`
}

var playerPrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
	"Ace", "Bolt", "Crash", "Dash", "Edge", "Flash", "Glitch", "Haze", "Ion", "Jade",
	"Knight", "Luna", "Mystic", "Neon", "Orion", "Pulse", "Quantum", "Rebel", "Spark", "Turbo",
}

func getPlayerName(idx int) string {
	prefixIdx := idx % len(playerPrefixes)
	suffix := idx/len(playerPrefixes) + 1
	return fmt.Sprintf("%s%d", playerPrefixes[prefixIdx], suffix)
}

var gameModes = []string{"classic", "sequence", "endurance", "precision"}

// randomSubmission builds a plausible submission for a player. Reaction
// times cluster between 180ms and 450ms, with the occasional penalty.
func randomSubmission(playerIdx int) ScoreSubmission {
	name := getPlayerName(playerIdx)
	mode := gameModes[rand.Intn(len(gameModes))]

	sub := ScoreSubmission{
		Player:    fmt.Sprintf("player-%04d", playerIdx),
		Username:  name,
		Time:      int64(rand.Intn(270) + 180),
		Penalty:   rand.Intn(100) < 5,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		GameMode:  mode,
	}

	switch mode {
	case "sequence":
		count := rand.Intn(4) + 3
		times := make([]int64, count)
		var total int64
		for i := range times {
			times[i] = int64(rand.Intn(200) + 150)
			total += times[i]
		}
		sub.Time = total
		sub.SequenceTimes = times
		sub.TotalTargets = &count
	case "endurance":
		hits := rand.Intn(60) + 5
		sub.HitsCount = &hits
		sub.Time = int64(rand.Intn(5000) + 30000)
	case "precision":
		accuracy := float64(rand.Intn(4000)+6000) / 100
		targets := rand.Intn(10) + 5
		sub.Accuracy = &accuracy
		sub.TotalTargets = &targets
	}

	return sub
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "reflex-scores", "Kafka topic")
	totalPlayers := flag.Int("players", 200, "Total number of players to simulate")
	updatesPerSecond := flag.Int("rate", 50, "Submissions per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  🎮 Reflex Score Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Total Players:    %d\n", *totalPlayers)
	fmt.Printf("  Submissions/sec:  %d\n", *updatesPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

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

	// Send message helper
	sendMessage := func(submission ScoreSubmission) {
		data, err := json.Marshal(submission)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(submission.Player),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
			return
		}
	}

	fmt.Printf("Streaming submissions (%d/sec)\n", *updatesPerSecond)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	interval := time.Second / time.Duration(*updatesPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var submitCount int64

	shutdown := func() {
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	for {
		select {
		case <-sigChan:
			fmt.Println("\n\nShutting down...")
			shutdown()
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\n\nDuration reached, shutting down...")
				shutdown()
				return
			}

			sendMessage(randomSubmission(rand.Intn(*totalPlayers)))
			atomic.AddInt64(&submitCount, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] Submitted: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&submitCount),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
