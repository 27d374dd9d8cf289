// Command event-viewer shows mirrored bus events live in a browser. It reads
// the Kafka mirror topic and streams each event over a WebSocket.
package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"flag"
	"io/fs"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"fish-assistant/internal/events"
	"fish-assistant/internal/observability/logging"
)

//go:embed static/*
var staticFiles embed.FS

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// consume forwards messages to the hub until ctx ends.
func consume(ctx context.Context, r messageReader, hub *Hub, logger zerolog.Logger) {
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn().Err(err).Msg("Kafka read error")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var ev Event
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			logger.Warn().Err(err).Msg("Skipping undecodable message")
			continue
		}
		if ev.Topic == "" {
			ev.Topic = header(msg, events.HeaderTopic)
		}
		logger.Debug().Str("topic", ev.Topic).Str("corrId", ev.CorrID).Msg("Event received")
		hub.Broadcast(ev)
	}
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func httpHandler(hub *Hub) http.Handler {
	staticFS, _ := fs.Sub(staticFiles, "static")
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("/ws", hub.ServeWS)
	return mux
}

func main() {
	addr := flag.String("addr", ":8081", "HTTP listen address")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "assistant.events", "Mirror topic")
	since := flag.Duration("since", time.Hour, "Replay events newer than this")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console"})
	logger := logging.WithComponent("event-viewer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Partition reader without a consumer group; works through port-forwards.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   strings.Split(*brokers, ","),
		Topic:     *topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()
	if err := reader.SetOffsetAt(ctx, time.Now().Add(-*since)); err != nil {
		logger.Warn().Err(err).Msg("Could not seek, reading from the committed offset")
	}

	hub := newHub(logger)
	go consume(ctx, reader, hub, logger)

	srv := &http.Server{Addr: *addr, Handler: httpHandler(hub), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().
		Str("addr", *addr).
		Str("brokers", *brokers).
		Str("topic", *topic).
		Msg("Event viewer started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server error")
	}
}
