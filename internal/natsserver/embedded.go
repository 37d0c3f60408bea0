package natsserver

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/narrator/internal/config"
	"github.com/nats-io/nats-server/v2/server"
)

// maxPayload admits whole markdown documents in one synthesize request.
const maxPayload = 8 << 20

// EmbeddedServer runs an in-process NATS server with JetStream so a single
// narratord binary has a bus and an object store without external services.
type EmbeddedServer struct {
	ns  *server.Server
	log *slog.Logger
}

// Start launches the server when cfg.Embedded is set and returns nil
// otherwise. A negative port picks a random free one.
func Start(cfg config.BusConfig, log *slog.Logger) (*EmbeddedServer, error) {
	if !cfg.Embedded {
		return nil, nil
	}
	storeDir := cfg.StoreDir
	if storeDir == "" {
		storeDir = "./data/nats"
	}

	opts := &server.Options{
		ServerName: "narrator-embedded",
		Host:       "127.0.0.1",
		Port:       cfg.Port,
		JetStream:  true,
		StoreDir:   storeDir,
		MaxPayload: maxPayload,
		NoSigs:     true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server failed to start within 5 seconds")
	}

	if !ns.JetStreamEnabled() {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server started without JetStream")
	}

	log.Info("embedded NATS server started",
		slog.String("url", ns.ClientURL()),
		slog.String("store_dir", storeDir))

	return &EmbeddedServer{
		ns:  ns,
		log: log,
	}, nil
}

// ClientURL is the URL clients use to reach the server.
func (e *EmbeddedServer) ClientURL() string {
	if e == nil || e.ns == nil {
		return ""
	}
	return e.ns.ClientURL()
}

// Running reports whether the server still accepts connections.
func (e *EmbeddedServer) Running() bool {
	return e != nil && e.ns != nil && e.ns.Running()
}

func (e *EmbeddedServer) Shutdown() {
	if e == nil || e.ns == nil {
		return
	}
	e.log.Info("shutting down embedded NATS server")
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
}
