package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fhriley/bump-bridge/internal/appnotify"
	"github.com/fhriley/bump-bridge/internal/chargerlink"
	"github.com/fhriley/bump-bridge/internal/config"
	"github.com/fhriley/bump-bridge/internal/session"
)

// Configuration flags
var (
	serialPort     = flag.String("serial", "", "Charger serial device path (auto-detected if empty)")
	batteryFile    = flag.String("battery", "", "Path to the battery descriptor YAML file (no battery if empty)")
	statusInterval = flag.Duration("status-interval", time.Second, "Interval between charger status polls")
	redisAddr      = flag.String("redis-addr", "localhost:6379", "Redis server address")
	redisPass      = flag.String("redis-pass", "", "Redis password")
	redisDB        = flag.Int("redis-db", 0, "Redis database number")
	notifyChannel  = flag.String("notify-channel", "bump-bridge:notify", "Redis channel outbound app frames are published on")
	recvKey        = flag.String("recv-key", "bump-bridge:recv", "Redis list key inbound app frames are popped from")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("Starting bump-bridge")
	log.Printf("Serial device: %s", *serialPort)
	log.Printf("Redis address: %s", *redisAddr)

	var battery *session.BatteryConfig
	var presetMap session.PresetMap
	if *batteryFile != "" {
		var err error
		battery, presetMap, err = config.LoadBattery(*batteryFile)
		if err != nil {
			log.Fatalf("Failed to load battery descriptor: %v", err)
		}
		log.Printf("Loaded battery descriptor: %s", *batteryFile)
	}

	link := chargerlink.New(*serialPort, log.Default())

	sink, err := appnotify.NewRedisSink(*redisAddr, *redisPass, *redisDB, *notifyChannel, *recvKey)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer sink.Close()
	log.Printf("Connected to Redis")

	sess := session.New(link, sink, battery, presetMap, *statusInterval, log.Default())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// SIGUSR1 triggers an operator diagnostic dump: the session's cached
	// state, CBOR-encoded, published on the Redis debug channel.
	debugCh := make(chan os.Signal, 1)
	signal.Notify(debugCh, syscall.SIGUSR1)

	stopRecv := make(chan struct{})
	go recvLoop(sess, sink, stopRecv)

	sess.StartNotify()
	sess.ConnectRequest()
	log.Printf("Session started, polling every %s", *statusInterval)

	ticker := time.NewTicker(*statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sess.StatusLoop()
		case <-debugCh:
			dumpDebugSnapshot(sess, sink)
		case <-sigCh:
			log.Printf("Shutting down...")
			close(stopRecv)
			sess.StopNotify()
			sess.Close()
			return
		}
	}
}

// dumpDebugSnapshot CBOR-encodes the session's current state and
// publishes it on the debug channel for operator tooling to consume.
func dumpDebugSnapshot(sess *session.Session, sink *appnotify.RedisSink) {
	snapshot, err := sess.DebugSnapshot()
	if err != nil {
		log.Printf("debug snapshot: %v", err)
		return
	}
	if err := sink.PublishDebug(snapshot); err != nil {
		log.Printf("publish debug snapshot: %v", err)
	}
}

// recvLoop forwards inbound app frames from the notify sink into the
// session's command handlers until stop is closed.
func recvLoop(sess *session.Session, sink appnotify.Sink, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		chunk, err := sink.Recv()
		if err != nil {
			log.Printf("recv: %v", err)
			continue
		}
		if chunk == nil {
			continue
		}
		sess.HandleAppFrame(chunk)
	}
}
