package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/banshee-data/lidar.poi/internal/api"
	"github.com/banshee-data/lidar.poi/internal/config"
	"github.com/banshee-data/lidar.poi/internal/monitoring"
	"github.com/banshee-data/lidar.poi/internal/network"
	"github.com/banshee-data/lidar.poi/internal/poi"
	"github.com/banshee-data/lidar.poi/internal/poidb"
	"github.com/banshee-data/lidar.poi/internal/publish"
	"github.com/banshee-data/lidar.poi/internal/serialmux"
	"github.com/banshee-data/lidar.poi/internal/timeutil"
	"github.com/banshee-data/lidar.poi/internal/tracker"
	"github.com/banshee-data/lidar.poi/internal/version"
	"github.com/banshee-data/lidar.poi/internal/wire"
)

var (
	configPath  = flag.String("config", "", "Tuning config file (.json, .yaml); built-in defaults when empty")
	udpAddr     = flag.String("udp-addr", fmt.Sprintf(":%d", wire.DefaultPort), "UDP listen address for sensor packets (empty disables)")
	serialPath  = flag.String("serial", "", "Serial port carrying sensor readings")
	baud        = flag.Int("baud", serialmux.DefaultBaudRate, "Serial baud rate")
	pcapFile    = flag.String("pcap", "", "Replay sensor packets from a pcap file instead of listening on UDP")
	pcapPort    = flag.Int("pcap-port", wire.DefaultPort, "UDP port to select from the pcap (0 for all)")
	broadcast   = flag.String("broadcast", "", "host:port to send POI packets to")
	mqttBroker  = flag.String("mqtt", "", "MQTT broker URL, e.g. tcp://localhost:1883 (or MQTT_BROKER)")
	dbPath      = flag.String("db", "", "sqlite file for the POI log (empty disables)")
	listen      = flag.String("listen", ":8080", "HTTP listen address (empty disables)")
	logLevel    = flag.String("log-level", "", "Scan log level: none, stats, lidar, coord (overrides config)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// loadConfig reads the tuning file, if any, and resolves the scan log
// level with the flag taking precedence.
func loadConfig(path, levelFlag string) (*config.TuningConfig, monitoring.Level, error) {
	cfg := config.EmptyTuningConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadTuningConfig(path); err != nil {
			return nil, monitoring.LevelNone, err
		}
	}
	name := cfg.GetLogLevel()
	if levelFlag != "" {
		name = levelFlag
	}
	level, err := monitoring.ParseLevel(name)
	if err != nil {
		return nil, monitoring.LevelNone, err
	}
	return cfg, level, nil
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// .env is optional; it usually carries MQTT credentials.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}

	cfg, level, err := loadConfig(*configPath, *logLevel)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	log.Printf("lidar-poi %s", version.String())

	clock := timeutil.RealClock{}
	uptime := timeutil.NewUptimeClock(clock)

	table, err := poi.NewBinTable(cfg.ToParams(), uptime)
	if err != nil {
		log.Fatalf("failed to create bin table: %v", err)
	}
	trk, err := tracker.New(table, clock, tracker.Config{
		SweepInterval:    cfg.GetSweepInterval(),
		SweepBinsPerTick: cfg.GetSweepBinsPerTick(),
		ReportInterval:   cfg.GetReportInterval(),
	})
	if err != nil {
		log.Fatalf("failed to create tracker: %v", err)
	}
	p := table.Params()
	log.Printf("tracking %d bins (%.2f°), forget %v, transient %v, max POI %.0fmm",
		table.Len(), 1/p.DivisionsPerDegree, p.ForgetWindow, p.TransientWindow, p.MaxPOIDistance)

	stats := network.NewPacketStats(clock)
	seq := &network.SequenceTracker{}
	scan := monitoring.NewScanLogger(level, clock, seq.Lost)

	listener, err := network.NewListener(network.ListenerConfig{
		Address:       *udpAddr,
		RcvBuf:        1 << 20,
		StatsInterval: cfg.GetStatsInterval(),
		Clock:         clock,
		Stats:         stats,
		Sequence:      seq,
		ScanLogger:    scan,
		Ingester:      network.IngesterFunc(trk.Ingest),
		OnSenderReset: func() {
			log.Printf("sender restarted its sequence; resetting loss statistics")
			trk.ResetStats()
		},
	})
	if err != nil {
		log.Fatalf("failed to create listener: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	var wg sync.WaitGroup

	// Sinks.
	if *broadcast != "" {
		b, err := network.NewBroadcaster(*broadcast, cfg.GetBroadcastQueue(), stats, uptime)
		if err != nil {
			log.Fatalf("failed to create broadcaster: %v", err)
		}
		defer b.Close()
		b.Start(ctx, cfg.GetStatsInterval())
		trk.AddReporter(b)
	}

	if mc := publish.ConfigFromEnv(*mqttBroker); mc.Enabled() {
		client, err := publish.NewClient(mc)
		if err != nil {
			log.Fatalf("failed to create MQTT client: %v", err)
		}
		pub := publish.NewPublisher(client, publish.Options{
			Prefix:        cfg.GetMQTTTopic(),
			QoS:           cfg.GetMQTTQoS(),
			Retain:        cfg.GetMQTTRetain(),
			StatsInterval: cfg.GetStatsInterval(),
		})
		pub.SetRotationSource(scan.LastRotation)
		defer pub.Disconnect()
		trk.AddReporter(pub)

		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("connecting to MQTT broker %s", mc.Broker)
			if err := publish.ConnectWithRetry(ctx, client); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("MQTT connect stopped: %v", err)
			}
		}()
	}

	var (
		history api.History
		session string
	)
	if *dbPath != "" {
		db, err := poidb.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open POI log: %v", err)
		}
		defer db.Close()
		session, err = db.StartSession(table.Params(), clock.Now())
		if err != nil {
			log.Fatalf("failed to start session: %v", err)
		}
		defer func() {
			if err := db.EndSession(session, clock.Now()); err != nil {
				log.Printf("failed to end session %s: %v", session, err)
			}
		}()
		log.Printf("recording POI changes to %s (session %s)", *dbPath, session)
		trk.AddReporter(poidb.NewRecorder(db, session))
		history = db
	}

	// Sources.
	var (
		sendCommand func(string) error
		serialAdmin func(*http.ServeMux)
	)
	if *serialPath != "" {
		m, err := serialmux.OpenSerialMux(*serialPath, serialmux.PortOptions{BaudRate: *baud})
		if err != nil {
			log.Fatalf("failed to open serial port: %v", err)
		}
		defer m.Close()
		sendCommand = m.SendCommand
		serialAdmin = m.AttachAdminRoutes

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("failed to monitor serial port: %v", err)
			}
			log.Print("serial monitor routine terminated")
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			id, lines := m.Subscribe()
			defer m.Unsubscribe(id)
			n := serialmux.Feed(ctx, lines, listener, func(line string, err error) {
				log.Printf("[Serial] skipping %q: %v", line, err)
			})
			log.Printf("serial feed routine terminated after %d readings", n)
		}()
	}

	switch {
	case *pcapFile != "":
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := network.ReadPCAPFile(ctx, *pcapFile, *pcapPort, listener)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("pcap replay failed: %v", err)
			}
			log.Printf("pcap replay finished: %d packets", n)
		}()
	case *udpAddr != "":
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("UDP listener stopped: %v", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := trk.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("tracker stopped: %v", err)
		}
	}()

	if *listen != "" {
		apiServer, err := api.NewServer(api.Options{
			Tracker:  trk,
			Sequence: seq,
			Scan:     scan,
			History:  history,
			Session:  session,
			Command:  sendCommand,
		})
		if err != nil {
			log.Fatalf("failed to create API server: %v", err)
		}
		mux := apiServer.ServeMux()
		if db, ok := history.(*poidb.DB); ok {
			if err := db.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach database admin routes: %v", err)
			}
		}
		if serialAdmin != nil {
			serialAdmin(mux)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			server := &http.Server{Addr: *listen, Handler: mux}
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatalf("failed to start server: %v", err)
				}
			}()
			log.Printf("serving HTTP on %s", *listen)

			<-ctx.Done()
			log.Println("shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
			}
		}()
	}

	wg.Wait()
	log.Printf("graceful shutdown complete")
}
