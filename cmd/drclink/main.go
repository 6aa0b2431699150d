package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tiiuae/drclink/internal/config"
	"github.com/tiiuae/drclink/internal/dispatch"
	"github.com/tiiuae/drclink/internal/fleet"
	"github.com/tiiuae/drclink/internal/telemetry"
	"github.com/tiiuae/drclink/internal/transport"
	"github.com/tiiuae/drclink/internal/types"
	"github.com/tiiuae/drclink/internal/vehicle"
)

var (
	defaultFlagSet    = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	configPath        = defaultFlagSet.String("config", "drclink.yaml", "Path of the YAML configuration")
	mqttBrokerAddress = defaultFlagSet.String("mqtt_broker", "", "MQTT broker protocol, address and port")
	privateKeyPath    = defaultFlagSet.String("private_key", "", "The private key for the MQTT authentication")
)

const quitToken = "q"

func main() {
	if err := defaultFlagSet.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *mqttBrokerAddress != "" {
		cfg.Broker.Address = *mqttBrokerAddress
	}
	if *privateKeyPath != "" {
		cfg.Broker.PrivateKeyPath = *privateKeyPath
	}

	if cfg.Log.File != "" {
		logFile := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Log.Dir, cfg.Log.File),
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		}
		defer logFile.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, logFile))
	}

	routes, err := fleet.LoadRoutes(cfg.Routes)
	if err != nil {
		log.Fatal(err)
	}

	terminationSignals := make(chan os.Signal, 1)
	signal.Notify(terminationSignals, syscall.SIGINT, syscall.SIGTERM)
	ctx, quitFunc := context.WithCancel(context.Background())
	go func() {
		select {
		case <-terminationSignals:
			log.Printf("Termination signal received")
			quitFunc()
		case <-ctx.Done():
		}
	}()
	var wg sync.WaitGroup

	out := log.New(os.Stdout, "", 0)

	var (
		connections []*transport.MQTT
		clients     []*vehicle.Client
		menus       []*dispatch.Menu
	)
	defer func() {
		for _, conn := range connections {
			conn.Disconnect(1000)
		}
	}()

	for i, sn := range cfg.Gateways {
		id := types.VehicleIdentity{GatewaySN: sn, Index: i}
		clientID := fmt.Sprintf("%s_%s", cfg.Broker.ClientPrefix, sn)
		log.Printf("%s: connecting to %s as %s", id, cfg.Broker.Address, clientID)

		conn, err := transport.Connect(ctx, transport.Options{
			Broker:         cfg.Broker.Address,
			ClientID:       clientID,
			Username:       cfg.Broker.Username,
			Password:       cfg.Broker.Password,
			PrivateKeyPath: cfg.Broker.PrivateKeyPath,
		})
		if err != nil {
			log.Fatalf("%s: %v", id, err)
		}
		connections = append(connections, conn)

		recorder := telemetry.NewRecorder(cfg.Record, i)
		defer recorder.Close()

		vehicleOut := log.New(os.Stdout, fmt.Sprintf("[UAV%d] ", i+1), 0)
		c := vehicle.New(id, conn, cfg, vehicleOut, recorder)
		if err := c.Start(ctx, &wg); err != nil {
			log.Fatal(err)
		}
		clients = append(clients, c)
		menus = append(menus, c.Menu())
	}

	fleetMenu := fleet.New(clients, routes, out).Menu()
	dispatcher := dispatch.New(fleetMenu, menus, out)
	fleetMenu.AddMulti("a", "select vehicle", dispatcher.ScopeCommand())

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	dispatcher.PrintMenu()
	runLoop(ctx, dispatcher, lines)

	log.Printf("Shutting down..")
	quitFunc()
	log.Printf("Waiting for routines to finish..")
	wg.Wait()
	for _, c := range clients {
		c.Wait()
	}
	log.Printf("Signing off - BYE")
}

func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		log.Printf("stdin: %v", err)
	}
}

func runLoop(ctx context.Context, d *dispatch.Dispatcher, lines <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			input := strings.TrimSpace(line)
			_, _, pending := d.Pending()
			if !pending && input == quitToken {
				return
			}
			if !pending && input == "" {
				d.PrintMenu()
				continue
			}
			scope := d.Scope()
			d.Dispatch(input)
			if d.Scope() != scope {
				d.PrintMenu()
			}
		}
	}
}
