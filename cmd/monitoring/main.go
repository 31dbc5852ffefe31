// Command monitoring is a thin CLI shell standing in for the map-based
// monitoring console (spec §2), which is out of scope for this repo. It
// connects as "monitoring_app-<uuid>", prints every broadcast it receives, and
// accepts a handful of typed commands on stdin for manually driving the
// system during development.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/gonzalop/cityeye/internal/agentnet"
	"github.com/gonzalop/cityeye/internal/geo"
	"github.com/gonzalop/cityeye/internal/wire"
)

func main() {
	server := flag.String("server", "127.0.0.1:5000", "broker host:port")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, _, err := agentnet.Dial(ctx, agentnet.Config{
		Server:   *server,
		ClientID: "monitoring_app-" + uuid.NewString(),
		Logger:   logger,
	})
	if err != nil {
		logger.Error("connecting to broker", slog.Any("error", err))
		os.Exit(1)
	}
	defer client.Disconnect(context.Background())

	for _, topic := range []string{
		wire.TopicIncident,
		wire.TopicIncidentResolved,
		wire.TopicDroneLocations,
		wire.TopicCameraUpdate,
		wire.TopicAttendingIncident,
	} {
		if err := client.Subscribe(topic, wire.QoS1).Wait(ctx); err != nil {
			logger.Error("subscribing", slog.String("topic", topic), slog.Any("error", err))
			os.Exit(1)
		}
	}

	go printInbound(client)
	runCommandLoop(ctx, client)
}

func printInbound(client *agentnet.Client) {
	for msg := range client.Inbound {
		fmt.Printf("[%s] %+v\n", msg.Topic, msg.Payload)
	}
}

// runCommandLoop accepts simple space-separated commands for manual
// testing: "incident <lat> <lon>", "resolve <lat> <lon>",
// "disconnect <drone_id>".
func runCommandLoop(ctx context.Context, client *agentnet.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "incident":
			if len(fields) != 3 {
				fmt.Fprintln(os.Stderr, "usage: incident <lat> <lon>")
				continue
			}
			loc, err := parseLocation(fields[1], fields[2])
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			client.Publish(wire.TopicIncident, wire.IncidentLocation{Location: loc}, wire.QoS1, false)
		case "resolve":
			if len(fields) != 3 {
				fmt.Fprintln(os.Stderr, "usage: resolve <lat> <lon>")
				continue
			}
			loc, err := parseLocation(fields[1], fields[2])
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			client.Publish(wire.TopicIncidentResolved, wire.LocationPayload{Location: loc}, wire.QoS1, false)
		case "disconnect":
			if len(fields) != 2 {
				fmt.Fprintln(os.Stderr, "usage: disconnect <drone_id>")
				continue
			}
			id, err := strconv.ParseUint(fields[1], 10, 32)
			if err != nil {
				fmt.Fprintln(os.Stderr, "invalid drone id:", err)
				continue
			}
			client.Publish(wire.TopicSingleDroneDisconnect, wire.SingleDroneDisconnect{DroneID: uint32(id)}, wire.QoS1, false)
		default:
			fmt.Fprintln(os.Stderr, "unknown command:", fields[0])
		}
	}
	<-ctx.Done()
}

func parseLocation(latStr, lonStr string) (geo.Location, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return geo.Location{}, fmt.Errorf("invalid lat: %w", err)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return geo.Location{}, fmt.Errorf("invalid lon: %w", err)
	}
	return geo.New(lat, lon), nil
}
