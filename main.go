package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/vtnet/cmlink/cmclient"
)

func main() {
	client := cmclient.New(
		cmclient.WithSeedServers([]cmclient.Endpoint{
			{Host: "cm0.example-platform.invalid", Port: 27017},
			{Host: "cm1.example-platform.invalid", Port: 27017},
		}),
		cmclient.WithLogger(slog.Default()),
	)

	client.OnDebug = func(msg string) { slog.Debug(msg) }
	client.OnConnected = func() { slog.Info("connected") }
	client.OnError = func(err error) { slog.Error("client error", "err", err) }
	client.OnLogOnResponse = func(eresult int32, heartbeatSeconds int32) {
		slog.Info("logon response", "eresult", eresult, "heartbeat_seconds", heartbeatSeconds)
	}
	client.OnLoggedOff = func(eresult int32) { slog.Info("logged off", "eresult", eresult) }
	client.OnServers = func(servers []cmclient.Endpoint) { slog.Info("server list updated", "count", len(servers)) }

	ctx := context.Background()
	if err := client.RefreshServers(ctx); err != nil {
		slog.Warn("server discovery failed, falling back to seed list", "err", err)
	}

	if err := client.Connect(ctx, nil, true); err != nil {
		log.Fatalf("connect: %v", err)
	}

	time.Sleep(30 * time.Minute)
}
