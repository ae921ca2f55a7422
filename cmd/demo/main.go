// Command demo walks through the in-process messaging flow with console logs:
// a directed message, an ineligible send, a broadcast and an outage that
// exhausts its retries.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/example/multichannel/internal/common"
	"github.com/example/multichannel/internal/directory"
	"github.com/example/multichannel/internal/messaging"
)

func main() {
	ctx := context.Background()
	logger := common.NewConsoleLogger("demo")
	if os.Getenv("DEMO_DEBUG") != "" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	registry := messaging.NewRegistry(
		messaging.WithRegistryLogger(logger),
		messaging.WithFailureSink(messaging.LogSink{Logger: logger}),
	)
	router := messaging.NewRouter(messaging.WithLogger(logger))
	for _, v := range messaging.Variants {
		router.AddChannel(registry.Channel(v))
	}
	sms := registry.Channel(messaging.VariantSMS)
	whatsapp := registry.Channel(messaging.VariantWhatsApp)
	email := registry.Channel(messaging.VariantEmail)

	users := directory.NewMemory(logger)
	ram := users.Create("Ram", "ram@gmail.com", "7889900112")
	ram.Subscribe(sms)
	ram.Subscribe(whatsapp)

	hello := router.CreateMessage(messaging.MediaText, "Hello Ram", ram)
	router.Send(ctx, hello, sms)
	router.Send(ctx, router.CreateMessage(messaging.MediaText, "Hello again", ram), email)
	printDrain("sms", ram.Receive(sms))

	picture := router.CreateBroadcastMessage(messaging.MediaBlob, "Picture uploaded")
	router.Broadcast(ctx, picture)
	printDrain("whatsapp", ram.Receive(whatsapp))
	printDrain("sms", ram.Receive(sms))

	whatsapp.SetAvailability(ctx, messaging.Unavailable)
	late := router.CreateMessage(messaging.MediaText, "Are you there?", ram)
	for i := 0; i <= messaging.RetryLimit; i++ {
		out := router.Send(ctx, late, whatsapp)
		fmt.Printf("attempt %d on whatsapp: %s\n", i+1, out)
	}
	whatsapp.SetAvailability(ctx, messaging.Available)
	printDrain("whatsapp", ram.Receive(whatsapp))
}

func printDrain(channel string, msgs []messaging.Message) {
	fmt.Printf("Ram drained %d message(s) from %s\n", len(msgs), channel)
	for _, m := range msgs {
		fmt.Printf("  [%s] %s\n", m.Type, m.Content)
	}
}
