// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/squat_counter/internal/app"
)

func main() {
	webAddr := flag.String("web", "", "also serve the live page on this address, e.g. :8080")
	staticDir := flag.String("static", "web", "directory with the live page")
	flag.Parse()

	log.Println("starting squat counter (mock console)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunMockConsole(ctx, *webAddr, *staticDir); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
