package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/OCharnyshevich/minecraft-chunks/internal/capture"
)

func main() {
	var (
		out = flag.String("o", "./captures", "output dir path")
		chk = flag.Bool("check", true, "load every downloaded capture after fetching")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if flag.NArg() == 0 {
		log.Error("usage: dmd [-o dir] source...")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	failed := false
	for _, src := range flag.Args() {
		log.Info("start downloading capture", "src", src, "dir", *out)
		path, err := capture.Fetch(ctx, src, *out)
		if err != nil {
			log.Error("download capture", "src", src, "error", err)
			failed = true
			continue
		}
		if *chk {
			c, err := capture.Load(path)
			if err != nil {
				log.Error("check capture", "path", path, "error", err)
				failed = true
				continue
			}
			log.Info("done downloading capture", "path", path, "protocol", c.Protocol, "records", len(c.Records))
			continue
		}
		log.Info("done downloading capture", "path", path)
	}
	if failed {
		os.Exit(1)
	}
}
