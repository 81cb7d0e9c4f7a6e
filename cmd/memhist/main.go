package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/sverker/memhist/engine"
	"github.com/sverker/memhist/trace"
)

var (
	traceMem       = flag.String("trace-mem", "no", "Log every recorded write and region mutation (yes|no)")
	enableTracking = flag.String("enable-tracking", "RW", "Access kinds the engine observes (subset of RWX)")
)

func memhistUsage() {
	fmt.Printf("Usage: %s [OPTIONS] tracepath\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = memhistUsage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() != 1 {
		log.Fatalf("Exactly one positional argument (tracepath) expected; got %d", flag.NArg())
	}
	var traceOn bool
	switch *traceMem {
	case "yes":
		traceOn = true
	case "no":
	default:
		log.Fatalf("Bad -trace-mem value %q: want yes or no", *traceMem)
	}
	enabled, err := engine.ParseAccessMask(*enableTracking)
	if err != nil {
		log.Fatalf("Bad -enable-tracking value: %v", err)
	}

	events, err := trace.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("Failed to read trace: %v", err)
	}
	replayer := trace.NewReplayer(engine.Opts{
		TraceMem: traceOn,
		Enabled:  enabled,
	})
	if faults := replayer.Run(events); faults > 0 {
		log.Printf("%d access violation(s) during replay", faults)
	}
	if err := replayer.Engine().WriteReport(os.Stdout); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}
}
