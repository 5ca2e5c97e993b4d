package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/coastwatch/bloomcast/internal/app"
	"github.com/coastwatch/bloomcast/internal/log"
	"github.com/coastwatch/bloomcast/pkg/config"
)

const usage = `Usage: bloomcast <command> [options] <config.yaml>

Commands:
  forecast    run a single bloom forecast
  ensemble    run an ensemble bloom forecast over historical forcing years

Options:
  --data-date YYYY-MM-DD    forcing data date for development and debugging;
                            overridden when forcing data is collected
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	command := os.Args[1]
	switch command {
	case "forecast", "ensemble":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		os.Exit(2)
	}

	flags := flag.NewFlagSet(command, flag.ExitOnError)
	dataDateArg := flags.String(
		"data-date", "",
		"forcing data date (YYYY-MM-DD) for development and debugging")
	flags.Parse(os.Args[2:])
	if flags.NArg() != 1 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var dataDate time.Time
	if *dataDateArg != "" {
		parsed, err := config.ParseDate(*dataDateArg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --data-date: %v\n", err)
			os.Exit(2)
		}
		dataDate = parsed
	}

	cfg, err := config.Load(flags.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger, closeLog := log.Init(cfg.Logging)
	defer closeLog()

	a := app.New(cfg, logger)
	switch command {
	case "forecast":
		err = a.RunForecast(context.Background(), dataDate)
	case "ensemble":
		err = a.RunEnsemble(context.Background(), dataDate)
	}
	if err != nil {
		logger.Errorf("%v", err)
		closeLog()
		os.Exit(1)
	}
}
