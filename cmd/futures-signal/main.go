package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/STTM-NSU/futures-signal/internal/binance"
	"github.com/STTM-NSU/futures-signal/internal/config"
	"github.com/STTM-NSU/futures-signal/internal/export"
	"github.com/STTM-NSU/futures-signal/internal/logger"
	"github.com/STTM-NSU/futures-signal/internal/model"
	"github.com/STTM-NSU/futures-signal/internal/pipeline"
	"github.com/STTM-NSU/futures-signal/internal/server"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

const (
	_cfgFilePath = "./configs/config.yaml"
)

var (
	cfgPath  string
	symbol   string
	interval string
	limit    int
	timezone string
	once     bool
	csvPath  string
)

func main() {
	app := cli.NewApp()
	app.Name = "futures-signal"
	app.Usage = "poll futures klines and classify the latest price against the recent range"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Value:       _cfgFilePath,
			Usage:       "path to the yaml config, ignored when missing",
			Destination: &cfgPath,
		},
		&cli.StringFlag{
			Name:        "symbol",
			Aliases:     []string{"s"},
			Usage:       "trading pair, e.g. BTCUSDT",
			Destination: &symbol,
		},
		&cli.StringFlag{
			Name:        "interval",
			Aliases:     []string{"i"},
			Usage:       "kline interval: 1m, 3m, 5m, 30m or 1h",
			Destination: &interval,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       fmt.Sprintf("klines per request, %d..%d", model.MinLimit, model.MaxLimit),
			Destination: &limit,
		},
		&cli.StringFlag{
			Name:        "timezone",
			Usage:       "IANA zone used to present candle times",
			Destination: &timezone,
		},
		&cli.BoolFlag{
			Name:        "once",
			Usage:       "run a single cycle, print the readout and exit",
			Destination: &once,
		},
		&cli.StringFlag{
			Name:        "csv",
			Usage:       "with --once, also write the candle table to this file",
			Destination: &csvPath,
		},
	}
	app.Action = run

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	zapLogger, loggerSync, err := logger.NewZapLogger(level)
	if err != nil {
		return fmt.Errorf("%w: can't init logger", err)
	}
	defer loggerSync()

	if err := godotenv.Load(); err != nil {
		zapLogger.Warnf("can't detect .env file")
	}

	client := binance.NewClient(cfg.Exchange, config.CredentialsFromEnv(), zapLogger)
	defer client.Close()

	if once {
		return runOnce(c.Context, cfg, client, zapLogger)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	store := server.NewStore()
	runner := pipeline.NewRunner(cfg, client, store, zapLogger)

	errCh := make(chan error, 1)
	if cfg.Server.Port != "" {
		httpServer := server.NewHTTPServer(ctx, cfg.Server.Port, server.NewRouter(store, zapLogger))
		go func() {
			zapLogger.Infof("http server listening on :%s", cfg.Server.Port)
			err := httpServer.Run(ctx)
			if err != nil {
				zapLogger.Errorf("%s: http server stopped", err)
				cancel()
			}
			errCh <- err
		}()
	} else {
		errCh <- nil
	}

	zapLogger.Infof("polling %s %s every %s", cfg.Symbol, cfg.Interval, cfg.Poll.Interval)
	if err := runner.Run(ctx); err != nil {
		return err
	}

	zapLogger.Infoln("start graceful shutdown")
	cancel()
	if err := <-errCh; err != nil {
		return fmt.Errorf("%w: http server failed", err)
	}

	return nil
}

// loadConfig reads the config file when present and applies command line
// overrides before validating.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if errors.Is(err, os.ErrNotExist) && !c.IsSet("config") {
		cfg = config.Default()
	} else if err != nil {
		return cfg, fmt.Errorf("%w: can't load config", err)
	}

	if c.IsSet("symbol") {
		cfg.Symbol = symbol
	}
	if c.IsSet("interval") {
		cfg.Interval = model.Interval(interval)
	}
	if c.IsSet("limit") {
		cfg.Limit = limit
	}
	if c.IsSet("timezone") {
		cfg.Timezone = timezone
	}

	if err := cfg.ValidateAndSetup(); err != nil {
		return cfg, fmt.Errorf("%w: config validation failed", err)
	}

	return cfg, nil
}

func runOnce(ctx context.Context, cfg config.Config, client *binance.Client, l logger.Logger) error {
	runner := pipeline.NewRunner(cfg, client, pipeline.PublisherFunc(func(pipeline.Snapshot) {}), l)

	// an invalid range still yields a table worth printing
	snap, err := runner.Cycle(ctx)
	if err != nil && snap.Status == "" {
		return err
	}

	printSnapshot(os.Stdout, snap)

	if csvPath != "" {
		f, err := os.Create(csvPath)
		if err != nil {
			return fmt.Errorf("%w: can't create csv file", err)
		}
		defer f.Close()

		if err := export.WriteCSV(f, snap.Table); err != nil {
			return err
		}
		l.Infof("candles written to %s", csvPath)
	}

	return err
}

func printSnapshot(w io.Writer, s pipeline.Snapshot) {
	fmt.Fprintf(w, "%s %s (%s), %d candles\n", s.Symbol, s.Interval, s.Timezone, s.Table.Len())
	for _, c := range s.Table.Rows {
		fmt.Fprintf(w, "%s %s  O %v  H %v  L %v  C %v  V %v  trades %d\n",
			c.Date(), c.Clock(), c.Open, c.High, c.Low, c.Close, c.Volume, c.TradeCount)
	}

	if s.Readout == nil {
		fmt.Fprintln(w, statusMessage(s))
		return
	}

	r := s.Readout
	fmt.Fprintf(w, "Recent high: %v\n", r.High)
	fmt.Fprintf(w, "Recent low: %v\n", r.Low)
	fmt.Fprintf(w, "Middle point: %v\n", r.Midpoint)
	fmt.Fprintf(w, "Danger threshold: %v\n", r.DangerThreshold)
	fmt.Fprintf(w, "Current price: %v\n", r.CurrentPrice)
	fmt.Fprintf(w, "Action: %s\n", r.Signal)
	if s.Forecast != nil {
		fmt.Fprintf(w, "Forecast: %v (%s)\n", s.Forecast.Forecast, s.Forecast.Action)
	}
}

func statusMessage(s pipeline.Snapshot) string {
	if s.Message != "" {
		return s.Message
	}
	return string(s.Status)
}
