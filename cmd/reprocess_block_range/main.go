package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/omni/tally-relay/config"
	"github.com/omni/tally-relay/db"
	"github.com/omni/tally-relay/ethclient"
	"github.com/omni/tally-relay/logging"
	"github.com/omni/tally-relay/relay"
	"github.com/omni/tally-relay/repository"
	"github.com/omni/tally-relay/solclient"
)

var (
	configPath  = flag.String("config", "config.yml", "path to the relay config file")
	fromBlock   = flag.Uint64("fromBlock", 0, "starting block")
	toBlock     = flag.Uint64("toBlock", 0, "ending block")
	resetCursor = flag.Bool("resetCursor", false, "set the relay cursor to toBlock once the range is processed")
)

func main() {
	flag.Parse()

	logger := logging.New()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.WithError(err).Warn("can't load .env file")
	}
	cfg, err := config.ReadConfigFromFile(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.LogLevel)

	if start := cfg.Source.StartBlock; start != nil && *fromBlock < *start {
		fromBlock = start
	}
	if *toBlock == 0 {
		logger.Fatal("toBlock is not specified")
	}
	if *toBlock < *fromBlock {
		logger.WithFields(logrus.Fields{
			"from_block": *fromBlock,
			"to_block":   *toBlock,
		}).Fatal("toBlock is less than fromBlock")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dbConn, err := db.ConnectToDBAndMigrate(ctx, cfg.DBConfig)
	if err != nil {
		logger.WithError(err).Fatal("can't connect to database and apply migrations")
	}
	defer dbConn.Close()

	source, err := ethclient.NewClient(ctx, cfg.Source.RPC.Host, cfg.Source.RPC.Timeout, cfg.Source.ChainID)
	if err != nil {
		logger.WithError(err).Fatal("can't dial source rpc client")
	}
	defer source.Close()
	relayLogger := logger.WithField("relay_id", cfg.ResolveRelayID(source.ChainID()))

	dst := cfg.Destination
	destination := solclient.NewClient(dst.RPC.Host, dst.RPC.Timeout, dst.ProgramID, dst.SignerKey, dst.Commitment, dst.ConfirmTimeout)
	if err = destination.Health(ctx); err != nil {
		relayLogger.WithError(err).Fatal("destination rpc is not healthy")
	}

	executor := relay.NewExecutor(relayLogger, cfg.Relay.ID, destination, relay.NewRetryPolicy(cfg.Relay.Retry))
	r := relay.NewRelay(relayLogger, cfg.Relay, cfg.Source, source, executor, repository.NewRepo(dbConn))

	err = r.ProcessBlockRange(ctx, *fromBlock, *toBlock)
	if err != nil {
		relayLogger.WithError(err).Fatal("can't manually process block range")
	}
	relayLogger.WithFields(logrus.Fields{
		"from_block": *fromBlock,
		"to_block":   *toBlock,
	}).Info("reprocessed block range")

	if *resetCursor {
		if err = r.ResetCursor(ctx, *toBlock); err != nil {
			relayLogger.WithError(err).Fatal("can't reset relay cursor")
		}
	}
}
