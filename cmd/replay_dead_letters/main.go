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
	configPath = flag.String("config", "config.yml", "path to the relay config file")
	id         = flag.Uint("id", 0, "dead letter to act on, 0 means every entry of the relay")
	purge      = flag.Bool("purge", false, "drop the entries instead of replaying them")
	list       = flag.Bool("list", false, "only print the entries")
	limit      = flag.Uint64("limit", 100, "max number of entries to process")
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

	if *purge && *list {
		logger.Fatal("at most one of --purge or --list should be specified")
	}
	if *purge && *id == 0 {
		logger.Fatal("purge requires an explicit --id")
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
	executor := relay.NewExecutor(relayLogger, cfg.Relay.ID, destination, relay.NewRetryPolicy(cfg.Relay.Retry))
	r := relay.NewRelay(relayLogger, cfg.Relay, cfg.Source, source, executor, repository.NewRepo(dbConn))

	if *purge {
		if err = r.PurgeDeadLetter(ctx, *id); err != nil {
			relayLogger.WithError(err).Fatal("can't purge dead letter")
		}
		return
	}

	ids := []uint{*id}
	if *id == 0 || *list {
		dls, err2 := r.DeadLetters(ctx, *limit)
		if err2 != nil {
			relayLogger.WithError(err2).Fatal("can't find dead letters")
		}
		ids = ids[:0]
		for _, dl := range dls {
			if *id != 0 && dl.ID != *id {
				continue
			}
			relayLogger.WithFields(logrus.Fields{
				"dead_letter_id": dl.ID,
				"block_number":   dl.EventBlock,
				"tx_hash":        dl.SourceTxHash.String(),
				"log_index":      dl.LogIndex,
				"attempts":       dl.Attempts,
				"error":          dl.Error,
			}).Info("dead letter")
			ids = append(ids, dl.ID)
		}
	}
	if *list {
		return
	}
	if err = destination.Health(ctx); err != nil {
		relayLogger.WithError(err).Fatal("destination rpc is not healthy")
	}

	var failed int
	for _, dlID := range ids {
		receipt, err2 := r.ReplayDeadLetter(ctx, dlID)
		if err2 != nil {
			failed++
			relayLogger.WithError(err2).WithField("dead_letter_id", dlID).Error("can't replay dead letter")
			if ctx.Err() != nil {
				break
			}
			continue
		}
		relayLogger.WithFields(logrus.Fields{
			"dead_letter_id":   dlID,
			"election_account": receipt.Account.String(),
			"signature":        receipt.Signature,
		}).Info("dead letter replayed")
	}
	if failed > 0 {
		relayLogger.WithField("failed", failed).Fatal("some dead letters were not replayed")
	}
}
