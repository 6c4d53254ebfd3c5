package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/omni/tally-relay/config"
	"github.com/omni/tally-relay/db"
	"github.com/omni/tally-relay/ethclient"
	"github.com/omni/tally-relay/logging"
	"github.com/omni/tally-relay/presenter"
	"github.com/omni/tally-relay/publisher"
	"github.com/omni/tally-relay/relay"
	"github.com/omni/tally-relay/repository"
	"github.com/omni/tally-relay/solclient"
	"github.com/omni/tally-relay/utils"
)

var configPath = flag.String("config", "config.yml", "path to the relay config file")

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

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dbConn, err := db.NewDB(cfg.DBConfig)
	if err != nil {
		logger.WithError(err).Fatal("can't open database")
	}
	defer dbConn.Close()
	if err = utils.WaitFor(ctx, logger, "postgres", dbConn.PingContext); err != nil {
		logger.WithError(err).Fatal("can't connect to database")
	}
	if err = dbConn.Migrate(); err != nil {
		logger.WithError(err).Fatal("can't apply database migrations")
	}
	repo := repository.NewRepo(dbConn)

	var source ethclient.Client
	err = utils.WaitFor(ctx, logger, "source_rpc", func(ctx context.Context) error {
		source, err = ethclient.NewClient(ctx, cfg.Source.RPC.Host, cfg.Source.RPC.Timeout, cfg.Source.ChainID)
		return err
	})
	if err != nil {
		logger.WithError(err).Fatal("can't dial source rpc client")
	}
	defer source.Close()
	relayLogger := logger.WithField("relay_id", cfg.ResolveRelayID(source.ChainID()))

	dst := cfg.Destination
	destination := solclient.NewClient(dst.RPC.Host, dst.RPC.Timeout, dst.ProgramID, dst.SignerKey, dst.Commitment, dst.ConfirmTimeout)
	if err = utils.WaitFor(ctx, relayLogger, "destination_rpc", destination.Health); err != nil {
		relayLogger.WithError(err).Fatal("destination rpc is not healthy")
	}
	relayLogger.WithField("authority", destination.Authority().String()).Info("using destination authority")

	executor := relay.NewExecutor(relayLogger.WithField("service", "executor"), cfg.Relay.ID, destination, relay.NewRetryPolicy(cfg.Relay.Retry))
	r := relay.NewRelay(relayLogger, cfg.Relay, cfg.Source, source, executor, repo)
	pub := publisher.NewPublisher(logger.WithField("service", "publisher"), cfg.Publisher.Interval, r, destination)
	pr := presenter.NewPresenter(logger.WithField("service", "presenter"), r, pub)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.Start(ctx)
		return nil
	})
	g.Go(func() error {
		pub.Start(ctx)
		return nil
	})
	g.Go(func() error {
		return pr.Serve(ctx, cfg.Presenter.Host)
	})

	<-ctx.Done()
	logger.Warn("shutting down relay services")
	if err = g.Wait(); err != nil {
		logger.WithError(err).Fatal("relay stopped with error")
	}
}
