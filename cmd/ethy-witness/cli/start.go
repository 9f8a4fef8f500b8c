package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/omni/ethy-witness/bridge"
	"github.com/omni/ethy-witness/config"
	"github.com/omni/ethy-witness/db"
	"github.com/omni/ethy-witness/entity"
	"github.com/omni/ethy-witness/ethclient"
	"github.com/omni/ethy-witness/logging"
	"github.com/omni/ethy-witness/notification"
	"github.com/omni/ethy-witness/oracle"
	"github.com/omni/ethy-witness/presenter"
	"github.com/omni/ethy-witness/repository"
	"github.com/omni/ethy-witness/utils"
	"github.com/omni/ethy-witness/validatorset"
	"github.com/omni/ethy-witness/witness"
)

const (
	metricsHost       = ":2112"
	witnessQueueCap   = 64
	proofStreamBuffer = 16
	drainInterval     = 10 * time.Second
)

func StartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the witness service",
		Args:  cobra.ExactArgs(0),
		RunE:  start,
	}
}

func start(cmd *cobra.Command, _ []string) error {
	logger := logging.New()

	cfg, err := config.ReadConfigFromFile(cfgPath)
	if err != nil {
		return fmt.Errorf("can't read config: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)

	dbConn, err := db.ConnectToDBAndMigrate(cfg.DBConfig)
	if err != nil {
		return fmt.Errorf("can't connect to database and apply migrations: %w", err)
	}
	defer dbConn.Close()

	http.Handle("/metrics", promhttp.Handler())
	go func() {
		if err2 := http.ListenAndServe(metricsHost, nil); err2 != nil {
			logger.WithError(err2).Fatal("can't start listener for prometheus metrics")
		}
	}()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	repo := repository.NewRepo(dbConn)
	stream := notification.NewProofStream(logger.WithField("service", "notification"))

	controller := bridge.NewController(
		logger.WithField("service", "bridge"),
		bridge.WithMaxPendingPerDrain(int(cfg.Bridge.MaxPendingPerDrain)),
	)
	coordinator := validatorset.NewCoordinator(logger.WithField("service", "validatorset"), controller, validatorset.Params{
		SourceAddress:         cfg.Bridge.SourceAddress,
		DestinationAddress:    cfg.Bridge.DestinationAddress,
		ProofThresholdPercent: cfg.Bridge.ProofThresholdPercent,
		MaxXrplKeys:           int(cfg.Bridge.MaxXrplKeys),
		MaxNewSigners:         int(cfg.Bridge.MaxNewSigners),
	})

	keystore, err := loadKeystore(cfg.Keystore)
	if err != nil {
		return fmt.Errorf("can't load witness key: %w", err)
	}
	if keystore == nil {
		logger.Warn("no witness key configured, running in passive mode")
	}

	callOracle, err := startCallOracle(ctx, logger, cfg.Eth)
	if err != nil {
		return err
	}
	go logOracleResults(ctx, logger, callOracle)

	var presenterOpts []presenter.Option
	if cfg.Xrpl != nil {
		xrplAdapter, err2 := oracle.NewXrplAdapter(cfg.Xrpl, logger.WithField("service", "xrpl"))
		if err2 != nil {
			return fmt.Errorf("can't initialize xrpl adapter: %w", err2)
		}
		presenterOpts = append(presenterOpts, presenter.WithXrplTxLookup(xrplAdapter))
	}

	witnessesIn := make(chan *entity.Witness, witnessQueueCap)
	worker, err := witness.NewWorker(witness.WorkerParams{
		Logger:      logger.WithField("service", "witness"),
		Keystore:    keystore,
		Validators:  coordinator,
		Requests:    controller.Requests(),
		WitnessesIn: witnessesIn,
		Broadcast: func(w *entity.Witness) {
			logger.WithFields(logrus.Fields{
				"chain_id": w.ChainID.String(),
				"event_id": w.EventID,
			}).Debug("broadcasting witness")
		},
		EventProofs: repo.EventProofs,
		Witnesses:   repo.Witnesses,
		Stream:      stream,
	})
	if err != nil {
		return fmt.Errorf("can't initialize witness worker: %w", err)
	}
	go worker.Run(ctx)
	go logCompletedProofs(ctx, logger, stream)
	go drainDelayedRequests(ctx, controller)

	if cfg.Presenter != nil {
		pr := presenter.NewPresenter(logger.WithField("service", "presenter"), repo, controller, coordinator, presenterOpts...)
		go func() {
			if err2 := pr.Serve(cfg.Presenter.Host); err2 != nil {
				logger.WithError(err2).Fatal("can't serve presenter")
			}
		}()
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	select {
	case <-c:
		cancel()
		logger.Warn("caught CTRL-C, gracefully terminating")
	case <-ctx.Done():
	}
	return nil
}

func loadKeystore(cfg *config.KeystoreConfig) (*witness.Keystore, error) {
	if cfg == nil {
		return nil, nil
	}
	switch {
	case cfg.PrivateKey != "":
		return witness.NewKeystoreFromHex(cfg.PrivateKey)
	case cfg.KeyFile != "":
		return witness.LoadKeystore(cfg.KeyFile)
	}
	return nil, nil
}

func startCallOracle(ctx context.Context, logger logging.Logger, cfg *config.EthConfig) (oracle.CallOracle, error) {
	if cfg == nil {
		return oracle.NewNoopOracle(), nil
	}
	client, err := ethclient.NewClient(cfg.RPC.Host, cfg.RPC.Timeout, cfg.ChainID)
	if err != nil {
		return nil, fmt.Errorf("can't dial eth rpc client: %w", err)
	}
	var opts []oracle.EthCallOracleOption
	if cfg.MaxBlockLookBehind > 0 {
		opts = append(opts, oracle.WithMaxBlockLookBehind(cfg.MaxBlockLookBehind))
	}
	ethOracle := oracle.NewEthCallOracle(logger.WithField("service", "oracle"), client, opts...)
	go ethOracle.Run(ctx)
	return ethOracle, nil
}

func logOracleResults(ctx context.Context, logger logging.Logger, callOracle oracle.CallOracle) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-callOracle.Results():
			if !ok {
				return
			}
			entry := logger.WithField("call_id", res.CallID)
			if res.Err != nil {
				entry.WithError(res.Err).Warn("checked eth call failed")
				continue
			}
			entry.WithField("block", res.Block).Debug("checked eth call completed")
		}
	}
}

func logCompletedProofs(ctx context.Context, logger logging.Logger, stream *notification.ProofStream) {
	proofs, cancel := stream.Subscribe(proofStreamBuffer)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case proof, ok := <-proofs:
			if !ok {
				return
			}
			logger.WithFields(logrus.Fields{
				"chain_id":   proof.Proof.ChainID.String(),
				"event_id":   proof.Proof.EventID,
				"signatures": proof.Proof.SignatureCount(),
			}).Info("event proof completed")
		}
	}
}

// drainDelayedRequests periodically replays requests that were delayed while
// the bridge was paused, a batch at a time.
func drainDelayedRequests(ctx context.Context, controller *bridge.Controller) {
	for utils.ContextSleep(ctx, drainInterval) != nil {
		controller.DrainPending()
	}
}
