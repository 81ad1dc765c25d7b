package commands

import (
	"fmt"

	"github.com/acorn-io/acorn-names/pkg/apiserver"
	"github.com/acorn-io/acorn-names/pkg/backend"
	"github.com/acorn-io/acorn-names/pkg/db"
	"github.com/acorn-io/acorn-names/pkg/metrics"
	"github.com/acorn-io/acorn-names/pkg/pricing"
	"github.com/acorn-io/acorn-names/pkg/registry"
	"github.com/acorn-io/acorn-names/pkg/version"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rancher/wrangler/pkg/signals"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// defaultAuctionAddress is the identity the auction engine registers names
// under when none is configured.
const defaultAuctionAddress = "0x00000000000000000000000000000000a0c7e0a0"

type apiServerCommand struct{}

func (s *apiServerCommand) Execute(c *cli.Context) error {
	ctx := signals.SetupSignalContext()

	log := logrus.WithField("command", "api-server")

	log.Infof("version: %v", version.Get())

	cfg, err := registryConfig(c)
	if err != nil {
		return err
	}

	database, err := db.New(ctx, c.String("sql-dialect"), c.String("sql-dsn"), &gorm.Config{
		Logger: db.NewLogger(c.String("log-level")),
	})
	if err != nil {
		return err
	}

	var publisher *backend.Publisher
	if zone := c.String("route53-zone-id"); zone != "" {
		publisher, err = backend.NewPublisher(zone, c.Int64("record-ttl"), c.Duration("sweep-interval"))
		if err != nil {
			return fmt.Errorf("route53 zone %s: %w", zone, err)
		}
	}

	m := metrics.New()
	back, err := backend.NewBackend(backend.Config{
		Registry:           cfg,
		AuctionAddress:     common.HexToAddress(c.String("auction-address")),
		Database:           database,
		Metrics:            m,
		Publisher:          publisher,
		CheckpointInterval: c.Duration("checkpoint-interval"),
		KeepCheckpoints:    c.Int("keep-checkpoints"),
		EventRetention:     c.Duration("event-retention"),
	})
	if err != nil {
		return err
	}

	apiServer, err := apiserver.NewAPIServer(ctx, log, c.Int("port"), m)
	if err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return apiServer.Start(back)
	})
	eg.Go(func() error {
		back.StartCheckpointDaemon(ctx.Done())
		return nil
	})
	eg.Go(func() error {
		back.StartPublisher(ctx.Done())
		return nil
	})
	return eg.Wait()
}

func registryConfig(c *cli.Context) (registry.Config, error) {
	admin := c.String("admin-address")
	if !common.IsHexAddress(admin) {
		return registry.Config{}, fmt.Errorf("--admin-address %q is not an address", admin)
	}
	cfg := registry.Config{
		Admin:       common.HexToAddress(admin),
		MinDuration: uint64(c.Duration("min-duration").Seconds()),
		MaxDuration: uint64(c.Duration("max-duration").Seconds()),
		GracePeriod: uint64(c.Duration("grace-period").Seconds()),
		Log:         logrus.WithField("component", "registry"),
	}
	if path := c.String("pricing-config"); path != "" {
		p, err := pricing.LoadFile(path)
		if err != nil {
			return registry.Config{}, fmt.Errorf("pricing config %s: %w", path, err)
		}
		cfg.Pricing = p
	}
	return cfg, nil
}

func serverCommand() *cli.Command {
	cmd := apiServerCommand{}

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Usage:   "Port for the HTTP Server Port",
			EnvVars: []string{"ACORN_NAMES_PORT", "PORT"},
			Value:   4315,
		},
		&cli.StringFlag{
			Name:    "sql-dialect",
			Usage:   "The type of sql to use, sqlite or mysql",
			EnvVars: []string{"ACORN_NAMES_SQL_DIALECT", "SQL_DIALECT"},
			Value:   "sqlite",
		},
		&cli.StringFlag{
			Name:    "sql-dsn",
			Usage:   "The DSN to use to connect to",
			EnvVars: []string{"ACORN_NAMES_SQL_DSN", "SQL_DSN"},
			Value:   "file:acorn-names.sqlite?_pragma=foreign_keys(1)",
		},
		&cli.StringFlag{
			Name:     "admin-address",
			Usage:    "Address holding the admin capability and owning the root name",
			EnvVars:  []string{"ACORN_NAMES_ADMIN_ADDRESS"},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "auction-address",
			Usage:   "Identity the auction engine registers winning names under",
			EnvVars: []string{"ACORN_NAMES_AUCTION_ADDRESS"},
			Value:   defaultAuctionAddress,
		},
		&cli.DurationFlag{
			Name:    "min-duration",
			Usage:   "Shortest registration or renewal accepted",
			EnvVars: []string{"ACORN_NAMES_MIN_DURATION"},
			Value:   secs(registry.DefaultMinDuration),
		},
		&cli.DurationFlag{
			Name:    "max-duration",
			Usage:   "Longest registration or renewal accepted",
			EnvVars: []string{"ACORN_NAMES_MAX_DURATION"},
			Value:   secs(registry.DefaultMaxDuration),
		},
		&cli.DurationFlag{
			Name:    "grace-period",
			Usage:   "How long an expired name stays reserved for renewal by its owner",
			EnvVars: []string{"ACORN_NAMES_GRACE_PERIOD"},
			Value:   secs(registry.DefaultGracePeriod),
		},
		&cli.StringFlag{
			Name:    "pricing-config",
			Usage:   "YAML pricing table; defaults apply to anything it leaves out",
			EnvVars: []string{"ACORN_NAMES_PRICING_CONFIG"},
		},
		&cli.DurationFlag{
			Name:    "checkpoint-interval",
			Usage:   "How often the full state is written to the database",
			EnvVars: []string{"ACORN_NAMES_CHECKPOINT_INTERVAL"},
			Value:   defaultCheckpointInterval,
		},
		&cli.IntFlag{
			Name:    "keep-checkpoints",
			Usage:   "Number of checkpoints kept in the database",
			EnvVars: []string{"ACORN_NAMES_KEEP_CHECKPOINTS"},
			Value:   10,
		},
		&cli.DurationFlag{
			Name:    "event-retention",
			Usage:   "Events older than this are purged. 0 keeps everything",
			EnvVars: []string{"ACORN_NAMES_EVENT_RETENTION"},
			Value:   defaultEventRetention,
		},
		&cli.StringFlag{
			Name:    "route53-zone-id",
			Usage:   "Route53 hosted zone to publish active names into. Publishing is off when empty",
			EnvVars: []string{"ACORN_NAMES_ROUTE53_ZONE_ID"},
		},
		&cli.Int64Flag{
			Name:    "record-ttl",
			Usage:   "TTL in seconds of published records",
			EnvVars: []string{"ACORN_NAMES_RECORD_TTL"},
			Value:   300,
		},
		&cli.DurationFlag{
			Name:    "sweep-interval",
			Usage:   "How often published records are reconciled with the registry",
			EnvVars: []string{"ACORN_NAMES_SWEEP_INTERVAL"},
			Value:   defaultSweepInterval,
		},
	}

	return &cli.Command{
		Name:   "api-server",
		Usage:  "acorn names api server",
		Action: cmd.Execute,
		Flags:  append(flags, GlobalFlags()...),
		Before: Before,
	}
}
