package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sparkdeck/spark/game"
)

type Config struct {
	// serve
	bind          string
	port          int
	prefix        string
	tlsCert       string
	tlsKey        string
	profile       bool
	dev           bool
	store         string
	redis         string
	redisPassword string

	// play
	stateDir string
	preset   string
	count    int
	players  []string

	// shared
	cards     string
	intensity string
	maxSkips  int
	verbose   bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.store != "memory" && c.store != "redis" {
		return fmt.Errorf("invalid store %q (must be memory or redis)", c.store)
	}
	if _, err := game.ParseIntensity(c.intensity); err != nil {
		return fmt.Errorf("invalid intensity %q (must be mild, moderate, or spicy)", c.intensity)
	}
	if c.maxSkips < 0 {
		return fmt.Errorf("invalid skip budget: %d", c.maxSkips)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func (c *Config) ceiling() game.Intensity {
	ceiling, err := game.ParseIntensity(c.intensity)
	if err != nil {
		return game.Mild
	}
	return ceiling
}

func bindFlags(fs *pflag.FlagSet) {
	v := viper.New()
	v.SetEnvPrefix("SPARK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "spark",
		Short:         "A two-player prompt card game for couples, playable over HTTP or in the terminal.",
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	pfs := cmd.PersistentFlags()
	pfs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: SPARK_VERBOSE)")
	pfs.StringVar(&cfg.cards, "cards", "", "path to a JSON card catalog replacing the built-in seed (env: SPARK_CARDS)")

	cmd.AddCommand(newServeCmd(cfg))
	cmd.AddCommand(newPlayCmd(cfg))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("spark v{{.Version}}\n")

	return cmd
}

func newServeCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the shared-store game API server.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			bindFlags(cmd.Flags())
			setupLogging(cfg)
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: SPARK_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: SPARK_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: SPARK_PREFIX)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: SPARK_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: SPARK_TLS_KEY)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: SPARK_PROFILE)")
	fs.BoolVar(&cfg.dev, "dev", false, "include error details in API responses (env: SPARK_DEV)")
	fs.StringVar(&cfg.store, "store", "memory", "session store backend, memory or redis (env: SPARK_STORE)")
	fs.StringVar(&cfg.redis, "redis", "localhost:6379", "redis address for --store redis (env: SPARK_REDIS)")
	fs.StringVar(&cfg.redisPassword, "redis-password", "", "redis password (env: SPARK_REDIS_PASSWORD)")
	fs.StringVar(&cfg.intensity, "intensity", "mild", "default intensity ceiling for new sessions (env: SPARK_INTENSITY)")
	fs.IntVar(&cfg.maxSkips, "max-skips", game.DefaultMaxSkips, "skip budget for new sessions (env: SPARK_MAX_SKIPS)")

	return cmd
}

func newPlayCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a local game in the terminal, resumable across restarts.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			bindFlags(cmd.Flags())
			setupLogging(cfg)
			// serve-only settings, pinned so validate passes in play mode
			cfg.port = 8080
			cfg.store = "memory"
			if err := cfg.validate(); err != nil {
				return err
			}
			return playGame(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&cfg.stateDir, "state-dir", "", "directory for snapshot and favorites files (default: user config dir) (env: SPARK_STATE_DIR)")
	fs.StringVar(&cfg.preset, "preset", "standard", "session preset: quick, standard, or extended (env: SPARK_PRESET)")
	fs.IntVar(&cfg.count, "count", 0, "override the preset's card count (env: SPARK_COUNT)")
	fs.StringSliceVar(&cfg.players, "players", nil, "two player names; prompted for if omitted (env: SPARK_PLAYERS)")
	fs.StringVar(&cfg.intensity, "intensity", "mild", "intensity ceiling (env: SPARK_INTENSITY)")
	fs.IntVar(&cfg.maxSkips, "max-skips", game.DefaultMaxSkips, "skip budget (env: SPARK_MAX_SKIPS)")

	return cmd
}

func setupLogging(cfg *Config) {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: logDate,
	})
	if cfg.verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func loadCatalog(cfg *Config) (*game.MemoryCatalog, error) {
	if cfg.cards == "" {
		return game.SeedCatalog(), nil
	}
	cards, err := game.LoadCardsFile(cfg.cards)
	if err != nil {
		return nil, err
	}
	logrus.Infof("loaded %d cards from %s", len(cards), cfg.cards)
	return game.NewMemoryCatalog(cards)
}
