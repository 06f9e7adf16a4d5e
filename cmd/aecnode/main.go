package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aethercycle/aethercycle-protocol-sub000/cmd/cli"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/errors"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/log"
	"github.com/aethercycle/aethercycle-protocol-sub000/node"
)

var (
	version = "unknown"
	build   = "unknown"
)

func mergeWithViper(vc *viper.Viper, cfg *node.Config) error {
	nodeDir := vc.GetString("node_dir")

	if cfg.FilePath != "" {
		f, err := os.Open(cfg.FilePath)
		if err != nil {
			return errors.Errorf("fail to open config file=%s err=%+v", cfg.FilePath, err)
		}
		vc.SetConfigType("json")
		if err := vc.ReadConfig(f); err != nil {
			return errors.Errorf("fail to read config file=%s err=%+v", cfg.FilePath, err)
		}
	}
	if err := vc.Unmarshal(cfg, cli.ViperDecodeOptJson); err != nil {
		return errors.Errorf("fail to unmarshal config from env err=%+v", err)
	}
	if nodeDir != "" {
		cfg.BaseDir = cfg.ResolveRelative(nodeDir)
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = cfg.ResolveRelative(".aecnode")
	}
	return nil
}

func newRootCommand() *cobra.Command {
	rootCmd, vc := cli.NewCommand(nil, nil, "aecnode", "AetherCycle protocol node")
	rootCmd.SilenceUsage = true

	cfg := node.DefaultConfig()

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg.FilePath = vc.GetString("config")
		return mergeWithViper(vc, cfg)
	}
	rootPFlags := rootCmd.PersistentFlags()
	rootPFlags.StringP("config", "c", "", "Parsing configuration file")
	rootPFlags.String("node_dir", "",
		"Node data directory(default:[configuration file path]/.aecnode)")
	rootPFlags.String("rpc_addr", node.DefaultRPCAddr, "Listen ip-port of the REST API")
	rootPFlags.String("log_level", "debug", "Global log level (trace,debug,info,warn,error,fatal,panic)")
	rootPFlags.String("console_level", "trace", "Console log level (trace,debug,info,warn,error,fatal,panic)")
	rootPFlags.String("admin_address", cfg.AdminAddress, "Engine admin address")
	rootPFlags.String("emergency_address", cfg.EmergencyAddress, "Emergency recovery address")
	rootPFlags.Int64("release_interval", cfg.ReleaseInterval, "Treasury release interval in seconds")
	rootPFlags.Int64("decay_rate_bps", cfg.DecayRateBps, "Per-period release rate in basis points")
	rootPFlags.Bool("compounding", cfg.Compounding, "Compound the release decay per period")
	rootPFlags.Int64("token_pool_share_bps", cfg.TokenPoolShareBps, "Token pool share of each release in basis points")
	rootPFlags.Int64("nft_pool_share_bps", cfg.NFTPoolShareBps, "NFT pool share of each release in basis points")
	rootPFlags.Bool("cycle_auto", cfg.CycleAuto, "Run distribution cycles automatically")
	rootPFlags.Int64("cycle_poll_secs", cfg.CyclePollSecs, "Poll interval of the automatic cycle loop")
	cli.BindPFlags(vc, rootPFlags)

	saveCmd := &cobra.Command{
		Use:   "save [file]",
		Short: "Save configuration",
		Args:  cli.ArgsWithDefaultErrorFunc(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			saveFilePath := args[0]
			if err := cli.JsonPrettySaveFile(saveFilePath, 0644, cfg); err != nil {
				return err
			}
			stdlog.Println("Save configuration to", saveFilePath)
			return nil
		},
	}
	rootCmd.AddCommand(saveCmd)

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start node",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New()
			log.SetGlobalLogger(logger)
			stdlog.SetOutput(logger.Writer())

			if lv, err := log.ParseLevel(cfg.LogLevel); err != nil {
				return errors.Errorf("Invalid log_level=%s", cfg.LogLevel)
			} else {
				logger.SetLevel(lv)
			}
			if lv, err := log.ParseLevel(cfg.ConsoleLevel); err != nil {
				return errors.Errorf("Invalid console_level=%s", cfg.ConsoleLevel)
			} else {
				logger.SetConsoleLevel(lv)
			}
			for mod, lvStr := range cfg.ModuleLogLevels {
				if lv, err := log.ParseLevel(lvStr); err != nil {
					return errors.Errorf("Invalid module level mod=%s level=%s", mod, lvStr)
				} else {
					logger.SetModuleLevel(mod, lv)
				}
			}
			if cfg.LogWriter != nil {
				writer, err := log.NewWriter(cfg.LogWriter)
				if err != nil {
					return errors.Wrap(err, "fail to make log writer")
				}
				if err := logger.SetFileWriter(writer); err != nil {
					return errors.Wrap(err, "fail to set log writer")
				}
			}

			log.Printf("Version : %s", version)
			log.Printf("Build   : %s", build)

			n, err := node.New(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return n.Start(ctx)
		},
	}
	rootCmd.AddCommand(startCmd)
	cli.BindPFlags(vc, startCmd.Flags())

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("aecnode version", version, build)
		},
	}
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		stdlog.Fatalf("%+v", err)
	}
}
