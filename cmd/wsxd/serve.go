package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tokmz/wsx/pkg/config"
	"github.com/tokmz/wsx/pkg/logger"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		tcpAddr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the message routing server",
		RunE: func(cmd *cobra.Command, args []string) error {
			changes := make(chan struct{}, 1)
			notify := func() {
				select {
				case changes <- struct{}{}:
				default:
				}
			}

			c, cfg, err := loadConfig(configPath, notify)
			if err != nil {
				return err
			}
			defer c.Close()

			if addr != "" {
				cfg.Server.Addr = addr
			}
			if tcpAddr != "" {
				cfg.Server.TCPAddr = tcpAddr
			}

			log, err := logger.New(&cfg.Log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv, err := newServer(ctx, cfg, log)
			if err != nil {
				return err
			}
			if err := srv.listen(); err != nil {
				return err
			}

			go watchLogLevel(ctx, c, log, changes)

			httpAddr, tcpListen := srv.addrs()
			printBanner(cmd.OutOrStdout(), httpAddr, tcpListen, cfg, srv.engine.Routes())
			return srv.run(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default ./wsxd.yaml if present)")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address, overrides server.addr")
	cmd.Flags().StringVar(&tcpAddr, "tcp-addr", "", "line-framed TCP listen address, overrides server.tcp_addr")
	return cmd
}

// watchLogLevel 配置文件变化后重新应用日志级别
func watchLogLevel(ctx context.Context, c *config.Config, log logger.Logger, changes <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			level, err := logger.ParseLevel(c.GetString("log.level"))
			if err != nil {
				log.Warn("config_reload_failed", zap.Error(err))
				continue
			}
			if level != log.Level() {
				log.Info("log_level_changed", zap.Stringer("from", log.Level()), zap.Stringer("to", level))
				log.SetLevel(level)
			}
		}
	}
}
