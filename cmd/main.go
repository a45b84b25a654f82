package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"pellet_stove/internal/app"
	"pellet_stove/internal/clock"
	"pellet_stove/internal/config"
	"pellet_stove/internal/device"
	"pellet_stove/internal/logger"
	"pellet_stove/internal/micronova"
	"pellet_stove/internal/server"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "stove",
	Short:         "Remote controller for Micronova pellet stoves",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the controller, HTTP API and optional MQTT bridge",
	RunE:  runServe,
}

var probeCmd = &cobra.Command{
	Use:   "probe <ram|eeprom> <addr>",
	Short: "Read one board address and print the raw reply",
	Args:  cobra.ExactArgs(2),
	RunE:  runProbe,
}

var frameCmd = &cobra.Command{
	Use:   "frame <ram|eeprom> <addr> <value>",
	Short: "Print the write frame for addr=value without sending it",
	Args:  cobra.ExactArgs(3),
	RunE:  runFrame,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default configs/config.yml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(frameCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.Get(cfg.Log.Level, cfg.Log.Format)
	if cfg.Auth.SigningKey == "" {
		log.Warnw("auth.signing_key is empty; sign-in and protected routes will fail")
	}

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			log.Errorw("close failed", "err", cerr)
		}
	}()

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		return err
	}

	srv := server.New(cfg.HTTP, a.Handler.InitRoutes())
	serveErr := runHTTPServer(srv, log)

	waitForShutdown(cancel, srv, serveErr, log)
	return a.Wait()
}

// runHTTPServer serves in a separate goroutine. The returned channel carries
// a listen failure; it stays empty on a clean shutdown.
func runHTTPServer(srv *server.Server, log *logger.Logger) <-chan error {
	errc := make(chan error, 1)
	go func() {
		log.Infow("http_listening", "addr", srv.Addr())
		if err := srv.Run(); err != nil {
			errc <- err
		}
	}()
	return errc
}

// waitForShutdown blocks until a termination signal or a server failure, then
// stops the background loops and drains in-flight requests.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, serveErr <-chan error, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		log.Infow("shutting_down", "signal", sig.String())
	case err := <-serveErr:
		log.Errorw("http_server_failed", "err", err)
	}

	cancel()

	if err := srv.Shutdown(context.Background()); err != nil {
		log.Errorw("http_shutdown_forced", "err", err)
	}
}

func parseKind(s string) (micronova.Kind, error) {
	switch s {
	case "ram", "RAM":
		return micronova.RAM, nil
	case "eeprom", "EEPROM":
		return micronova.EEPROM, nil
	}
	return 0, fmt.Errorf("kind %q: want ram or eeprom", s)
}

func parseByte(name, s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%s %q: want 0..255 (decimal or 0x hex)", name, s)
	}
	return byte(v), nil
}

func runProbe(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(args[0])
	if err != nil {
		return err
	}
	addr, err := parseByte("addr", args[1])
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.Get(cfg.Log.Level, cfg.Log.Format)

	dev, transport, _, err := app.OpenDevice(cfg, clock.Real(), log)
	if err != nil {
		return err
	}
	if transport != nil {
		defer transport.Close()
	}

	resp := device.Read(dev, kind, addr)
	fmt.Fprintf(cmd.OutOrStdout(), "%s 0x%02X: %s\n", kind, addr, micronova.FormatResponse(resp))
	return nil
}

func runFrame(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(args[0])
	if err != nil {
		return err
	}
	addr, err := parseByte("addr", args[1])
	if err != nil {
		return err
	}
	value, err := parseByte("value", args[2])
	if err != nil {
		return err
	}
	frame := micronova.WriteFrame(kind, addr, value)
	fmt.Fprintf(cmd.OutOrStdout(), "% X\n", frame[:])
	return nil
}
