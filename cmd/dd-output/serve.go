package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/corner4world/deepdetect/internal/pkg/logger"
	"github.com/corner4world/deepdetect/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the output connector server",
		Long: `Start the HTTP API:
  POST /v1/measure            evaluate test batches
  POST /v1/measure/aggregate  average per-test measures
  GET  /v1/measure/history    stored measures of a service
  POST /v1/predict/finalize   rank, index and search predictions

A gRPC health service is started when --grpc-port is set.`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "HTTP server port (overrides config)")
	cmd.Flags().String("host", "", "HTTP server host (overrides config)")
	cmd.Flags().Int("grpc-port", 0, "gRPC health port (overrides config)")
	cmd.Flags().String("bus", "", "event bus type: memory or kafka (overrides config)")
	cmd.Flags().String("index", "", "similarity index engine: memory or qdrant (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	appCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("port") {
		appCfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("host") {
		appCfg.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("grpc-port") {
		appCfg.GRPCPort, _ = cmd.Flags().GetInt("grpc-port")
	}
	if cmd.Flags().Changed("bus") {
		appCfg.Bus.Type, _ = cmd.Flags().GetString("bus")
	}
	if cmd.Flags().Changed("index") {
		appCfg.Index.Engine, _ = cmd.Flags().GetString("index")
	}
	if err := appCfg.Validate(); err != nil {
		return err
	}

	log := newLogger(cmd, appCfg, os.Stdout)
	if appCfg.Log.File != "" {
		fileLog, closer, err := logger.NewFile(appCfg.Log.File, appCfg.Log.Level, appCfg.Log.Format)
		if err != nil {
			return err
		}
		defer closer.Close()
		log = fileLog
	}

	log.Info("Starting dd-output server",
		"version", version,
		"port", appCfg.Port,
		"grpc_port", appCfg.GRPCPort,
		"index_engine", appCfg.Index.Engine,
		"bus", appCfg.Bus.Type,
	)

	srvCfg := server.DefaultConfig()
	srvCfg.Host = appCfg.Host
	srvCfg.Port = appCfg.Port
	srvCfg.GRPCPort = appCfg.GRPCPort
	srvCfg.Version = version

	srv, err := server.New(srvCfg, appCfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Error("Server stopped with error")
		return err
	}
	log.Info("Server stopped")
	return nil
}
