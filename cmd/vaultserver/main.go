package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/custodia-vault/custodia/cmd/flags"
	"github.com/custodia-vault/custodia/httpserver"
	"github.com/custodia-vault/custodia/interfaces"
	"github.com/custodia-vault/custodia/ledger"
	"github.com/custodia-vault/custodia/storage"
	"github.com/custodia-vault/custodia/vaultkeeper"
)

func main() {
	app := &cli.App{
		Name:  "vaultserver",
		Usage: "Serve the custodia inheritance vault API",
		Flags: flags.ServerFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			// Assemble the content store from the configured backend URIs.
			locations := make([]interfaces.StorageBackendLocation, 0)
			for _, uri := range cCtx.StringSlice(flags.StorageFlag.Name) {
				location, err := interfaces.NewStorageBackendLocation(uri)
				if err != nil {
					logger.Error("Invalid storage URI", "uri", uri, "err", err)
					return err
				}
				locations = append(locations, location)
			}

			storageFactory := storage.NewFactory(logger)
			store, err := storageFactory.CreateMultiBackend(locations)
			if err != nil {
				logger.Error("Failed to create storage backend", "err", err)
				return err
			}
			logger.Info("Content store ready", "backends", store.Name())

			ledgerOpts := []ledger.Option{}
			if journalPath := cCtx.String(flags.JournalFlag.Name); journalPath != "" {
				journal, err := ledger.NewFileJournal(journalPath)
				if err != nil {
					logger.Error("Failed to open ledger journal", "err", err)
					return err
				}
				ledgerOpts = append(ledgerOpts, ledger.WithJournal(journal))
			}

			vaultLedger, err := ledger.New(logger, ledgerOpts...)
			if err != nil {
				logger.Error("Failed to initialize ledger", "err", err)
				return err
			}

			coordinator, err := vaultkeeper.NewCoordinator(vaultLedger, store, logger)
			if err != nil {
				logger.Error("Failed to initialize coordinator", "err", err)
				return err
			}

			handler := httpserver.NewHandler(vaultLedger, coordinator, store, logger)
			srv, err := httpserver.New(flags.ConfigureServer(cCtx, logger), handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			srv.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			<-exit
			logger.Info("Shutting down")
			srv.Shutdown()
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
