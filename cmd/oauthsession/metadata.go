package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jeremyhahn/go-oauthsession/pkg/oauth"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Serve the OAuth client metadata document",
	Long: `Serves the client metadata document at ` + oauth.MetadataPath + `.
Without --origin the origin is derived from each request, so a development
server on localhost gets a loopback client.`,
	Args: cobra.NoArgs,
	RunE: runMetadata,
}

func runMetadata(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	opts := oauth.MetadataOptions{}
	opts.Origin, _ = cmd.Flags().GetString("origin")
	opts.ClientName, _ = cmd.Flags().GetString("client-name")
	opts.LogoPath, _ = cmd.Flags().GetString("logo")

	if opts.Origin != "" {
		if _, err := oauth.NewClientMetadata(opts.Origin, opts); err != nil {
			return err
		}
	}

	log := logrus.WithField("component", "metadata")

	mux := http.NewServeMux()
	mux.Handle(oauth.MetadataPath, oauth.MetadataHandler(opts, log))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("Serving client metadata")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metadata server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	log.Info("Shutting down")
	return server.Shutdown(shutdownCtx)
}

func init() {
	metadataCmd.Flags().String("addr", "127.0.0.1:8086", "Listen address")
	metadataCmd.Flags().String("origin", "", "Public origin of the application")
	metadataCmd.Flags().String("client-name", "oauthsession", "Client name shown by the provider")
	metadataCmd.Flags().String("logo", "", "Logo path resolved against the origin")
}
