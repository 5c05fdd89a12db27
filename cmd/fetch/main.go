// Command fetch downloads a single Webshare file by ident and prints its
// progress until it finishes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NamanBalaji/wsdl/internal/common"
	"github.com/NamanBalaji/wsdl/internal/config"
	"github.com/NamanBalaji/wsdl/internal/engine"
	"github.com/NamanBalaji/wsdl/internal/logger"
	"github.com/NamanBalaji/wsdl/internal/notify"
	"github.com/NamanBalaji/wsdl/internal/webshare"
)

const pollInterval = 500 * time.Millisecond

func main() {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	id := fs.String("id", "", "Webshare file ident to download")
	contentType := fs.String("type", "movie", "content type: movie or series")
	name := fs.String("name", "", "file name to save as (defaults to the remote name)")
	configPath := fs.String("config", "", "path to the YAML config file")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[1:])

	if *id == "" {
		fmt.Fprintln(os.Stderr, "usage: fetch -id IDENT [-type movie|series] [-name NAME]")
		os.Exit(2)
	}

	var args []string
	if *configPath != "" {
		args = append(args, "-config", *configPath)
	}
	if *debug {
		args = append(args, "-debug")
	}
	cfg, err := config.GetConfig(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger.SetOutput(os.Stderr, cfg.Server.Debug)

	state, err := fetch(cfg, engine.Request{
		FileID:      *id,
		FileName:    *name,
		ContentType: common.ParseContentType(*contentType),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nSaved %s (%s)\n", state.FilePath, webshare.FormatSize(state.FinalSize))
}

func fetch(cfg *config.Config, req engine.Request) (common.DownloadState, error) {
	clientCfg := webshare.DefaultConfig()
	clientCfg.BaseURL = cfg.Webshare.BaseURL
	clientCfg.Username = cfg.Webshare.Username
	clientCfg.Password = cfg.Webshare.Password
	clientCfg.MaxRetries = cfg.Webshare.MaxRetries
	clientCfg.RetryDelay = cfg.Webshare.RetryDelay

	client, err := webshare.NewClient(clientCfg)
	if err != nil {
		return common.DownloadState{}, err
	}
	defer client.Cleanup()

	engCfg := engine.DefaultConfig()
	engCfg.MoviesDir = cfg.Storage.MoviesDir
	engCfg.SeriesDir = cfg.Storage.SeriesDir
	engCfg.MaxConcurrentDownloads = 1
	engCfg.ChunkSize = cfg.Storage.ChunkSize
	engCfg.RateLimit = cfg.Storage.RateLimit
	engCfg.GracePeriod = time.Hour

	eng, err := engine.New(engCfg, client, notify.New(cfg.Plex.URL, cfg.Plex.Token, cfg.Plex.Timeout), nil, nil)
	if err != nil {
		return common.DownloadState{}, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		return common.DownloadState{}, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = eng.Shutdown(shutdownCtx)
	}()

	if _, _, err := eng.BeginDownload(ctx, req); err != nil {
		return common.DownloadState{}, err
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		state, err := eng.Progress(req.FileID)
		if err != nil {
			return state, err
		}
		fmt.Printf("\r[%3d%%] %-60s", state.Progress, state.Message)

		if state.Status.IsTerminal() {
			if state.Status == common.StatusFailed {
				return state, errors.New(state.Error)
			}
			return state, nil
		}

		// keep polling after a signal so the cancelled task can report its failure
		<-ticker.C
	}
}
