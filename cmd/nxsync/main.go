package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"nxsync/internal/auth"
	"nxsync/internal/client"
	"nxsync/internal/config"
	"nxsync/internal/metastore"
	"nxsync/internal/pairing"
	"nxsync/internal/server"
	"nxsync/internal/storage"
	"nxsync/internal/syncer"
	"nxsync/pkg/utils"
	"nxsync/pkg/version"
)

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "print the version",
	}

	app := &cli.App{
		Name:                 "nxsync",
		Usage:                "Folder sync server and client",
		Version:              version.Version,
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print detailed version information",
				Action: func(c *cli.Context) error {
					fmt.Printf("Version:    %s\n", version.Version)
					fmt.Printf("Git commit: %s\n", version.GitCommit)
					fmt.Printf("Built:      %s\n", version.BuildTime)
					return nil
				},
			},
			{
				Name:  "server",
				Usage: "Run the sync server (configured via NXSYNC_* environment variables)",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "require-auth",
						Usage: "Reject file and sync requests without a bearer token",
					},
				},
				Action: runServer,
			},
			{
				Name:  "init",
				Usage: "Point this client at a server and folder",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "server",
						Usage:    "Server base URL",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "folder",
						Usage:    "Local folder to sync",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "folder-id",
						Usage: "Folder id on the server",
						Value: "default",
					},
				},
				Action: initClient,
			},
			{
				Name:  "pair",
				Usage: "Redeem a pairing code from the server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "code",
						Usage:    "Pairing code shown by the server",
						Required: true,
					},
				},
				Action: pairClient,
			},
			{
				Name:  "login",
				Usage: "Log in, registering the account if it does not exist yet",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "email",
						Usage:    "Account email",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "password",
						Usage:    "Account password",
						Required: true,
					},
				},
				Action: loginClient,
			},
			{
				Name:  "sync",
				Usage: "Upload everything new or changed in the configured folder",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of parallel uploads",
						Value: 8,
					},
				},
				Action: runSync,
			},
			{
				Name:  "watch",
				Usage: "Sync, then keep uploading as files change",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of parallel uploads",
						Value: 8,
					},
				},
				Action: runWatch,
			},
			{
				Name:   "status",
				Usage:  "Show upload journal statistics for the configured folder",
				Action: showStatus,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(c *cli.Context) error {
	cfg := config.Load()

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	store, err := metastore.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	backend, err := storage.New(cfg, store)
	if err != nil {
		return fmt.Errorf("init storage backend: %w", err)
	}

	files := syncer.NewFileStore(store)
	ingestor := syncer.NewIngestor(backend, files, 0)
	coord := syncer.NewCoordinator(ingestor, files, cfg.SyncWorkers, logger)
	pairingSvc := pairing.NewService(store)
	authSvc := auth.NewService(store, cfg.JWTSecret)

	h := server.NewHandler(files, backend, coord, pairingSvc, authSvc, cfg.Provider, logger)
	router := server.NewRouter(h, authSvc, c.Bool("require-auth"), logger)

	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	logger.WithFields(logrus.Fields{
		"addr":     addr,
		"provider": cfg.Provider,
	}).Info("server starting")
	return router.Run(addr)
}

func initClient(c *cli.Context) error {
	folder, err := filepath.Abs(c.String("folder"))
	if err != nil {
		return err
	}
	if info, err := os.Stat(folder); err != nil || !info.IsDir() {
		return fmt.Errorf("%s is not a directory", folder)
	}

	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	cfg.ServerURL = c.String("server")
	cfg.Folder = folder
	cfg.FolderID = c.String("folder-id")
	if err := config.SaveClient(cfg); err != nil {
		return err
	}

	api := client.NewAPI(cfg.ServerURL, cfg.Token)
	if err := api.Health(c.Context); err != nil {
		fmt.Printf("Warning: server not reachable: %v\n", err)
	}
	fmt.Printf("Configured: %s -> %s (folder id %s)\n", folder, cfg.ServerURL, cfg.FolderID)
	return nil
}

func pairClient(c *cli.Context) error {
	cfg, err := loadConfiguredClient()
	if err != nil {
		return err
	}
	api := client.NewAPI(cfg.ServerURL, cfg.Token)
	clientID, err := api.Pair(c.Context, c.String("code"))
	if err != nil {
		return fmt.Errorf("pairing failed: %w", err)
	}
	cfg.ClientID = clientID
	if err := config.SaveClient(cfg); err != nil {
		return err
	}
	fmt.Printf("Paired as client %s\n", clientID)
	return nil
}

func loginClient(c *cli.Context) error {
	cfg, err := loadConfiguredClient()
	if err != nil {
		return err
	}
	api := client.NewAPI(cfg.ServerURL, "")
	email, password := c.String("email"), c.String("password")

	token, err := api.Login(c.Context, email, password)
	if client.IsNotFound(err) {
		fmt.Println("No such account, registering...")
		token, err = api.Register(c.Context, email, password)
	}
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	cfg.Token = token
	if err := config.SaveClient(cfg); err != nil {
		return err
	}
	fmt.Println("Logged in")
	return nil
}

func runSync(c *cli.Context) error {
	s, j, err := buildSyncer(c)
	if err != nil {
		return err
	}
	defer j.Close()

	start := time.Now()
	result, err := s.SyncAll(c.Context)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	fmt.Printf("Scanned %d files in %s: %d uploaded, %d failed\n",
		result.Scanned, utils.FormatDuration(time.Since(start)), result.Uploaded, result.Failed)
	if result.Failed > 0 {
		return fmt.Errorf("%d files failed to upload", result.Failed)
	}
	return nil
}

func runWatch(c *cli.Context) error {
	s, j, err := buildSyncer(c)
	if err != nil {
		return err
	}
	defer j.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.Watch(ctx); err != nil && err != context.Canceled {
		return err
	}
	fmt.Println("\nStopped")
	return nil
}

func showStatus(c *cli.Context) error {
	cfg, err := loadConfiguredClient()
	if err != nil {
		return err
	}
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	stats, err := j.Stats(cfg.FolderID)
	if err != nil {
		return err
	}

	fmt.Printf("Folder: %s (id %s)\n", cfg.Folder, cfg.FolderID)
	fmt.Printf("Server: %s\n", cfg.ServerURL)
	fmt.Printf("Total Files: %d (Size: %s)\n", stats.TotalFiles, utils.FormatSize(stats.TotalSize))
	fmt.Printf("Files Uploaded: %d (Size: %s)\n", stats.UploadedFiles, utils.FormatSize(stats.UploadedSize))
	fmt.Printf("Files Pending: %d (Size: %s)\n", stats.PendingFiles, utils.FormatSize(stats.PendingSize))
	fmt.Printf("Files Failed: %d (Size: %s)\n", stats.FailedFiles, utils.FormatSize(stats.FailedSize))
	return nil
}

func buildSyncer(c *cli.Context) (*client.Syncer, *client.Journal, error) {
	cfg, err := loadConfiguredClient()
	if err != nil {
		return nil, nil, err
	}
	j, err := openJournal()
	if err != nil {
		return nil, nil, err
	}
	api := client.NewAPI(cfg.ServerURL, cfg.Token)
	syncCfg := client.SyncerConfig{Workers: c.Int("workers")}
	return client.NewSyncer(api, j, cfg.Folder, cfg.FolderID, &syncCfg, logrus.New()), j, nil
}

func loadConfiguredClient() (*config.Client, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	if cfg.ServerURL == "" || cfg.Folder == "" {
		return nil, fmt.Errorf("client not configured, run 'nxsync init' first")
	}
	return cfg, nil
}

func openJournal() (*client.Journal, error) {
	path, err := config.ClientConfigPath()
	if err != nil {
		return nil, err
	}
	return client.OpenJournal(filepath.Join(filepath.Dir(path), "journal.db"))
}
