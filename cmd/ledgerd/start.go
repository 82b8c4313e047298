package main

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/urfave/cli/v2"

	ledger "github.com/stornet-labs/ledger"
	"github.com/stornet-labs/ledger/api"
	"github.com/stornet-labs/ledger/core"
	"github.com/stornet-labs/ledger/metrics"
	"github.com/stornet-labs/ledger/repo"
)

func start(ctx *cli.Context) error {
	p, err := getRootPath(ctx)
	if err != nil {
		return err
	}
	r, err := repo.Load(p)
	if err != nil {
		return err
	}

	err = log.Initialize(
		log.WithReportCaller(r.Config.Log.ReportCaller),
		log.WithPersist(true),
		log.WithFilePath(filepath.Join(r.Config.RepoRoot, repo.LogsDirName)),
		log.WithFileName(r.Config.Log.Filename),
		log.WithMaxAge(r.Config.Log.MaxAge),
		log.WithRotationTime(r.Config.Log.RotationTime),
	)
	if err != nil {
		return fmt.Errorf("log initialize: %w", err)
	}

	printVersion()

	if r.Config.API.EnableMetrics {
		metrics.InitializePrometheusMetrics()
	}

	store, err := core.NewStore(filepath.Join(r.Config.RepoRoot, repo.StateDirName))
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}

	logger := log.New()
	logger.SetLevel(log.ParseLevel(r.Config.Log.Level))

	token := core.NewMemoryToken()
	l, err := core.NewLedger(r.Config, token,
		core.WithStore(store),
		core.WithRewardDistributor(core.NewRetryingDistributor(&core.MockDistributor{}, logger)),
	)
	if err != nil {
		return fmt.Errorf("new ledger error: %w", err)
	}

	srv := &http.Server{
		Addr:    r.Config.API.Listen,
		Handler: api.New(l, r.Config.API.EnableMetrics, logger.Writer()),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	handleShutdown(srv, store, &wg)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("api server: %s", err)
		}
	}()

	fmt.Println("=============Ledgerd is ready=============")

	wg.Wait()

	return nil
}

func printVersion() {
	fmt.Printf("Ledgerd version: %s-%s-%s\n", ledger.CurrentVersion, ledger.CurrentBranch, ledger.CurrentCommit)
	fmt.Printf("App build date: %s\n", ledger.BuildDate)
	fmt.Printf("System version: %s\n", ledger.Platform)
	fmt.Printf("Golang version: %s\n", ledger.GoVersion)
	fmt.Println()
}

func handleShutdown(srv *http.Server, store *core.Store, wg *sync.WaitGroup) {
	var stop = make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGTERM)
	signal.Notify(stop, syscall.SIGINT)

	go func() {
		<-stop
		fmt.Println("received interrupt signal, shutting down...")
		if err := srv.Close(); err != nil {
			fmt.Println("close api server:", err)
		}
		if err := store.Close(); err != nil {
			fmt.Println("close state store:", err)
		}
		wg.Done()
		os.Exit(0)
	}()
}
