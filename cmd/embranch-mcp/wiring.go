package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/embranch/embranch/internal/changedetect"
	"github.com/embranch/embranch/internal/chroma"
	"github.com/embranch/embranch/internal/doltdriver"
	"github.com/embranch/embranch/internal/econfig"
	"github.com/embranch/embranch/internal/elog"
	"github.com/embranch/embranch/internal/initializer"
	"github.com/embranch/embranch/internal/syncengine"
	"github.com/embranch/embranch/internal/syncstate"
)

// app bundles the wired-up components every subcommand needs.
type app struct {
	cfg     *econfig.Config
	root    string
	driver  *doltdriver.Driver
	chroma  *chroma.Gateway
	syncChk *syncstate.Checker
	engine  *syncengine.Engine
	init    *initializer.Initializer
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := econfig.Load(flagConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	lvl := cfg.LogLevel
	if flagLogLevel != "" {
		lvl = flagLogLevel
	}
	elog.Configure(cfg.EnableLogging, elog.ParseLevel(lvl), cfg.LogFileName)

	root := flagRepo
	if root == "" {
		root = cfg.DMMSProjectRoot
	}
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = wd
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	driver := doltdriver.New(cfg.DoltExecutablePath, root, cfg.DoltCommandTimeout)
	syncChk := syncstate.New(driver, root)

	chromaPath := cfg.ChromaDataPath
	if chromaPath == "" {
		chromaPath = filepath.Join(root, ".dmms", "chroma")
	}
	backend, err := chroma.NewChromaGoBackend(ctx, chromaPath)
	if err != nil {
		return nil, fmt.Errorf("opening chroma store: %w", err)
	}
	gateway, err := chroma.New(ctx, backend, nil)
	if err != nil {
		return nil, fmt.Errorf("starting chroma gateway: %w", err)
	}

	doltRows := func(ctx context.Context) ([]changedetect.DoltRow, bool, error) {
		res, err := driver.Query(ctx, "SELECT id, collection, content, metadata_json FROM documents")
		if err != nil {
			return nil, false, err
		}
		if !res.Success {
			return nil, false, nil
		}
		return parseDocumentRows(res.Output), true, nil
	}

	engine := &syncengine.Engine{
		Driver:   driver,
		Chroma:   gateway,
		Root:     root,
		SyncChk:  syncChk,
		DoltRows: doltRows,
	}

	init := &initializer.Initializer{
		Driver:        driver,
		Root:          root,
		SyncChk:       syncChk,
		RemoteURLEnv:  cfg.DoltRemoteURL,
		DefaultBranch: "main",
	}

	return &app{
		cfg:     cfg,
		root:    root,
		driver:  driver,
		chroma:  gateway,
		syncChk: syncChk,
		engine:  engine,
		init:    init,
	}, nil
}
