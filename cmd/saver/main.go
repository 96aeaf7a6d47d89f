package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/egaotan/serum-saver/app"
	"github.com/egaotan/serum-saver/backend"
	"github.com/egaotan/serum-saver/config"
	"github.com/egaotan/serum-saver/store"
	"github.com/egaotan/serum-saver/utils"
	"github.com/gagliardetto/solana-go"
)

func main() {
	configFile := flag.String("config", "config.json", "config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config file] [serve | create-vault | bind <market>]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	//
	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go shutdown(cancel, quit)
	//
	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(err)
	}
	remote := backend.NewRemote(cfg.Node(), utils.NewLog(cfg.LogPath, config.BackendLog))
	if _, err := remote.ImportWallet(cfg.Key); err != nil {
		panic(err)
	}
	controller, err := solana.PrivateKeyFromBase58(cfg.Key)
	if err != nil {
		panic(err)
	}
	//
	command := flag.Arg(0)
	switch command {
	case "", "serve":
		dao, err := store.NewDao(cfg.DBDriver, cfg.DBUrl, utils.NewLog(cfg.LogPath, config.StoreLog))
		if err != nil {
			panic(err)
		}
		journal := store.NewStore(ctx, dao, utils.NewLog(cfg.LogPath, config.StoreLog))
		a := app.NewApp(ctx, cfg, remote, journal, controller, utils.NewLog(cfg.LogPath, config.AppLog))
		a.Service()
	case "create-vault":
		a := app.NewApp(ctx, cfg, remote, nil, controller, utils.NewLog(cfg.LogPath, config.ClientLog))
		vault, err := a.Client().CreateVault(ctx, controller, solana.NewWallet().PrivateKey)
		if err != nil {
			panic(err)
		}
		fmt.Printf("vault: %s\nsigner: %s\nnonce: %d\nsrm vault: %s\n", vault.Key, vault.Authority, vault.Nonce, vault.SrmVault)
	case "bind":
		market, err := solana.PublicKeyFromBase58(flag.Arg(1))
		if err != nil {
			panic(fmt.Errorf("market: %w", err))
		}
		a := app.NewApp(ctx, cfg, remote, nil, controller, utils.NewLog(cfg.LogPath, config.ClientLog))
		binding, err := a.Client().BindMarket(ctx, controller, cfg.Vault, market)
		if err != nil {
			panic(err)
		}
		fmt.Printf("binding: %s\nopen orders: %s\ncoin vault: %s\npc vault: %s\n", binding.Key, binding.OpenOrders, binding.CoinVault, binding.PcVault)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func shutdown(cancel context.CancelFunc, quit <-chan os.Signal) {
	osCall := <-quit
	fmt.Printf("System call: %v, saver is shutting down......\n", osCall)
	cancel()
}
