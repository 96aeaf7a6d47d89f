package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/egaotan/serum-saver/backend"
	"github.com/egaotan/serum-saver/client"
	"github.com/egaotan/serum-saver/config"
	"github.com/egaotan/serum-saver/dingsdk"
	"github.com/egaotan/serum-saver/env"
	"github.com/egaotan/serum-saver/store"
	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
)

// App serves the saver of one controller over http.
type App struct {
	ctx        context.Context
	log        *log.Logger
	config     *config.Config
	env        *env.Env
	client     *client.Client
	store      *store.Store
	notify     *Notify
	controller solana.PrivateKey
	httpServer *http.Server
}

// NewApp wires the service. journal may be nil, swaps are then not recorded
// and /api/swaps is unavailable.
func NewApp(ctx context.Context, cfg *config.Config, executor backend.Executor, journal *store.Store, controller solana.PrivateKey, logger *log.Logger) *App {
	e := env.NewEnv(logger)
	e.Load(cfg)
	if cfg.TokenList != "" {
		if err := e.LoadTokenList(cfg.TokenList); err != nil {
			logger.Printf("%s", err)
		}
	}
	c := client.NewClient(executor, cfg.SaverProgram, cfg.DexProgram, cfg.RebateMint, logger)
	if journal != nil {
		c.SetStore(journal)
	}
	return &App{
		ctx:        ctx,
		log:        logger,
		config:     cfg,
		env:        e,
		client:     c,
		store:      journal,
		notify:     NewNotify(e, dingsdk.NewDingSdk(cfg.DingUrl), logger),
		controller: controller,
	}
}

func (a *App) Client() *client.Client {
	return a.client
}

// Service serves until the app context is done.
func (a *App) Service() {
	a.Start()
	a.StartRPC()
	<-a.ctx.Done()
	a.StopRPC()
	a.Stop()
}

func (a *App) Start() {
	if a.store != nil {
		a.store.Start()
	}
	a.log.Printf("saver service has started, vault: %s, controller: %s", a.config.Vault, a.controller.PublicKey())
}

func (a *App) Stop() {
	if a.store != nil {
		a.store.Stop()
	}
	a.log.Printf("saver service has stopped......")
}

func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	g := router.Group("/api")
	g.GET("/vault", a.getVault)
	g.GET("/markets", a.getMarkets)
	g.POST("/swap", a.postSwap)
	g.GET("/swaps", a.getSwaps)
	return router
}

func (a *App) StartRPC() {
	a.httpServer = &http.Server{
		Addr:    a.config.Listen,
		Handler: a.Router(),
	}
	a.log.Printf("start rpc server on %s......", a.config.Listen)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Printf("ListenAndServe: %s", err.Error())
		}
	}()
}

func (a *App) StopRPC() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.log.Printf("rpc server shutdown: %s", err)
	}
	a.log.Printf("rpc server has stopped......")
}
