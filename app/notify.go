package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/egaotan/serum-saver/dingsdk"
	"github.com/egaotan/serum-saver/env"
	"github.com/gagliardetto/solana-go"
)

// Notify reports failed swaps to DingTalk.
type Notify struct {
	env  *env.Env
	dsdk *dingsdk.DingSdk
	log  *log.Logger
}

func NewNotify(env *env.Env, dsdk *dingsdk.DingSdk, logger *log.Logger) *Notify {
	return &Notify{
		env:  env,
		dsdk: dsdk,
		log:  logger,
	}
}

func (notify *Notify) SwapFailed(ctx context.Context, market solana.PublicKey, request *SwapRequest, cause error) {
	if !notify.dsdk.Enabled() {
		return
	}
	name := market.String()
	if item := notify.env.Market(market); item != nil {
		name = item.Name
	}
	items := make([]string, 0)
	items = append(items, "saver swap failed: ")
	items = append(items, fmt.Sprintf("time: %s;", time.Now().Format("2006-01-02 15:04:05")))
	items = append(items, fmt.Sprintf("market: %s;", name))
	items = append(items, fmt.Sprintf("order: %s %s @ %s;", request.Side, request.Size, request.Price))
	items = append(items, fmt.Sprintf("error: %s", cause))
	if _, err := notify.dsdk.Notify(ctx, dingsdk.TextNotify(strings.Join(items, "\n"))); err != nil {
		notify.log.Printf("ding notify: %s", err)
	}
}
