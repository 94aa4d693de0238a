package memcache_fx

import (
	"go.uber.org/fx"
	mem "payflow/pkg/memcache"
)

var Module = fx.Provide(provideReceiptStore)

func provideReceiptStore() mem.ReceiptStore {
	return mem.NewReceipts()
}
