// Command sellerpro はマーケットプレイス向け商品説明生成サービスのバックエンド。
//
// 使い方:
//
//	sellerpro [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/sellerpro/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "sellerpro: %v\n", err)
		os.Exit(1)
	}
}
