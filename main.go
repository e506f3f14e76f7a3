// 命令行入口：解析子命令并以 cli.Execute 的返回值作为退出码。
// 收到 SIGINT/SIGTERM 时取消上下文，正在进行的请求与授权等待随之结束。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"oura-sync/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
