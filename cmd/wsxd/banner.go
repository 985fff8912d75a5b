package main

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/gin-gonic/gin"
)

const banner = `
██╗    ██╗███████╗██╗  ██╗
██║    ██║██╔════╝╚██╗██╔╝	wsxd %s (%s)
██║ █╗ ██║███████╗ ╚███╔╝ 	websocket: %s
██║███╗██║╚════██║ ██╔██╗ 	tcp: %s
╚███╔███╔╝███████║██╔╝ ██╗
 ╚══╝╚══╝ ╚══════╝╚═╝  ╚═╝
`

// printBanner 打印启动 banner 和路由表
func printBanner(out io.Writer, httpAddr, tcpAddr string, cfg *Config, routes gin.RoutesInfo) {
	ws := wsURL(httpAddr, cfg.Server.WSPath)
	if tcpAddr == "" {
		tcpAddr = "disabled"
	}
	fPrint(out, banner, version, commit, ws, tcpAddr)
	fPrint(out, "\n")

	if len(routes) > 0 {
		printRoutes(out, routes, cfg.Server.Mode)
		fPrint(out, "\n")
	}

	if cfg.Server.Mode == gin.DebugMode {
		fPrint(out, "[wsxd] Running in \"%s\" mode. Switch to \"release\" mode in production.\n", cfg.Server.Mode)
	} else {
		fPrint(out, "[wsxd] Running in \"%s\" mode.\n", cfg.Server.Mode)
	}
	fPrint(out, "[wsxd] Codec: %s | Max connections: %d\n", cfg.Socket.Codec, cfg.Socket.MaxConnections)
	fPrint(out, "[wsxd] Go version: %s | OS: %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// wsURL 拼接可直接拨号的地址
func wsURL(addr, path string) string {
	switch {
	case strings.HasPrefix(addr, ":"):
		addr = "127.0.0.1" + addr
	case strings.HasPrefix(addr, "[::]:"):
		addr = "127.0.0.1" + strings.TrimPrefix(addr, "[::]")
	case strings.HasPrefix(addr, "0.0.0.0:"):
		addr = "127.0.0.1" + strings.TrimPrefix(addr, "0.0.0.0")
	}
	return "ws://" + addr + path
}

// methodColor 根据 HTTP 方法返回 ANSI 颜色码
func methodColor(method string) string {
	switch method {
	case "GET":
		return "\033[34m"
	case "POST":
		return "\033[32m"
	default:
		return "\033[0m"
	}
}

const resetColor = "\033[0m"

// printRoutes 格式化打印路由表
func printRoutes(out io.Writer, routes gin.RoutesInfo, mode string) {
	maxPathLen := 0
	for _, r := range routes {
		if len(r.Path) > maxPathLen {
			maxPathLen = len(r.Path)
		}
	}

	for _, r := range routes {
		fPrint(out, "[wsxd-%s] %s %-7s %s %-*s --> %s\n",
			mode,
			methodColor(r.Method), r.Method, resetColor,
			maxPathLen, r.Path,
			r.Handler)
	}
}

// fPrint 打印到 writer，忽略错误
func fPrint(out io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(out, format, a...)
}
