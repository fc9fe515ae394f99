// Package logger provides adapters for popular logger libraries to work with larch's Logger interface.
//
// The adapters allow you to use your existing logger with larch without writing boilerplate.
// Note that the standard library's slog.Logger already implements larch.Logger directly.
//
// Example with zap:
//
//	import (
//	    "larch"
//	    "larch/logger"
//	    "go.uber.org/zap"
//	)
//
//	func main() {
//	    zapLogger, _ := zap.NewProduction()
//
//	    pool, err := larch.NewBufferPool(128, disk,
//	        larch.WithPoolLogger(logger.NewZap(zapLogger)))
//	    if err != nil {
//	        panic(err)
//	    }
//	    defer pool.Close()
//	}
package logger
