package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/ztgate/dpi"
)

func main() {
	var (
		listenAddr = flag.String("listen", "127.0.0.1:9099", "TCP address for the verdict socket")
		sigFile    = flag.String("signatures", "", "path to the newline-delimited signature file")
		maxFrame   = flag.Int("max-frame", dpi.DefaultMaxFrame, "maximum accepted frame size in bytes")
		ioTimeout  = flag.Duration("io-timeout", dpi.DefaultIOTimeout, "per-connection read/write deadline")
		maxConns   = flag.Int("max-conns-per-source", 0, "per-source connection cap per throttle window (0 disables)")
	)
	flag.Parse()

	if *sigFile == "" {
		fmt.Fprintln(os.Stderr, "signature file required (-signatures)")
		os.Exit(2)
	}

	sigs, err := dpi.LoadSignatureFile(*sigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load signatures: %v\n", err)
		os.Exit(1)
	}
	engine := dpi.NewEngine(sigs)
	log.Printf("ztgate: loaded %d signatures from %s", len(sigs), *sigFile)

	server, err := dpi.NewServer(engine, dpi.ServerConfig{
		MaxFrame:          *maxFrame,
		IOTimeout:         *ioTimeout,
		MaxConnsPerSource: *maxConns,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to configure server: %v\n", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe(*listenAddr)
	}()

	// Give the listener a beat to bind before reporting the address.
	time.Sleep(100 * time.Millisecond)
	if addr := server.Addr(); addr != nil {
		log.Printf("ztgate: verdict socket listening on %s", addr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case err := <-errCh:
			if err != nil {
				fmt.Fprintf(os.Stderr, "server stopped: %v\n", err)
				os.Exit(1)
			}
			return
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				sigs, err := dpi.LoadSignatureFile(*sigFile)
				if err != nil {
					log.Printf("ztgate: signature reload failed, keeping current set: %v", err)
					continue
				}
				engine.Reload(sigs)
				log.Printf("ztgate: reloaded %d signatures", len(sigs))
			default:
				log.Printf("ztgate: shutting down on %s", sig)
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := server.Shutdown(ctx); err != nil {
					log.Printf("ztgate: shutdown incomplete: %v", err)
				}
				cancel()
				return
			}
		}
	}
}
