package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	flag "github.com/spf13/pflag"

	"github.com/haldanelabs/tvarstm"
	"github.com/haldanelabs/tvarstm/internal/enginelog"
)

func fatalf(code int, format string, a ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, a...); err == nil {
		fmt.Fprintln(os.Stderr)
	}
	os.Exit(code)
}

var (
	serverAddress net.IP
	serverPort    string
	dbPath        string
	logJSON       bool
)

func init() {
	flag.IPVar(&serverAddress, "server-address", nil, `IP address on which to serve HTTP requests`)
	flag.StringVar(&serverPort, "server-port", "8080", `Port on which to serve HTTP requests`)
	flag.StringVar(&dbPath, "db-path", "", `SQLite file backing the store; empty for an in-memory store`)
	flag.BoolVar(&logJSON, "log-json", false, `Emit structured JSON logs instead of console output`)
}

func joinIPAddressAndPort(address net.IP, port string) string {
	var host string
	var empty net.IP
	if !address.Equal(empty) {
		host = address.String()
	}
	return net.JoinHostPort(host, port)
}

func runHTTPServer(address net.IP, port string, handler http.Handler, stop <-chan struct{}) error {
	server := &http.Server{
		Addr:    joinIPAddressAndPort(address, port),
		Handler: handler,
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-stop
		if err := server.Shutdown(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "failed to shut down HTTP server: %v\n", err)
		}
	}()
	err := server.ListenAndServe()
	if err != http.ErrServerClosed {
		return err
	}
	wg.Wait()
	return nil
}

func main() {
	flag.Parse()

	if logJSON {
		enginelog.Init(enginelog.Config{JSONOutput: true})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var opts []stm.Option
	if dbPath != "" {
		opts = append(opts, stm.WithBackendKind(stm.BackendPersistent), stm.WithLocation(dbPath))
	}
	store, err := stm.Open(opts...)
	if err != nil {
		fatalf(1, "Failed to open store: %v", err)
	}
	defer store.Close()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	newHandler(store).register(router)

	if err := runHTTPServer(serverAddress, serverPort, router, ctx.Done()); err != nil {
		fatalf(1, "HTTP server failed: %v", err)
	}
}
