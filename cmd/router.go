package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/bosswave/internal/env"
	"github.com/luma/bosswave/storage"
	"github.com/luma/bosswave/transport"
)

var (
	// The host to listen on
	host string

	// The port to listen for http requests on
	httpPort string

	// The port to listen for devices on
	port int

	// Number of SO_REUSEPORT listeners, 0 means one per CPU
	numListeners int
)

func init() {
	flags := RouterCmd.PersistentFlags()

	flags.IntVarP(&port, "port", "p", 0, "The port to listen for device connections on (default $BOSSWAVE_PORT or 28589)")
	flags.StringVar(&httpPort, "http-port", "", "The port to listen to HTTP requests on (default $BOSSWAVE_HTTP_PORT or 28590)")
	flags.StringVarP(&host, "host", "a", "", "The host to listen on (default $BOSSWAVE_HOST or 0.0.0.0)")
	flags.IntVar(&numListeners, "listeners", 0, "Number of SO_REUSEPORT listeners, 0 for one per CPU")
}

var RouterCmd = &cobra.Command{
	Use:   "router",
	Short: "Start a loopback BOSSWAVE router",
	Long: `Start a loopback BOSSWAVE router

Every message a device publishes is recorded and forwarded to every other
connected device. Recorded messages can be inspected over HTTP.

Usage
	bosswave router

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, err := env.LoadConfig(ctx, configFile)
		if err != nil {
			return err
		}

		log, err := env.MakeLogger(conf.LogLevel)
		if err != nil {
			return err
		}
		defer log.Sync()

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		if host == "" {
			host = conf.Host
		}

		if port == 0 {
			port = conf.Port
		}

		if httpPort == "" {
			httpPort = conf.HTTPPort
		}

		store := storage.NewInmemoryStore()
		defer store.Close()

		router := setupRouter(conf.DebugHTTP, log)
		registerRoutes(router, store)

		s := &http.Server{
			Addr:    net.JoinHostPort(host, httpPort),
			Handler: router,
		}

		// Initializing the server in a goroutine so that
		// it won't block the graceful shutdown handling below
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		tcp := transport.NewTCP(transport.Options{
			Host:         host,
			Port:         port,
			Reuseport:    true,
			NumListeners: numListeners,
			Limits:       conf.Limits(),
			Store:        store,
			Log:          log.Named("transport"),
		})

		if err := tcp.Start(ctx); err != nil {
			return err
		}

		log.Info("Listening",
			zap.Any("config", conf),
			zap.String("host", host),
			zap.Int("port", port),
			zap.String("httpPort", httpPort))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		if err := tcp.Close(); err != nil {
			log.Error("TCP router forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

func setupRouter(debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Logs all requests, like a combined access and error log, with RFC3339
	// UTC timestamps.
	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/ping"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	return r
}

func registerRoutes(r *gin.Engine, store storage.Store) {
	// Ping test
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	// Every recorded message, keyed "<conn>.<seqno>"
	r.GET("/messages", func(c *gin.Context) {
		doc, err := store.Backup()
		if err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}

		c.Data(http.StatusOK, "application/json", doc)
	})

	r.GET("/messages/:conn/:seqno", func(c *gin.Context) {
		seqNo, err := strconv.ParseUint(c.Param("seqno"), 10, 32)
		if err != nil {
			c.String(http.StatusBadRequest, "invalid sequence number")
			return
		}

		value, err := store.Get(c.Request.Context(), storage.MessageKey(c.Param("conn"), uint32(seqNo)))
		if errors.Is(err, storage.ErrNotFound) {
			c.String(http.StatusNotFound, "no such message")
			return
		}

		if err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}

		c.Data(http.StatusOK, "application/json", value)
	})
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
