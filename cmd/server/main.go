package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/modelgate/modelgate/internal/adminapi"
	"github.com/modelgate/modelgate/internal/auth"
	"github.com/modelgate/modelgate/internal/config"
	"github.com/modelgate/modelgate/internal/pairing"
	"github.com/modelgate/modelgate/internal/proxylistener"
	"github.com/modelgate/modelgate/internal/registry"
	"github.com/modelgate/modelgate/internal/router"
	"github.com/modelgate/modelgate/internal/session"
	"github.com/modelgate/modelgate/internal/storage"
	"github.com/modelgate/modelgate/internal/telemetry"
)

func main() {
	v := config.NewServerViper()
	cmd := &cobra.Command{
		Use:   "modelgate-server",
		Short: "Reverse-tunneling gateway connecting public requests to NAT'd inference backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("control-addr", "", "control-plane listen address")
	cmd.Flags().String("proxy-addr", "", "proxy-port listen address")
	cmd.Flags().String("public-addr", "", "public request listen address")
	cmd.Flags().String("admin-addr", "", "admin API listen address")
	cmd.Flags().String("api-key", "", "shared secret the public router compares Authorization headers against")
	cmd.Flags().String("admin-api-key", "", "shared secret required on the admin API's X-Admin-Key header")
	cmd.Flags().String("db-path", "", "sqlite database file backing users, clients and revoked tokens")
	cmd.Flags().String("redis-addr", "", "optional redis address for the token jti existence cache")
	cmd.Flags().Bool("monitor", false, "print a one-shot snapshot of connected clients and exit")
	_ = v.BindPFlag("control_addr", cmd.Flags().Lookup("control-addr"))
	_ = v.BindPFlag("proxy_addr", cmd.Flags().Lookup("proxy-addr"))
	_ = v.BindPFlag("public_addr", cmd.Flags().Lookup("public-addr"))
	_ = v.BindPFlag("admin_addr", cmd.Flags().Lookup("admin-addr"))
	_ = v.BindPFlag("public_api_key", cmd.Flags().Lookup("api-key"))
	_ = v.BindPFlag("admin_api_key", cmd.Flags().Lookup("admin-api-key"))
	_ = v.BindPFlag("sqlite_path", cmd.Flags().Lookup("db-path"))
	_ = v.BindPFlag("redis_addr", cmd.Flags().Lookup("redis-addr"))
	_ = v.BindPFlag("monitor", cmd.Flags().Lookup("monitor"))

	if err := cmd.Execute(); err != nil {
		slog.Error("modelgate-server: exiting", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.ServerConfig) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if cfg.Monitor {
		return printMonitorSnapshot(ctx, cfg.AdminAddr, cfg.AdminAPIKey)
	}

	tpShutdown, err := telemetry.InitTracer("modelgate-server", "0.1.0")
	if err != nil {
		logger.Error("failed to init telemetry", "error", err)
	} else {
		defer func() {
			if err := tpShutdown(context.Background()); err != nil {
				logger.Error("failed to shut down telemetry", "error", err)
			}
		}()
	}

	store, err := storage.Open(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer store.Close()

	var presence storage.PresenceStore = store
	if cfg.StorageBackend == "dynamodb" {
		ddb, err := storage.NewDynamoDBPresenceStore(ctx, cfg.AWSRegion, cfg.DynamoDBTable)
		if err != nil {
			return err
		}
		presence = ddb
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	}

	users := auth.NewSQLiteUserStore(store.DB())
	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSigningKey), redisClient)
	validator := auth.NewJWTValidator([]byte(cfg.JWTSigningKey), redisClient, store.DB())

	reg := registry.New()
	pairs := pairing.New()

	controlLn, err := net.Listen("tcp", cfg.ControlAddr)
	if err != nil {
		return err
	}
	proxyLn, err := net.Listen("tcp", cfg.ProxyAddr)
	if err != nil {
		return err
	}
	publicLn, err := net.Listen("tcp", cfg.PublicAddr)
	if err != nil {
		return err
	}

	proxyListener := proxylistener.New(pairs, logger)
	apiKeyValidator := auth.NewStaticAPIKeyValidator(cfg.PublicAPIKey)
	rt := router.New(router.Deps{Registry: reg, Pairing: pairs, Validator: apiKeyValidator, Logger: logger})
	adminHandler := adminapi.NewHandler(reg, pairs, cfg.AdminAPIKey)
	adminSrv := &http.Server{Addr: cfg.AdminAddr, Handler: adminHandler.Engine()}

	evictStop := make(chan struct{})
	go runPairEviction(pairs, cfg.PairEvictAfter, evictStop)
	defer close(evictStop)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serveControlConn(gctx, controlLn, session.Deps{
			Registry: reg, Users: users, Tokens: tokens, Validator: validator, Presence: presence, Logger: logger,
		})
	})
	g.Go(func() error {
		return proxyListener.Serve(gctx, proxyLn)
	})
	g.Go(func() error {
		return servePublicConn(gctx, publicLn, rt)
	})
	g.Go(func() error {
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	logger.Info("modelgate-server: listening",
		"control", cfg.ControlAddr, "proxy", cfg.ProxyAddr, "public", cfg.PublicAddr, "admin", cfg.AdminAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logger.Info("modelgate-server: shutting down")
	case <-gctx.Done():
	}

	_ = controlLn.Close()
	_ = proxyLn.Close()
	_ = publicLn.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server forced to shutdown", "error", err)
	}
	if err := proxyListener.Shutdown(shutdownCtx); err != nil {
		logger.Error("proxy listener shutdown incomplete", "error", err)
	}

	return g.Wait()
}

func serveControlConn(ctx context.Context, ln net.Listener, deps session.Deps) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		go session.New(deps, conn).Run(ctx)
	}
}

func servePublicConn(ctx context.Context, ln net.Listener, rt *router.Router) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		go rt.Handle(ctx, conn)
	}
}

func runPairEviction(pairs *pairing.Table, maxAge time.Duration, stop <-chan struct{}) {
	if maxAge <= 0 {
		maxAge = pairing.DefaultEvictAfter
	}
	ticker := time.NewTicker(maxAge)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			pairs.EvictOlderThan(maxAge)
		}
	}
}

// monitorClientView mirrors adminapi's wire shape for a single client
// entry; kept separate rather than imported so this CLI path depends
// only on the JSON contract, not adminapi's internal package.
type monitorClientView struct {
	ClientID      string `json:"client_id"`
	LastHeartbeat string `json:"last_heartbeat"`
	Metrics       *struct {
		CPUPercent    float64 `json:"CPUPercent"`
		MemoryPercent float64 `json:"MemoryPercent"`
		DiskPercent   float64 `json:"DiskPercent"`
	} `json:"metrics"`
}

type monitorClientsResponse struct {
	Clients []monitorClientView `json:"clients"`
}

// printMonitorSnapshot implements --monitor: it does not touch the
// registry directly, since a monitor invocation is a separate process
// from the running server. Instead it polls the admin API's
// /admin/clients endpoint and renders a fixed-width table.
func printMonitorSnapshot(ctx context.Context, adminAddr, adminAPIKey string) error {
	host := adminAddr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	url := "http://" + host + "/admin/clients"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if adminAPIKey != "" {
		req.Header.Set("X-Admin-Key", adminAPIKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("modelgate-server: monitor request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("modelgate-server: monitor request returned %s", resp.Status)
	}

	var body monitorClientsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("modelgate-server: decoding monitor response: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CLIENT_ID\tCPU%\tMEM%\tDISK%\tHEARTBEAT_AGE")
	for _, c := range body.Clients {
		age := "-"
		if t, err := time.Parse(time.RFC3339, c.LastHeartbeat); err == nil {
			age = time.Since(t).Round(time.Second).String()
		}
		cpu, mem, disk := "-", "-", "-"
		if c.Metrics != nil {
			cpu = fmt.Sprintf("%.1f", c.Metrics.CPUPercent)
			mem = fmt.Sprintf("%.1f", c.Metrics.MemoryPercent)
			disk = fmt.Sprintf("%.1f", c.Metrics.DiskPercent)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ClientID, cpu, mem, disk, age)
	}
	return w.Flush()
}
