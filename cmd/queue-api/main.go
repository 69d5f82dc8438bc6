package main

import (
	"context"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/config"
	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/httpapi"
	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/notify"
	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/realtime"
	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/store/postgres"
	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/telemetry"
	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/worker"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DB_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}
	secret := []byte(cfg.JWTSecret)

	shutdownTelemetry := telemetry.Setup("queue-api")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	hub := realtime.NewHub()
	store := postgres.NewStore(pool, postgres.Options{
		Notifier:              hub,
		AvgServiceWindow:      cfg.AvgServiceWindow,
		DefaultServiceMinutes: cfg.DefaultServiceMinutes,
		QueuePreviewSize:      cfg.QueuePreviewSize,
		CounterAvgWindow:      cfg.CounterAvgWindow,
	})

	handler := httpapi.NewHandler(store, store, httpapi.Options{
		JWTSecret: secret,
		TokenTTL:  cfg.TokenTTL,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:  cfg.RateLimitPerMinute,
		IPBurst:      cfg.RateLimitBurst,
		OrgPerMinute: cfg.OrgRateLimitPerMinute,
		OrgBurst:     cfg.OrgRateLimitBurst,
	}, secret)

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/realtime/", realtimeHandler(hub, secret))
	// Logging sits inside auth so request lines carry the tenant from claims.
	mux.Handle("/", httpapi.AuthMiddleware(secret, httpapi.LoggingMiddleware(handler.Routes())))

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	root := otelhttp.NewHandler(corsMiddleware.Handler(limiter.Middleware(mux)), "queue-api")

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	go worker.RunDailyReset(workerCtx, store, cfg.ResetInterval)

	go func() {
		log.Printf("queue-api listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancelWorker()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// realtimeHandler authenticates socket subscribers with the same JWT as the
// REST surface and pins their subscription to the organization in the token.
func realtimeHandler(hub *realtime.Hub, secret []byte) http.Handler {
	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		req := session.Request()
		token := bearerFromRequest(req)
		if token == "" {
			_ = session.Close(4001, "missing token")
			return
		}
		claims, err := httpapi.ParseToken(secret, token)
		if err != nil {
			_ = session.Close(4002, "invalid token")
			return
		}

		client := &realtime.Client{
			ID:           uuid.NewString(),
			Send:         make(chan []byte, 16),
			Subscription: notify.Scope{OrganizationID: claims.OrganizationID},
		}
		hub.Register(client)
		defer hub.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := realtime.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			sub := notify.Scope{OrganizationID: claims.OrganizationID}
			if parsed.Action == "subscribe" {
				sub.CounterID = strings.TrimSpace(parsed.CounterID)
				sub.Role = strings.TrimSpace(parsed.Role)
			}
			hub.UpdateSubscription(client, sub)
		}
	})
}

func bearerFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.Fields(header)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
