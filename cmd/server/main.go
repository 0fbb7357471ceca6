package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/ikoruk/show-seat-booking/internal/admission"
	"github.com/ikoruk/show-seat-booking/internal/clock"
	"github.com/ikoruk/show-seat-booking/internal/config"
	"github.com/ikoruk/show-seat-booking/internal/database"
	"github.com/ikoruk/show-seat-booking/internal/handler"
	"github.com/ikoruk/show-seat-booking/internal/lockstore"
	"github.com/ikoruk/show-seat-booking/internal/middleware"
	"github.com/ikoruk/show-seat-booking/internal/queue"
	"github.com/ikoruk/show-seat-booking/internal/repository"
	"github.com/ikoruk/show-seat-booking/internal/reservation"
	"github.com/ikoruk/show-seat-booking/internal/router"
	"github.com/ikoruk/show-seat-booking/internal/sweeper"
)

func main() {
	// .env is for local development; in deployment the variables come
	// from the environment directly.
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment")
	}

	cfg := config.Load()
	resCfg := config.LoadReservationConfig()
	admCfg := config.LoadAdmissionConfig()
	cacheCfg := config.LoadCacheConfig()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis is optional: without it the service keeps running on
	// relational locking alone, with admission and caching disabled.
	rdb := config.NewRedisClient()
	var locks *lockstore.Store
	if rdb != nil {
		locks = lockstore.New(rdb, admCfg.Prefix)
	} else {
		log.Println("redis unavailable: admission gate, catalog cache and seat lock entries disabled")
	}

	store := repository.NewStore(db)
	users := repository.NewUserRepo(store)
	venues := repository.NewVenueRepo(store)
	seats := repository.NewSeatRepo(store)
	shows := repository.NewShowRepo(store)
	showSeats := repository.NewShowSeatRepo(store)
	bookings := repository.NewBookingRepo(store)

	var locker reservation.SeatLocker
	if locks != nil {
		locker = locks
	}
	engine := reservation.New(store, bookings, showSeats, locker, clock.NewSystem(), resCfg.HoldWindow, resCfg.SweepBatch)

	brokerURL := queue.BrokerURL()
	publisher := queue.NewPublisher(brokerURL)
	defer publisher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background loops: hold-expiry sweeps and deferred-admission
	// promotion.
	var coord sweeper.Coordinator
	if locks != nil {
		coord = locks
	}
	go sweeper.New(engine, coord, resCfg).Start(ctx)
	if locks != nil && admCfg.Enabled {
		go queue.NewWorker(brokerURL, locks, publisher, admCfg).Start(ctx)
	}

	var gate echo.MiddlewareFunc
	if locks != nil && admCfg.Enabled {
		gate = admission.NewController(locks, publisher, admCfg).Middleware()
	}
	var cache echo.MiddlewareFunc
	if rdb != nil && cacheCfg.Enabled {
		cache = middleware.CatalogCache(cacheCfg, rdb)
	}

	e := echo.New()
	e.HideBanner = true
	router.Register(e, router.Deps{
		JWTSecret: cfg.JWTSecret,
		Health:    handler.NewHealthHandler(db, rdb),
		Auth:      handler.NewAuthHandler(cfg, users),
		Booking:   handler.NewBookingHandler(engine, bookings, showSeats, shows, publisher),
		Catalog:   handler.NewCatalogHandler(store, venues, seats, shows, showSeats),
		Gate:      gate,
		Cache:     cache,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	if err := e.Start(":" + cfg.Port); err != nil {
		log.Printf("server stopped: %v", err)
	}
}
