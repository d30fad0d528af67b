package httpgin

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kirinyoku/matchseats/internal/domain"
	redisrepo "github.com/kirinyoku/matchseats/internal/repository/redis"
	"github.com/kirinyoku/matchseats/internal/service/reservation"
	"github.com/kirinyoku/matchseats/internal/worker"
)

type ReservationService interface {
	ListConfirmed(ctx context.Context, matchID int64) ([]domain.ConfirmedReservation, error)
	PendingMatches(ctx context.Context) ([]int64, error)
	Reconcile(ctx context.Context, matchID int64) (reservation.Result, error)
}

type Limiter interface {
	Allow(ctx context.Context, id string) (bool, time.Duration, error)
}

// Deps wires the ops router. Cache, Limiter, Gatherer and Stats are optional.
type Deps struct {
	Service  ReservationService
	Cache    *redisrepo.Cache
	CacheTTL time.Duration
	Limiter  Limiter
	Gatherer prometheus.Gatherer
	Stats    func() worker.Stats
	Logger   *zap.Logger
}

func NewRouter(d Deps, middlewares ...gin.HandlerFunc) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	r := gin.New()

	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(d.Logger))
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	if d.Stats != nil {
		r.GET("/workload/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, newStatsResponse(d.Stats()))
		})
	}

	r.GET("/matches/pending", handlePendingMatches(d))
	r.GET("/matches/:id/reservations", handleListReservations(d))
	r.POST("/matches/:id/reconcile", handleReconcile(d))

	return r
}

func handlePendingMatches(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids, err := d.Service.PendingMatches(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		if ids == nil {
			ids = []int64{}
		}
		c.JSON(http.StatusOK, PendingMatchesResponse{MatchIDs: ids})
	}
}

func handleListReservations(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		matchID, ok := parseMatchID(c)
		if !ok {
			return
		}

		load := func(ctx context.Context) ([]domain.ConfirmedReservation, error) {
			return d.Service.ListConfirmed(ctx, matchID)
		}

		var (
			rs  []domain.ConfirmedReservation
			err error
		)
		if d.Cache != nil {
			rs, err = d.Cache.ConfirmedListing(c.Request.Context(), matchID, d.CacheTTL, load)
		} else {
			rs, err = load(c.Request.Context())
		}
		if err != nil {
			respondErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, newListResponse(matchID, rs), "no-cache", true)
	}
}

func handleReconcile(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		matchID, ok := parseMatchID(c)
		if !ok {
			return
		}

		if d.Limiter != nil {
			allowed, retryAfter, err := d.Limiter.Allow(c.Request.Context(), strconv.FormatInt(matchID, 10))
			if err != nil {
				d.Logger.Warn("rate limiter unavailable", zap.Int64("match_id", matchID), zap.Error(err))
			} else if !allowed {
				c.Header("Retry-After", strconv.Itoa(int((retryAfter+time.Second-1)/time.Second)))
				c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
				return
			}
		}

		res, err := d.Service.Reconcile(c.Request.Context(), matchID)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, newReconcileResponse(res))
	}
}

func parseMatchID(c *gin.Context) (int64, bool) {
	v, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid match id")
		return 0, false
	}
	return v, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	_ = c.Error(err)

	var invalid reservation.InvalidIDError

	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: invalid.Error()})
	case errors.Is(err, reservation.ErrReconcileBusy):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusConflict, ErrorResponse{Error: "match is being reconciled"})
	case errors.Is(err, reservation.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "store unavailable"})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: "timeout"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
