package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/thebronway/domain-manager/internal/certs"
	"github.com/thebronway/domain-manager/internal/config"
	"github.com/thebronway/domain-manager/internal/ddns"
	"github.com/thebronway/domain-manager/internal/events"
	"github.com/thebronway/domain-manager/internal/notify"
	"github.com/thebronway/domain-manager/internal/scheduler"
	"github.com/thebronway/domain-manager/internal/state"
	"github.com/thebronway/domain-manager/pkg/logger"
)

// Server exposes the trigger and status API over HTTP.
type Server struct {
	cfg        *config.Config
	store      *state.Store
	sched      *scheduler.Scheduler
	reconciler *ddns.Reconciler
	certs      *certs.Manager
	notifier   *notify.Fanout
	events     *events.Store

	echo *echo.Echo
	log  *logger.Logger
}

// New wires the HTTP server around the engine components. The events
// store may be nil; history endpoints then report an empty list.
func New(cfg *config.Config, store *state.Store, sched *scheduler.Scheduler,
	reconciler *ddns.Reconciler, certMgr *certs.Manager,
	notifier *notify.Fanout, ev *events.Store) *Server {

	s := &Server{
		cfg:        cfg,
		store:      store,
		sched:      sched,
		reconciler: reconciler,
		certs:      certMgr,
		notifier:   notifier,
		events:     ev,
		echo:       echo.New(),
		log:        logger.GetLogger(),
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())

	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/health", s.health)

	api := s.echo.Group("/api/v1")
	if secret := s.cfg.Server.AuthSecret; secret != "" {
		api.Use(bearerAuth(secret))
	} else {
		s.log.Warn("API auth secret not set, the trigger API is unauthenticated")
	}

	api.GET("/status", s.status)
	api.GET("/events", s.listEvents)
	api.POST("/trigger/ddns", s.triggerDDNS)
	api.POST("/trigger/ssl", s.triggerSSL)
	api.POST("/trigger/test-notification", s.testNotification)
	api.POST("/domains/:name/force-update", s.forceUpdate)
	api.POST("/domains/:name/refresh-ip", s.refreshIP)
	api.POST("/domains/:name/issue", s.issueCertificate)
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	s.log.Info("Starting API server", "addr", addr)

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// bearerAuth validates an HS256 bearer token signed with the shared
// secret.
func bearerAuth(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return key, nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			return next(c)
		}
	}
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type domainStatus struct {
	RecordedIP     *string    `json:"recorded_ip"`
	SSLExpiration  *time.Time `json:"ssl_expiration"`
	LastUpdateTime *time.Time `json:"last_update_time"`
	SSLLastRenew   *time.Time `json:"ssl_last_renew"`
	DDNS           bool       `json:"ddns"`
	AutoUpdate     bool       `json:"auto_update"`
	SSL            bool       `json:"ssl"`
}

type statusResponse struct {
	PublicIP        *string                 `json:"public_ip"`
	LastIPCheckTime *time.Time              `json:"last_ip_check_time"`
	SSLBatchRunning bool                    `json:"ssl_batch_running"`
	Domains         map[string]domainStatus `json:"domains"`
	NextRuns        map[string]time.Time    `json:"next_runs"`
}

func (s *Server) status(c echo.Context) error {
	snap := s.store.Snapshot()

	resp := statusResponse{
		PublicIP:        snap.PublicIP,
		LastIPCheckTime: snap.LastIPCheckTime,
		SSLBatchRunning: s.certs.Running(),
		Domains:         make(map[string]domainStatus),
		NextRuns:        make(map[string]time.Time),
	}

	for _, d := range s.cfg.Domains {
		ds := domainStatus{
			DDNS:       d.DDNS,
			AutoUpdate: d.AutoUpdateEnabled(),
			SSL:        d.SSL.Enabled,
		}
		if st, ok := snap.DomainStates[d.Name]; ok && st != nil {
			ds.RecordedIP = st.RecordedIP
			ds.SSLExpiration = st.SSLExpiration
			ds.LastUpdateTime = st.LastUpdateTime
			ds.SSLLastRenew = st.SSLLastRenew
		}
		resp.Domains[d.Name] = ds
	}

	for _, t := range s.sched.Tasks() {
		// Multiple intra-hour IP checks collapse to the soonest one.
		if existing, ok := resp.NextRuns[string(t.Kind)]; !ok || t.NextRun.Before(existing) {
			resp.NextRuns[string(t.Kind)] = t.NextRun
		}
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) listEvents(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	if s.events == nil {
		return c.JSON(http.StatusOK, []events.Event{})
	}

	list, err := s.events.Recent(limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if list == nil {
		list = []events.Event{}
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) triggerDDNS(c echo.Context) error {
	s.log.Info("Manual DDNS check triggered via API")
	s.recordEvent("trigger", "", "Manual DDNS check", "triggered via API")

	s.reconciler.Run(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]string{"message": "DDNS check completed"})
}

func (s *Server) triggerSSL(c echo.Context) error {
	s.log.Info("Manual SSL check triggered via API")

	if err := s.certs.TriggerBatch(); err != nil {
		return echo.NewHTTPError(http.StatusConflict, "an SSL check is already running")
	}
	s.recordEvent("trigger", "", "Manual SSL check", "batch started via API")
	return c.JSON(http.StatusAccepted, map[string]string{"message": "SSL check started"})
}

func (s *Server) testNotification(c echo.Context) error {
	if err := s.notifier.SendTest(); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "test notification sent"})
}

func (s *Server) forceUpdate(c echo.Context) error {
	name := c.Param("name")

	if err := s.reconciler.ForceUpdate(c.Request().Context(), name); err != nil {
		return domainError(name, err)
	}

	s.recordEvent("trigger", name, "Manual DDNS update", "forced via API")
	return c.JSON(http.StatusOK, map[string]string{
		"message": fmt.Sprintf("DNS record for %s updated", name),
	})
}

func (s *Server) refreshIP(c echo.Context) error {
	name := c.Param("name")

	recorded, err := s.reconciler.RefreshRecordedIP(c.Request().Context(), name)
	if err != nil {
		return domainError(name, err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"domain":      name,
		"recorded_ip": recorded,
	})
}

func (s *Server) issueCertificate(c echo.Context) error {
	name := c.Param("name")

	if err := s.certs.IssueCertificate(c.Request().Context(), name); err != nil {
		return domainError(name, err)
	}

	s.recordEvent("renewal", name, "Manual certificate issuance", "issued via API")
	return c.JSON(http.StatusOK, map[string]string{
		"message": fmt.Sprintf("certificate for %s created", name),
	})
}

func (s *Server) recordEvent(kind, domainName, subject, detail string) {
	if s.events != nil {
		s.events.Record(kind, domainName, subject, detail)
	}
}
