package server

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/aethercycle/aethercycle-protocol-sub000/aec/acmodule"
	"github.com/aethercycle/aethercycle-protocol-sub000/aec/endowment"
	"github.com/aethercycle/aethercycle-protocol-sub000/aec/engine"
	"github.com/aethercycle/aethercycle-protocol-sub000/aec/staking"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/log"
	"github.com/aethercycle/aethercycle-protocol-sub000/server/metric"
)

const DefaultProjectionPeriods = 12

type Manager struct {
	e      *echo.Echo
	addr   string
	logger log.Logger
	wssm   *wsSessionManager
	mtx    sync.RWMutex

	endow *endowment.Endowment
	eng   *engine.Engine
	pools map[string]*staking.Pool
}

func NewManager(addr string, logger log.Logger) *Manager {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = HTTPErrorHandler

	return &Manager{
		e:      e,
		addr:   addr,
		logger: logger.WithFields(log.Fields{log.FieldKeyModule: "SRV"}),
		wssm:   newWSSessionManager(logger),
		pools:  make(map[string]*staking.Pool),
	}
}

func (srv *Manager) SetEndowment(e *endowment.Endowment) {
	srv.mtx.Lock()
	defer srv.mtx.Unlock()
	srv.endow = e
}

func (srv *Manager) SetEngine(e *engine.Engine) {
	srv.mtx.Lock()
	defer srv.mtx.Unlock()
	srv.eng = e
}

func (srv *Manager) SetPool(p *staking.Pool) {
	srv.mtx.Lock()
	defer srv.mtx.Unlock()
	srv.pools[p.GetStatus().Name] = p
}

// EventSink returns the sink that feeds websocket stream sessions. Wire it
// into the component event fan-out.
func (srv *Manager) EventSink() acmodule.EventSink {
	return srv.wssm
}

func (srv *Manager) endowment() *endowment.Endowment {
	srv.mtx.RLock()
	defer srv.mtx.RUnlock()
	return srv.endow
}

func (srv *Manager) engine() *engine.Engine {
	srv.mtx.RLock()
	defer srv.mtx.RUnlock()
	return srv.eng
}

func (srv *Manager) pool(name string) *staking.Pool {
	srv.mtx.RLock()
	defer srv.mtx.RUnlock()
	return srv.pools[name]
}

func (srv *Manager) poolNames() []string {
	srv.mtx.RLock()
	defer srv.mtx.RUnlock()
	names := make([]string, 0, len(srv.pools))
	for k := range srv.pools {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (srv *Manager) Start() error {
	srv.e.Use(middleware.Recover())
	srv.e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		MaxAge: 3600,
	}))

	g := srv.e.Group("/api/v1")
	g.GET("/treasury", srv.handleTreasuryStatus)
	g.GET("/treasury/projection", srv.handleTreasuryProjection)
	g.GET("/treasury/suggest", srv.handleTreasurySuggest)
	g.GET("/treasury/history", srv.handleTreasuryHistory)
	g.GET("/pools", srv.handlePools)
	g.GET("/pools/:name", srv.handlePoolStatus)
	g.GET("/pools/:name/stakes/:addr", srv.handleStakeInfo)
	g.GET("/engine", srv.handleEngineStatus)

	srv.e.GET("/api/v1/events", srv.wssm.RunEventSession)
	srv.e.GET("/metrics", echo.WrapHandler(metric.PrometheusExporter()))

	srv.logger.Infof("listen addr=%s", srv.addr)
	if err := srv.e.Start(srv.addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (srv *Manager) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	srv.wssm.StopAllSessions()
	if err := srv.e.Shutdown(ctx); err != nil {
		srv.logger.Warnf("fail to shutdown err=%+v", err)
	}
}

func (srv *Manager) handleTreasuryStatus(c echo.Context) error {
	e := srv.endowment()
	if e == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "treasury not configured")
	}
	return c.JSON(http.StatusOK, e.GetStatus())
}

// Big quantities are served as decimal strings.
type projectionResponse struct {
	Periods          int    `json:"periods"`
	ProjectedBalance string `json:"projectedBalance"`
	Sustainable      bool   `json:"sustainable"`
}

func (srv *Manager) handleTreasuryProjection(c echo.Context) error {
	e := srv.endowment()
	if e == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "treasury not configured")
	}
	periods := DefaultProjectionPeriods
	if v := c.QueryParam("periods"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "bad periods")
		}
		periods = n
	}
	return c.JSON(http.StatusOK, &projectionResponse{
		Periods:          periods,
		ProjectedBalance: e.ProjectBalance(periods).String(),
		Sustainable:      e.CheckSustainability(periods),
	})
}

func (srv *Manager) handleTreasurySuggest(c echo.Context) error {
	e := srv.endowment()
	if e == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "treasury not configured")
	}
	return c.JSON(http.StatusOK, e.SuggestRelease())
}

func (srv *Manager) handleTreasuryHistory(c echo.Context) error {
	e := srv.endowment()
	if e == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "treasury not configured")
	}
	return c.JSON(http.StatusOK, e.History())
}

func (srv *Manager) handlePools(c echo.Context) error {
	statuses := make([]*staking.PoolStatus, 0)
	for _, name := range srv.poolNames() {
		statuses = append(statuses, srv.pool(name).GetStatus())
	}
	return c.JSON(http.StatusOK, statuses)
}

func (srv *Manager) handlePoolStatus(c echo.Context) error {
	p := srv.pool(c.Param("name"))
	if p == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown pool")
	}
	return c.JSON(http.StatusOK, p.GetStatus())
}

func (srv *Manager) handleStakeInfo(c echo.Context) error {
	p := srv.pool(c.Param("name"))
	if p == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown pool")
	}
	addr, err := acmodule.ParseAddress(c.Param("addr"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "bad address")
	}
	info := p.GetStakeInfo(addr)
	if info == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no stake")
	}
	return c.JSON(http.StatusOK, info)
}

func (srv *Manager) handleEngineStatus(c echo.Context) error {
	e := srv.engine()
	if e == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "engine not configured")
	}
	return c.JSON(http.StatusOK, e.GetStatus())
}
