package handler

import (
	"errors"
	"net/http"

	"github.com/dushixiang/selfmon/internal/scheduler"
	"github.com/dushixiang/selfmon/internal/service"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AgentHandler 探针查询处理器（只读）
type AgentHandler struct {
	logger       *zap.Logger
	chartService *service.ChartService
	scheduler    *scheduler.Scheduler
}

// NewAgentHandler 创建处理器，scheduler 可以为 nil
func NewAgentHandler(logger *zap.Logger, chartService *service.ChartService, sched *scheduler.Scheduler) *AgentHandler {
	return &AgentHandler{
		logger:       logger,
		chartService: chartService,
		scheduler:    sched,
	}
}

// Register 注册路由
func (h *AgentHandler) Register(g *echo.Group) {
	g.GET("/agents", h.List)
	g.GET("/agents/:name/last_hour", h.LastHour)
	g.GET("/agents/:name/today", h.Today)
	g.GET("/agents/:name/charts", h.Charts)
	g.GET("/status", h.Status)
}

// List 所有探针及最近状态
// GET /api/agents
func (h *AgentHandler) List(c echo.Context) error {
	overviews, err := h.chartService.ListAgentsLatest(c.Request().Context())
	if err != nil {
		h.logger.Error("查询探针列表失败", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, overviews)
}

// LastHour 最近一小时的原始采样
// GET /api/agents/:name/last_hour
func (h *AgentHandler) LastHour(c echo.Context) error {
	name := c.Param("name")
	samples, err := h.chartService.QueryLastHour(c.Request().Context(), name)
	if err != nil {
		return h.queryError(c, name, err)
	}
	return c.JSON(http.StatusOK, samples)
}

// Today 最近 24 小时的原始采样
// GET /api/agents/:name/today
func (h *AgentHandler) Today(c echo.Context) error {
	name := c.Param("name")
	samples, err := h.chartService.QueryToday(c.Request().Context(), name)
	if err != nil {
		return h.queryError(c, name, err)
	}
	return c.JSON(http.StatusOK, samples)
}

// Charts 图表数据
// GET /api/agents/:name/charts?range=hour|day
func (h *AgentHandler) Charts(c echo.Context) error {
	name := c.Param("name")
	resp, err := h.chartService.GetCharts(c.Request().Context(), name, c.QueryParam("range"))
	if err != nil {
		return h.queryError(c, name, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Status 调度任务状态
// GET /api/status
func (h *AgentHandler) Status(c echo.Context) error {
	tasks := []scheduler.TaskStatus{}
	if h.scheduler != nil {
		tasks = h.scheduler.GetTaskStatus()
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"tasks": tasks,
	})
}

func (h *AgentHandler) queryError(c echo.Context, name string, err error) error {
	switch {
	case errors.Is(err, service.ErrAgentNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "探针不存在",
		})
	case errors.Is(err, service.ErrInvalidRange):
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "range 参数只支持 hour 或 day",
		})
	}
	h.logger.Error("查询探针采样失败", zap.String("agent", name), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error": err.Error(),
	})
}
