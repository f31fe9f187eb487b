package controlplane

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fentz26/familydash/internal/calendar"
	"github.com/fentz26/familydash/internal/models"
	"github.com/gin-gonic/gin"
)

func optionalDate(c *gin.Context, key string) (*calendar.Date, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	d, err := calendar.Parse(raw)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return &d, true
}

func pathDate(c *gin.Context) (calendar.Date, bool) {
	d, err := calendar.Parse(c.Param("date"))
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return calendar.Date{}, false
	}
	return d, true
}

func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		fail(c, http.StatusBadRequest, fmt.Sprintf("%v: %v", ErrInvalidRequest, err))
		return false
	}
	return true
}

// --- Health ---

// HealthResponse is the payload of /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:  "ok",
		DB:      "ok",
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.service.Health(c.Request.Context()); err != nil {
		resp.Status = "degraded"
		resp.DB = err.Error()
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "message": "database unavailable", "data": resp})
		return
	}
	respond(c, http.StatusOK, resp)
}

// --- Task Handlers ---

func (s *Server) listTasks(c *gin.Context) {
	tasks, err := s.service.ListTasks()
	if err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusOK, tasks)
}

func (s *Server) createTask(c *gin.Context) {
	var task models.Task
	if !bind(c, &task) {
		return
	}
	created, err := s.service.CreateTask(task)
	if err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusCreated, created)
}

func (s *Server) getTask(c *gin.Context) {
	task, err := s.service.GetTask(c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusOK, task)
}

func (s *Server) updateTask(c *gin.Context) {
	var task models.Task
	if !bind(c, &task) {
		return
	}
	task.ID = c.Param("id")
	updated, err := s.service.UpdateTask(task)
	if err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusOK, updated)
}

func (s *Server) deleteTask(c *gin.Context) {
	if err := s.service.DeleteTask(c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusOK, true)
}

// --- Completion Handlers ---

type completionRequest struct {
	TaskID       string         `json:"task_id"`
	InstanceDate *calendar.Date `json:"instance_date,omitempty"`
}

func (s *Server) listCompletions(c *gin.Context) {
	date, ok := optionalDate(c, "date")
	if !ok {
		return
	}
	list, err := s.service.ListCompletions(date)
	if err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusOK, list)
}

func (s *Server) addCompletion(c *gin.Context) {
	var req completionRequest
	if !bind(c, &req) {
		return
	}
	if req.TaskID == "" {
		fail(c, http.StatusBadRequest, "task_id is required")
		return
	}
	comp, err := s.service.AddCompletion(req.TaskID, req.InstanceDate)
	if err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusCreated, comp)
}

func (s *Server) removeCompletions(c *gin.Context) {
	req := completionRequest{TaskID: c.Query("task_id")}
	if req.TaskID == "" {
		if !bind(c, &req) {
			return
		}
	} else {
		date, ok := optionalDate(c, "instance_date")
		if !ok {
			return
		}
		req.InstanceDate = date
	}
	if req.TaskID == "" {
		fail(c, http.StatusBadRequest, "task_id is required")
		return
	}
	n, err := s.service.RemoveCompletions(req.TaskID, req.InstanceDate)
	if err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"removed": n})
}

// --- Note Handlers ---

type noteRequest struct {
	Content string `json:"content"`
}

func (s *Server) getNote(c *gin.Context) {
	date, ok := pathDate(c)
	if !ok {
		return
	}
	note, err := s.service.GetNote(date)
	if err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusOK, note)
}

func (s *Server) saveNote(c *gin.Context) {
	date, ok := pathDate(c)
	if !ok {
		return
	}
	var req noteRequest
	if !bind(c, &req) {
		return
	}
	note, err := s.service.SaveNote(date, req.Content)
	if err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusOK, note)
}

func (s *Server) deleteNote(c *gin.Context) {
	date, ok := pathDate(c)
	if !ok {
		return
	}
	if err := s.service.DeleteNote(date); err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusOK, true)
}

// --- Grocery Handlers ---

type groceryRequest struct {
	Date       calendar.Date `json:"date"`
	Label      string        `json:"label"`
	MealTaskID string        `json:"meal_task_id,omitempty"`
}

func (s *Server) listGroceries(c *gin.Context) {
	date, ok := optionalDate(c, "date")
	if !ok {
		return
	}
	items, err := s.service.ListGroceries(date)
	if err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusOK, items)
}

func (s *Server) addGrocery(c *gin.Context) {
	var req groceryRequest
	if !bind(c, &req) {
		return
	}
	item, err := s.service.AddGrocery(req.Date, req.Label, req.MealTaskID)
	if err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusCreated, item)
}

func (s *Server) updateGrocery(c *gin.Context) {
	var patch models.GroceryPatch
	if !bind(c, &patch) {
		return
	}
	item, err := s.service.UpdateGrocery(c.Param("id"), patch)
	if err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusOK, item)
}

func (s *Server) deleteGrocery(c *gin.Context) {
	if err := s.service.DeleteGrocery(c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusOK, true)
}

// --- Category and Setting Handlers ---

func (s *Server) listCategories(c *gin.Context) {
	cats, err := s.service.ListCategories()
	if err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusOK, cats)
}

func (s *Server) updateCategory(c *gin.Context) {
	var patch models.CategoryPatch
	if !bind(c, &patch) {
		return
	}
	cat, err := s.service.UpdateCategory(models.Category(c.Param("key")), patch)
	if err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusOK, cat)
}

type settingPayload struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func (s *Server) getSetting(c *gin.Context) {
	key := c.Param("key")
	value, err := s.service.GetSetting(key)
	if err != nil {
		failErr(c, err)
		return
	}
	if value == nil {
		value = json.RawMessage("null")
	}
	respond(c, http.StatusOK, settingPayload{Key: key, Value: value})
}

func (s *Server) setSetting(c *gin.Context) {
	var req settingPayload
	if !bind(c, &req) {
		return
	}
	req.Key = c.Param("key")
	if len(req.Value) == 0 {
		fail(c, http.StatusBadRequest, "value is required")
		return
	}
	if err := s.service.SetSetting(req.Key, req.Value); err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusOK, req)
}

// --- Week, Audit and Sync Handlers ---

func (s *Server) getWeek(c *gin.Context) {
	start := calendar.StartOfWeek(calendar.Today(), time.Monday)
	if raw := c.Query("start"); raw != "" {
		d, err := calendar.Parse(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		start = d
	}
	view, err := s.service.Week(start)
	if err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusOK, view)
}

func (s *Server) listAudit(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		fail(c, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	entries, err := s.service.ListAudit(c.Query("task_id"), limit)
	if err != nil {
		failErr(c, err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	respond(c, http.StatusOK, entries)
}

// SyncResponse is the payload of GET /api/sync.
type SyncResponse struct {
	State any `json:"state"`
	Cache any `json:"cache"`
}

func (s *Server) getSync(c *gin.Context) {
	if s.sync == nil {
		failErr(c, ErrSyncUnavailable)
		return
	}
	respond(c, http.StatusOK, SyncResponse{
		State: s.sync.SyncState(),
		Cache: s.service.Resolver().Stats(),
	})
}

func (s *Server) forceSync(c *gin.Context) {
	if s.sync == nil {
		failErr(c, ErrSyncUnavailable)
		return
	}
	report, err := s.sync.ForceSync(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusOK, report)
}
