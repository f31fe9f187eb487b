// Package controlplane provides the HTTP API and service layer for familydash.
package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/fentz26/familydash/internal/audit"
	"github.com/fentz26/familydash/internal/calendar"
	"github.com/fentz26/familydash/internal/events"
	"github.com/fentz26/familydash/internal/models"
	"github.com/fentz26/familydash/internal/recurrence"
	"github.com/fentz26/familydash/internal/store"
)

// Publisher receives change events from the service.
type Publisher interface {
	Emit(t events.Type, ev events.Event)
}

// Service provides the control plane business logic. Every successful
// mutation publishes its event and writes an audit record.
type Service struct {
	store    *store.Store
	recorder *audit.Recorder
	bus      Publisher
	resolver *recurrence.Resolver
	logger   *log.Logger
}

// NewService creates a new control plane service. bus and resolver may be
// nil.
func NewService(s *store.Store, rec *audit.Recorder, bus Publisher, resolver *recurrence.Resolver, logger *log.Logger) *Service {
	if resolver == nil {
		resolver = recurrence.New(recurrence.Options{})
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:    s,
		recorder: rec,
		bus:      bus,
		resolver: resolver,
		logger:   logger,
	}
}

func (s *Service) publish(t events.Type, data any) {
	s.publishFrom("", t, data)
}

func (s *Service) publishFrom(origin string, t events.Type, data any) {
	if s.bus != nil {
		s.bus.Emit(t, events.Event{Data: data, Origin: origin})
	}
}

func (s *Service) record(action string, inputs any, taskID, details string) {
	if s.recorder == nil {
		return
	}
	if _, err := s.recorder.Record(action, inputs, "success", taskID, details); err != nil {
		s.logger.Warn("audit record failed", "action", action, "err", err)
	}
}

// Health checks the database.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- Task Operations ---

// ListTasks returns all tasks, newest first.
func (s *Service) ListTasks() ([]models.Task, error) {
	return s.store.ListTasks()
}

// GetTask retrieves a task by ID.
func (s *Service) GetTask(id string) (*models.Task, error) {
	task, err := s.store.GetTask(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task, err
}

// CreateTask stores a new task.
func (s *Service) CreateTask(t models.Task) (*models.Task, error) {
	return s.createTask("", t)
}

func (s *Service) createTask(origin string, t models.Task) (*models.Task, error) {
	task, err := s.store.CreateTask(t)
	if err != nil {
		return nil, err
	}
	s.record("task.create", map[string]string{"title": task.Title, "type": string(task.Type)}, task.ID, origin)
	s.publishFrom(origin, events.TaskCreated, *task)
	return task, nil
}

// UpdateTask replaces an existing task.
func (s *Service) UpdateTask(t models.Task) (*models.Task, error) {
	return s.updateTask("", t)
}

func (s *Service) updateTask(origin string, t models.Task) (*models.Task, error) {
	task, err := s.store.UpdateTask(t)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, t.ID)
	}
	if err != nil {
		return nil, err
	}
	s.record("task.update", task, task.ID, origin)
	s.publishFrom(origin, events.TaskUpdated, events.TaskRef{ID: task.ID})
	return task, nil
}

// DeleteTask removes a task and its completions.
func (s *Service) DeleteTask(id string) error {
	if err := s.store.DeleteTask(id); err != nil {
		return err
	}
	s.record("task.delete", map[string]string{"id": id}, id, "")
	s.publish(events.TaskDeleted, events.TaskRef{ID: id})
	return nil
}

// --- Completion Operations ---

// ListCompletions returns completions, optionally for one date.
func (s *Service) ListCompletions(date *calendar.Date) ([]models.Completion, error) {
	return s.store.ListCompletions(date)
}

// AddCompletion marks an instance of a task done.
func (s *Service) AddCompletion(taskID string, date *calendar.Date) (*models.Completion, error) {
	c, err := s.store.AddCompletion(taskID, date)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, err
	}
	s.record("completion.add", c, taskID, "")
	s.publish(events.CompletionAdded, *c)
	return c, nil
}

// RemoveCompletions un-marks instances of a task.
func (s *Service) RemoveCompletions(taskID string, date *calendar.Date) (int64, error) {
	n, err := s.store.RemoveCompletions(taskID, date)
	if err != nil {
		return 0, err
	}
	s.record("completion.remove", map[string]any{"task_id": taskID, "date": date}, taskID, fmt.Sprintf("removed %d", n))
	s.publish(events.CompletionRemoved, models.Completion{TaskID: taskID, InstanceDate: date})
	return n, nil
}

// IsCompleted reports whether the instance of taskID on date is done.
func (s *Service) IsCompleted(taskID string, date calendar.Date) (bool, error) {
	return s.store.IsCompleted(taskID, date)
}

// --- Note Operations ---

// GetNote returns the note for date.
func (s *Service) GetNote(date calendar.Date) (models.Note, error) {
	return s.store.GetNote(date)
}

// SaveNote replaces the note for date.
func (s *Service) SaveNote(date calendar.Date, content string) (models.Note, error) {
	if err := s.store.SaveNote(date, content); err != nil {
		return models.Note{}, err
	}
	note := models.Note{Date: date, Content: content}
	s.record("note.save", note, "", "")
	s.publish(events.NoteSaved, note)
	return note, nil
}

// DeleteNote clears the note for date.
func (s *Service) DeleteNote(date calendar.Date) error {
	if err := s.store.DeleteNote(date); err != nil {
		return err
	}
	s.record("note.delete", map[string]string{"date": date.String()}, "", "")
	s.publish(events.NoteSaved, models.Note{Date: date})
	return nil
}

// --- Grocery Operations ---

// ListGroceries returns grocery items, optionally for one date.
func (s *Service) ListGroceries(date *calendar.Date) ([]models.GroceryItem, error) {
	return s.store.ListGroceries(date)
}

// AddGrocery adds an item to a day's list.
func (s *Service) AddGrocery(date calendar.Date, label, mealTaskID string) (*models.GroceryItem, error) {
	item, err := s.store.AddGrocery(date, label, mealTaskID)
	if err != nil {
		return nil, err
	}
	s.record("grocery.add", item, mealTaskID, "")
	s.publish(events.GroceryChanged, *item)
	return item, nil
}

// UpdateGrocery patches an item.
func (s *Service) UpdateGrocery(id string, patch models.GroceryPatch) (*models.GroceryItem, error) {
	item, err := s.store.UpdateGrocery(id, patch)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: grocery %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	s.record("grocery.update", patch, item.MealTaskID, item.ID)
	s.publish(events.GroceryChanged, *item)
	return item, nil
}

// DeleteGrocery removes an item.
func (s *Service) DeleteGrocery(id string) error {
	if err := s.store.DeleteGrocery(id); err != nil {
		return err
	}
	s.record("grocery.delete", map[string]string{"id": id}, "", id)
	s.publish(events.GroceryChanged, models.GroceryItem{ID: id})
	return nil
}

// --- Category and Setting Operations ---

// ListCategories returns the category styles.
func (s *Service) ListCategories() ([]models.CategoryStyle, error) {
	return s.store.ListCategories()
}

// UpdateCategory patches a category style.
func (s *Service) UpdateCategory(key models.Category, patch models.CategoryPatch) (*models.CategoryStyle, error) {
	c, err := s.store.UpdateCategory(key, patch)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: category %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	s.record("category.update", patch, "", string(key))
	return c, nil
}

// GetSetting returns a stored setting, or nil if unset.
func (s *Service) GetSetting(key string) (json.RawMessage, error) {
	return s.store.GetSetting(key)
}

// SetSetting stores a setting.
func (s *Service) SetSetting(key string, value json.RawMessage) error {
	if err := s.store.SetSetting(key, value); err != nil {
		return err
	}
	s.record("setting.set", map[string]string{"key": key, "value": string(value)}, "", key)
	return nil
}

// ListAudit returns recent audit records.
func (s *Service) ListAudit(taskID string, limit int) ([]models.AuditEntry, error) {
	return s.store.ListAudit(taskID, limit)
}

// --- Week View ---

// DayItem is one instance on a day with its completion flag.
type DayItem struct {
	Task      models.Task `json:"task"`
	Completed bool        `json:"completed"`
}

// DayView is the schedule of one day.
type DayView struct {
	Date  calendar.Date `json:"date"`
	Items []DayItem     `json:"items"`
}

// WeekView is the schedule of seven days.
type WeekView struct {
	Start calendar.Date `json:"start"`
	Days  []DayView     `json:"days"`
}

// Week expands the stored tasks over the seven days starting at start.
func (s *Service) Week(start calendar.Date) (*WeekView, error) {
	gen := s.resolver.Generation()
	tasks, err := s.store.ListTasks()
	if err != nil {
		return nil, err
	}
	completions, err := s.store.ListCompletions(nil)
	if err != nil {
		return nil, err
	}

	done := make(map[string]struct{}, len(completions))
	for _, c := range completions {
		if c.InstanceDate != nil {
			done[c.TaskID+"@"+c.InstanceDate.String()] = struct{}{}
		}
	}

	view := &WeekView{Start: start, Days: make([]DayView, 0, recurrence.DaysPerWeek)}
	byDate := make(map[calendar.Date]int, recurrence.DaysPerWeek)
	for i, d := range calendar.Week(start) {
		byDate[d] = i
		view.Days = append(view.Days, DayView{Date: d, Items: []DayItem{}})
	}

	for _, inst := range s.resolver.InstancesForWeekAt(gen, tasks, start) {
		i := byDate[inst.Date]
		_, completed := done[inst.Task.ID+"@"+inst.Date.String()]
		view.Days[i].Items = append(view.Days[i].Items, DayItem{Task: inst.Task, Completed: completed})
	}
	return view, nil
}

// Resolver returns the resolver backing the week view.
func (s *Service) Resolver() *recurrence.Resolver {
	return s.resolver
}

// --- Collaborator ---

// Collaborator exposes the task operations through the reconciliation CRUD
// contract, for a process that is its own source of truth. Its creates and
// updates publish events with OriginSync.
func (s *Service) Collaborator() *LocalCollaborator {
	return &LocalCollaborator{s: s}
}

// LocalCollaborator adapts a Service to the context-taking CRUD contract.
type LocalCollaborator struct {
	s *Service
}

// Ping checks the database.
func (c *LocalCollaborator) Ping(ctx context.Context) error {
	return c.s.Health(ctx)
}

// GetTasks returns all tasks.
func (c *LocalCollaborator) GetTasks(ctx context.Context) ([]models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.s.ListTasks()
}

// CreateTask stores t.
func (c *LocalCollaborator) CreateTask(ctx context.Context, t models.Task) (models.Task, error) {
	if err := ctx.Err(); err != nil {
		return models.Task{}, err
	}
	task, err := c.s.createTask(events.OriginSync, t)
	if err != nil {
		return models.Task{}, err
	}
	return *task, nil
}

// UpdateTask replaces t.
func (c *LocalCollaborator) UpdateTask(ctx context.Context, t models.Task) (models.Task, error) {
	if err := ctx.Err(); err != nil {
		return models.Task{}, err
	}
	task, err := c.s.updateTask(events.OriginSync, t)
	if err != nil {
		return models.Task{}, err
	}
	return *task, nil
}

// DeleteTask removes the task with id.
func (c *LocalCollaborator) DeleteTask(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.s.DeleteTask(id)
}
