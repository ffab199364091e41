// Package web provides the HTTP API: automation management, manual, webhook
// and row-action triggers, the kind catalog and health.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/rows"
	"github.com/dukex/stepflow/pkg/trigger"
	"github.com/dukex/stepflow/pkg/workflow"
)

type APIHandlers struct {
	persistence persistence.Persistence
	service     *workflow.Service
	registry    *registry.Registry
	rows        rows.Store
	publisher   eventbus.EventPublisher
	validator   *validator.Validate
	onChange    func(ctx context.Context)
}

// NewAPIHandlers wires the handlers. rowStore and publisher may be nil: row
// actions then answer 404 and async triggers 400.
func NewAPIHandlers(
	persistence persistence.Persistence,
	service *workflow.Service,
	registry *registry.Registry,
	rowStore rows.Store,
	publisher eventbus.EventPublisher,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		persistence: persistence,
		service:     service,
		registry:    registry,
		rows:        rowStore,
		publisher:   publisher,
		validator:   validator,
		onChange:    func(context.Context) {},
	}
}

// OnChange registers fn to be called after an automation is saved or deleted.
func (h *APIHandlers) OnChange(fn func(ctx context.Context)) {
	h.onChange = fn
}

func (h *APIHandlers) GetAutomations(c fiber.Ctx) error {
	automations, err := h.persistence.Automations(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	if triggerType := c.Query("trigger"); triggerType != "" {
		filtered := automations[:0]

		for _, def := range automations {
			if string(def.Trigger.Type) == triggerType {
				filtered = append(filtered, def)
			}
		}

		automations = filtered
	}

	return c.JSON(ListAutomationsResponse{Automations: automations, TotalCount: len(automations)})
}

func (h *APIHandlers) GetAutomation(c fiber.Ctx) error {
	def, err := h.persistence.AutomationByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) CreateAutomation(c fiber.Ctx) error {
	var def models.AutomationDefinition
	if err := c.Bind().JSON(&def); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if def.ID == "" {
		def.ID = uuid.NewString()
	}

	if _, err := h.persistence.AutomationByID(c.Context(), def.ID); err == nil {
		return problem(c, fiber.StatusConflict, "conflict", "automation "+def.ID+" already exists")
	}

	if err := h.save(c.Context(), &def); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(def)
}

func (h *APIHandlers) UpdateAutomation(c fiber.Ctx) error {
	id := c.Params("id")

	if _, err := h.persistence.AutomationByID(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	var def models.AutomationDefinition
	if err := c.Bind().JSON(&def); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	def.ID = id

	if err := h.save(c.Context(), &def); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) DeleteAutomation(c fiber.Ctx) error {
	if err := h.persistence.DeleteAutomation(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	h.onChange(c.Context())

	return c.SendStatus(fiber.StatusNoContent)
}

// save rejects invalid definitions before they reach the store.
func (h *APIHandlers) save(ctx context.Context, def *models.AutomationDefinition) error {
	if err := workflow.ValidateDefinition(def, h.registry); err != nil {
		return err
	}

	if err := h.persistence.SaveAutomation(ctx, def); err != nil {
		return err
	}

	h.onChange(ctx)

	return nil
}

func (h *APIHandlers) ValidateAutomation(c fiber.Ctx) error {
	err := h.service.Validate(c.Context(), c.Params("id"))
	if err == nil {
		return c.JSON(ValidationResponse{Valid: true})
	}

	var defErr *workflow.DefinitionError
	if !errors.As(err, &defErr) {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusUnprocessableEntity).JSON(ValidationResponse{Problems: defErr.Problems})
}

// TriggerAutomation runs an automation on demand and answers with its results.
func (h *APIHandlers) TriggerAutomation(c fiber.Ctx) error {
	id := c.Params("id")

	req := TriggerRequest{Type: models.TriggerTypeApp}
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format: "+err.Error())
		}
	}

	if req.Type == "" {
		req.Type = models.TriggerTypeApp
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if req.Async {
		return h.queue(c, id, req)
	}

	return h.run(c, id, models.TriggerEvent{Type: req.Type, Outputs: trigger.Outputs(req.Type, req.Inputs)})
}

func (h *APIHandlers) queue(c fiber.Ctx, id string, req TriggerRequest) error {
	if h.publisher == nil {
		return badRequest(c, "async triggers need an event bus")
	}

	if _, err := h.persistence.AutomationByID(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	event := events.AutomationTriggered{
		BaseEvent:   events.NewBaseEvent(events.AutomationTriggeredEvent, id),
		TriggerType: string(req.Type),
		TriggerData: req.Inputs,
	}

	if err := h.publisher.Publish(c.Context(), id, event); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(QueuedResponse{AutomationID: id, EventID: event.ID})
}

// Webhook runs a WEBHOOK-triggered automation with the request as trigger
// outputs: {body, headers, query, method}.
func (h *APIHandlers) Webhook(c fiber.Ctx) error {
	id := c.Params("id")

	def, err := h.persistence.AutomationByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if def.Trigger.Type != models.TriggerTypeWebhook {
		return notFound(c, "automation "+id+" has no webhook trigger")
	}

	headers := make(map[string]any)
	for name, values := range c.GetReqHeaders() {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	query := make(map[string]any)
	for name, value := range c.Queries() {
		query[name] = value
	}

	outputs := map[string]any{
		"body":    webhookBody(c.Body()),
		"headers": headers,
		"query":   query,
		"method":  c.Method(),
	}

	return h.run(c, id, models.TriggerEvent{Type: models.TriggerTypeWebhook, Outputs: outputs})
}

// RowAction runs a ROW_ACTION-triggered automation on one stored row.
func (h *APIHandlers) RowAction(c fiber.Ctx) error {
	if h.rows == nil {
		return notFound(c, "no row store configured")
	}

	id := c.Params("id")

	def, err := h.persistence.AutomationByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if def.Trigger.Type != models.TriggerTypeRowAction {
		return notFound(c, "automation "+id+" has no row action trigger")
	}

	tableID := c.Params("tableId")

	row, err := h.rows.Get(c.Context(), tableID, c.Params("rowId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return h.run(c, id, models.TriggerEvent{
		Type: models.TriggerTypeRowAction,
		Outputs: map[string]any{
			"row":      row.Map(),
			"id":       row.ID,
			"revision": row.Revision,
			"table":    tableID,
		},
	})
}

func (h *APIHandlers) run(c fiber.Ctx, id string, event models.TriggerEvent) error {
	results, err := h.service.Execute(c.Context(), id, event)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(results)
}

func (h *APIHandlers) GetKinds(c fiber.Ctx) error {
	return c.JSON(h.registry.Kinds())
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK
	store := "ok"

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
		store = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"persistence": store,
			"kinds":       len(h.registry.Kinds()),
		},
		"timestamp": time.Now().UTC(),
	})
}

// webhookBody decodes a JSON body, falling back to the raw text.
func webhookBody(raw []byte) any {
	if len(raw) == 0 {
		return map[string]any{}
	}

	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		return string(raw)
	}

	return body
}
