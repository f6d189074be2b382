// Package form runs create and edit workflows for catalog records. One
// Controller backs one form container; its phase moves
// Closed -> (Fetching) -> Ready -> Submitting -> Ready or Closed.
package form

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/frahmantamala/trading-panel/internal"
	"github.com/frahmantamala/trading-panel/internal/core/common/validation"
	"github.com/frahmantamala/trading-panel/internal/core/events"
	"github.com/frahmantamala/trading-panel/internal/upstream"
	"github.com/shopspring/decimal"
)

type Phase string

const (
	PhaseClosed     Phase = "closed"
	PhaseFetching   Phase = "fetching"
	PhaseReady      Phase = "ready"
	PhaseSubmitting Phase = "submitting"
)

var (
	ErrInputRejected = internal.NewValidationError("Input rejected", internal.ErrCodeInputRejected)
	ErrNotReady      = internal.NewConflictError("Form is not ready", internal.ErrCodeFormNotReady)
	ErrNothingToSave = internal.NewConflictError("Nothing changed", internal.ErrCodeNothingChanged)
	ErrUnknownField  = internal.NewValidationError("Unknown field", internal.ErrCodeUnknownField)
)

// Backend is the upstream side of a form.
type Backend interface {
	FetchByID(ctx context.Context, token, slug, responseKey, id string) (map[string]json.RawMessage, error)
	Create(ctx context.Context, token, slug string, fields map[string]string) (*upstream.Result, error)
	Update(ctx context.Context, token, slug, id string, fields map[string]string) (*upstream.Result, error)
}

// View is a point-in-time copy of a form for presentation.
type View struct {
	Entity    string            `json:"entity"`
	Mode      Mode              `json:"mode"`
	Phase     Phase             `json:"phase"`
	RecordID  string            `json:"record_id,omitempty"`
	Values    map[string]string `json:"values"`
	IsDirty   bool              `json:"is_dirty"`
	Missing   []string          `json:"missing"`
	CanSubmit bool              `json:"can_submit"`
	Error     string            `json:"error,omitempty"`
	Message   string            `json:"message,omitempty"`
}

type Controller struct {
	mu        sync.Mutex
	entity    *Entity
	token     string
	backend   Backend
	publisher events.Publisher
	timeout   time.Duration
	logger    *slog.Logger

	phase    Phase
	mode     Mode
	recordID string
	values   map[string]string
	snapshot map[string]string
	epoch    uint64
	errMsg   string
	message  string
	idle     chan struct{}
}

func NewController(entity *Entity, token string, backend Backend, publisher events.Publisher, timeout time.Duration, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = internal.DefaultFetchTimeout
	}
	idle := make(chan struct{})
	close(idle)

	return &Controller{
		entity:    entity,
		token:     token,
		backend:   backend,
		publisher: publisher,
		timeout:   timeout,
		logger:    logger.With("entity", entity.Slug),
		phase:     PhaseClosed,
		mode:      ModeCreate,
		values:    entity.Defaults(),
		idle:      idle,
	}
}

// OpenCreate opens an empty form.
func (c *Controller) OpenCreate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.mode = ModeCreate
	c.recordID = ""
	c.values = c.entity.Defaults()
	c.snapshot = nil
	c.errMsg = ""
	c.message = ""
	c.phase = PhaseReady
}

// OpenEdit opens the form for an existing record and loads it in the
// background. A failed load closes the form.
func (c *Controller) OpenEdit(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	epoch := c.epoch
	c.mode = ModeEdit
	c.recordID = id
	c.values = c.entity.Defaults()
	c.snapshot = nil
	c.errMsg = ""
	c.message = ""
	c.phase = PhaseFetching
	c.idle = make(chan struct{})

	go c.fetch(epoch, id, c.idle)
}

func (c *Controller) fetch(epoch uint64, id string, done chan struct{}) {
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	record, err := c.backend.FetchByID(ctx, c.token, c.entity.Slug, c.entity.ResponseKey, id)

	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		c.logger.Debug("discarding record fetched for a closed form", "record_id", id)
		return
	}

	if err != nil {
		c.logger.Warn("fetch by id failed, closing form", "record_id", id, "error", err)
		c.phase = PhaseClosed
		c.errMsg = upstream.Message(err)
		c.epoch++
		return
	}

	values := c.entity.Defaults()
	for _, f := range c.entity.Fields {
		if raw, ok := record[f.Key]; ok {
			values[f.Key] = rawText(raw)
		}
	}
	c.values = values
	c.snapshot = copyValues(values)
	c.phase = PhaseReady
}

// rawText turns a JSON value into form text: strings unquoted, null empty,
// anything else verbatim.
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// Close discards the container. Anything still in flight for it is ignored
// when it finishes.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.phase = PhaseClosed
	c.values = c.entity.Defaults()
	c.snapshot = nil
	c.recordID = ""
}

// Await blocks until a pending fetch-by-id has been applied or dropped.
func (c *Controller) Await(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// SetField replaces a field value. Values the field's filter does not accept
// are rejected and leave the form unchanged.
func (c *Controller) SetField(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(key, value)
}

// Type appends one keystroke to a field.
func (c *Controller) Type(key string, r rune) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(key, c.values[key]+string(r))
}

func (c *Controller) setLocked(key, value string) error {
	if c.phase != PhaseReady {
		return ErrNotReady
	}
	field, ok := c.entity.Field(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	if !field.Filter.Accepts(value) {
		return fmt.Errorf("%w: %s does not accept %q", ErrInputRejected, field.Label, value)
	}
	c.values[key] = value
	return nil
}

// Missing lists the labels of required fields that are blank for the current
// mode, in the order the entity declares them.
func (c *Controller) Missing() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.missingLocked()
}

func (c *Controller) validator() *validation.ValidationBuilder {
	v := validation.NewValidator()
	for _, req := range c.entity.Required[c.mode] {
		var value interface{}
		if s, ok := c.values[req.Key]; ok {
			value = s
		}
		v.LabeledField(req.Key, req.Label, value).Required()
	}
	return v
}

func (c *Controller) missingLocked() []string {
	missing := make([]string, 0)
	for _, req := range c.entity.Required[c.mode] {
		value, ok := c.values[req.Key]
		if !ok || validation.IsBlank(value) {
			missing = append(missing, req.Label)
		}
	}
	return missing
}

// IsDirty is true in edit mode once any field differs from the fetched record.
func (c *Controller) IsDirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirtyLocked()
}

func (c *Controller) dirtyLocked() bool {
	if c.snapshot == nil {
		return false
	}
	for key, value := range c.values {
		if c.snapshot[key] != value {
			return true
		}
	}
	return false
}

func (c *Controller) canSubmitLocked() bool {
	if c.phase != PhaseReady || len(c.missingLocked()) > 0 {
		return false
	}
	return c.mode == ModeCreate || c.dirtyLocked()
}

func (c *Controller) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canSubmitLocked()
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		Entity:    c.entity.Slug,
		Mode:      c.mode,
		Phase:     c.phase,
		RecordID:  c.recordID,
		Values:    copyValues(c.values),
		IsDirty:   c.dirtyLocked(),
		Missing:   c.missingLocked(),
		CanSubmit: c.canSubmitLocked(),
		Error:     c.errMsg,
		Message:   c.message,
	}
}

// Submit sends the form. It is refused unless the form is Ready, every
// required field is filled and, when editing, something changed. Only one
// submit runs at a time. On code 200 the entity's lists are invalidated and the
// form resets and closes; on anything else it stays Ready with the error.
func (c *Controller) Submit(ctx context.Context) (*upstream.Result, error) {
	c.mu.Lock()
	if c.phase != PhaseReady {
		c.mu.Unlock()
		return nil, ErrNotReady
	}
	if err := c.validator().Validate(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.mode == ModeEdit && !c.dirtyLocked() {
		c.mu.Unlock()
		return nil, ErrNothingToSave
	}
	payload, err := c.payloadLocked()
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	c.phase = PhaseSubmitting
	c.errMsg = ""
	epoch := c.epoch
	mode := c.mode
	recordID := c.recordID
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var result *upstream.Result
	if mode == ModeEdit {
		result, err = c.backend.Update(ctx, c.token, c.entity.Slug, recordID, payload)
	} else {
		result, err = c.backend.Create(ctx, c.token, c.entity.Slug, payload)
	}

	if err == nil {
		// the record changed upstream whether or not this container is still open
		c.invalidate(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		c.logger.Debug("submit finished after the form was closed", "mode", mode, "error", err)
		if err != nil {
			return nil, upstream.AppError(err)
		}
		return result, nil
	}

	if err != nil {
		c.logger.Warn("submit failed", "mode", mode, "record_id", recordID, "error", err)
		c.phase = PhaseReady
		c.errMsg = upstream.Message(err)
		return nil, upstream.AppError(err)
	}

	c.logger.Info("record saved", "mode", mode, "record_id", recordID)
	c.epoch++
	c.values = c.entity.Defaults()
	c.snapshot = nil
	c.recordID = ""
	c.message = result.Msg
	c.phase = PhaseClosed
	return result, nil
}

func (c *Controller) invalidate(ctx context.Context) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishSync(context.WithoutCancel(ctx), events.NewListInvalidated(c.entity.Tag)); err != nil {
		c.logger.Error("list invalidation failed", "tag", c.entity.Tag, "error", err)
	}
}

func (c *Controller) payloadLocked() (map[string]string, error) {
	payload := copyValues(c.values)
	for _, f := range c.entity.Fields {
		if f.Kind != KindDecimal || payload[f.Key] == "" {
			continue
		}
		d, err := decimal.NewFromString(payload[f.Key])
		if err != nil {
			return nil, internal.NewValidationFieldError(f.Key, fmt.Sprintf("%s must be a number", f.Label), internal.ErrCodeValidationFailed)
		}
		payload[f.Key] = d.String()
	}
	return payload, nil
}

func copyValues(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
