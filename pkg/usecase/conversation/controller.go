package conversation

import (
	"context"
	"errors"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/romirm/advice-app/pkg/model"
	"github.com/romirm/advice-app/pkg/repository"
)

var (
	ErrBusy               = goerr.New("another request is in progress")
	ErrInvalidMode        = goerr.New("operation is not allowed in the current mode")
	ErrEmptyInput         = goerr.New("input is empty")
	ErrUnknownPerspective = goerr.New("unknown perspective")
	ErrAdviceExists       = goerr.New("advice already exists for this question")
)

// errNoop marks an intent that is accepted but changes nothing
var errNoop = errors.New("no-op")

// Gateway generates assessments, advice and deep-dive replies
type Gateway interface {
	AssessInformationNeeds(ctx context.Context, question string, uc model.UserContext) (*model.InfoAssessment, error)
	GetAdvice(ctx context.Context, question string, uc model.UserContext) (*model.AdviceResult, error)
	ContinueAdvice(ctx context.Context, perspective string, history []model.Message, newMessage string) (string, error)
}

// Decorator attaches presentation traits to perspective names
type Decorator interface {
	Trait(ctx context.Context, name string) model.Trait
}

// Controller drives one conversation. Only one intent runs at a time; others
// arriving meanwhile fail with ErrBusy.
type Controller struct {
	gateway   Gateway
	repo      repository.Repository
	decorator Decorator
	policy    Policy
	userID    model.UserID

	mu   sync.Mutex
	busy bool
	st   state
}

type Option func(*Controller)

// WithRepository enables persistence of conversation records
func WithRepository(repo repository.Repository) Option {
	return func(c *Controller) {
		c.repo = repo
	}
}

func WithDecorator(d Decorator) Option {
	return func(c *Controller) {
		c.decorator = d
	}
}

// WithPolicy replaces the default thresholds. An invalid policy is ignored.
func WithPolicy(p Policy) Option {
	return func(c *Controller) {
		if p.Validate() == nil {
			c.policy = p
		}
	}
}

// WithUserID sets the owner of records created by this conversation
func WithUserID(id model.UserID) Option {
	return func(c *Controller) {
		c.userID = id
	}
}

func New(gateway Gateway, opts ...Option) *Controller {
	c := &Controller{
		gateway: gateway,
		policy:  DefaultPolicy(),
		st:      initialState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) UserID() model.UserID {
	return c.userID
}

func (c *Controller) Policy() Policy {
	return c.policy
}

// begin marks the controller busy and returns a working copy of the state.
// check runs under the lock against the live state.
func (c *Controller) begin(check func(*state) error) (*state, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy {
		return nil, ErrBusy
	}
	if err := check(&c.st); err != nil {
		return nil, err
	}
	c.busy = true
	return c.st.clone(), nil
}

// commit replaces the state with the working copy and clears busy
func (c *Controller) commit(s *state) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st = *s
	c.busy = false
}

// abort drops the working copy, keeping err as the retryable error
func (c *Controller) abort(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.lastErr = err
	c.busy = false
}

// update applies a synchronous transition under the lock
func (c *Controller) update(fn func(*state) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy {
		return ErrBusy
	}
	return fn(&c.st)
}

func requireMode(mode Mode, action string) func(*state) error {
	return func(s *state) error {
		if s.mode != mode {
			return goerr.Wrap(ErrInvalidMode, action,
				goerr.V("mode", s.mode),
				goerr.V("required", mode))
		}
		return nil
	}
}

// Reset returns to the initial state so a new question can be asked
func (c *Controller) Reset() error {
	return c.update(func(s *state) error {
		*s = initialState()
		return nil
	})
}

// Resume restores a past conversation. A record with a selected perspective
// resumes the deep-dive; otherwise its perspectives are shown.
func (c *Controller) Resume(record *model.ConversationRecord) error {
	if record == nil {
		return goerr.New("record is nil")
	}
	if err := record.Validate(); err != nil {
		return err
	}

	return c.update(func(s *state) error {
		next := initialState()
		next.question = record.Question
		next.context = record.Context.Clone()
		next.recordID = record.ID
		next.saved = true
		if len(record.Perspectives) > 0 {
			next.advice = &model.AdviceResult{
				Perspectives: append([]model.Perspective(nil), record.Perspectives...),
			}
		}

		if name := record.Selected(); name != "" {
			next.mode = ModeSingle
			next.selected = name
			next.deepDive = model.CloneMessages(record.Conversation)
			if len(next.deepDive) == 0 {
				p, _ := next.advice.Find(name)
				next.deepDive = seedDeepDive(record.Question, p)
			}
		}

		*s = next
		return nil
	})
}
