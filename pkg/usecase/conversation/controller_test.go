package conversation_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/romirm/advice-app/pkg/model"
	"github.com/romirm/advice-app/pkg/repository"
	"github.com/romirm/advice-app/pkg/usecase/conversation"
)

const testUser = model.UserID("user-1")

type mockGateway struct {
	mu sync.Mutex

	assessFunc   func(ctx context.Context, question string, uc model.UserContext) (*model.InfoAssessment, error)
	adviceFunc   func(ctx context.Context, question string, uc model.UserContext) (*model.AdviceResult, error)
	continueFunc func(ctx context.Context, perspective string, history []model.Message, newMessage string) (string, error)

	assessCalls   []model.UserContext
	adviceCalls   []model.UserContext
	continueCalls [][]model.Message
}

func (m *mockGateway) AssessInformationNeeds(ctx context.Context, question string, uc model.UserContext) (*model.InfoAssessment, error) {
	m.mu.Lock()
	m.assessCalls = append(m.assessCalls, uc.Clone())
	m.mu.Unlock()
	if m.assessFunc != nil {
		return m.assessFunc(ctx, question, uc)
	}
	return model.EnoughInfo("ok"), nil
}

func (m *mockGateway) GetAdvice(ctx context.Context, question string, uc model.UserContext) (*model.AdviceResult, error) {
	m.mu.Lock()
	m.adviceCalls = append(m.adviceCalls, uc.Clone())
	m.mu.Unlock()
	if m.adviceFunc != nil {
		return m.adviceFunc(ctx, question, uc)
	}
	return sampleAdvice(), nil
}

func (m *mockGateway) ContinueAdvice(ctx context.Context, perspective string, history []model.Message, newMessage string) (string, error) {
	m.mu.Lock()
	m.continueCalls = append(m.continueCalls, model.CloneMessages(history))
	m.mu.Unlock()
	if m.continueFunc != nil {
		return m.continueFunc(ctx, perspective, history, newMessage)
	}
	return "Reply from " + perspective, nil
}

func (m *mockGateway) counts() (assess, advice, cont int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.assessCalls), len(m.adviceCalls), len(m.continueCalls)
}

func sampleAdvice() *model.AdviceResult {
	return &model.AdviceResult{
		Perspectives: []model.Perspective{
			{Name: "Close Friend", Advice: "Go for it."},
			{Name: "Financial Planner", Advice: "Check your budget."},
			{Name: "Parent", Advice: "Think it over."},
		},
	}
}

func needMore(questions ...string) func(ctx context.Context, question string, uc model.UserContext) (*model.InfoAssessment, error) {
	return func(ctx context.Context, question string, uc model.UserContext) (*model.InfoAssessment, error) {
		return &model.InfoAssessment{
			HasEnoughInfo:     false,
			FollowUpQuestions: questions,
			Reasoning:         "Need more details",
		}, nil
	}
}

// sequence returns assessments in order, repeating the last one
func sequence(fns ...func(ctx context.Context, question string, uc model.UserContext) (*model.InfoAssessment, error)) func(ctx context.Context, question string, uc model.UserContext) (*model.InfoAssessment, error) {
	var mu sync.Mutex
	i := 0
	return func(ctx context.Context, question string, uc model.UserContext) (*model.InfoAssessment, error) {
		mu.Lock()
		fn := fns[min(i, len(fns)-1)]
		i++
		mu.Unlock()
		return fn(ctx, question, uc)
	}
}

// flakyRepo wraps a repository and fails the first failCreates creates
type flakyRepo struct {
	repository.Repository
	mu          sync.Mutex
	failCreates int
	failUpdates bool
}

func (r *flakyRepo) CreateRecord(ctx context.Context, record *model.ConversationRecord) (model.RecordID, error) {
	r.mu.Lock()
	if r.failCreates != 0 {
		if r.failCreates > 0 {
			r.failCreates--
		}
		r.mu.Unlock()
		return "", errors.New("store unavailable")
	}
	r.mu.Unlock()
	return r.Repository.CreateRecord(ctx, record)
}

func (r *flakyRepo) UpdateRecord(ctx context.Context, id model.RecordID, update model.RecordUpdate) error {
	if r.failUpdates {
		return errors.New("store unavailable")
	}
	return r.Repository.UpdateRecord(ctx, id, update)
}

func newController(gw *mockGateway, repo repository.Repository, opts ...conversation.Option) *conversation.Controller {
	opts = append([]conversation.Option{
		conversation.WithRepository(repo),
		conversation.WithUserID(testUser),
	}, opts...)
	return conversation.New(gw, opts...)
}

func TestSubmitQuestionWithEnoughInfo(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	repo := repository.NewMemory()
	c := newController(gw, repo)

	gt.NoError(t, c.SubmitQuestion(ctx, "  Should I buy a car?  "))

	v := c.View(ctx)
	gt.V(t, v.Mode).Equal(conversation.ModeMulti)
	gt.V(t, v.Question).Equal("Should I buy a car?")
	gt.A(t, v.Perspectives).Length(3)
	gt.V(t, v.Perspectives[0].Name).Equal("Close Friend")
	gt.V(t, v.Perspectives[2].Advice).Equal("Think it over.")
	gt.True(t, v.Gathering == nil)
	gt.True(t, v.Saved)
	gt.V(t, v.Error).Equal("")

	assess, advice, _ := gw.counts()
	gt.V(t, assess).Equal(1)
	gt.V(t, advice).Equal(1)
	gt.V(t, gw.assessCalls[0].Len()).Equal(0)

	records, err := repo.ListRecordsByUser(ctx, testUser, 0)
	gt.NoError(t, err)
	gt.A(t, records).Length(1)
	gt.V(t, records[0].ID).Equal(v.RecordID)
	gt.V(t, records[0].Question).Equal("Should I buy a car?")
	gt.A(t, records[0].Perspectives).Length(3)
	gt.True(t, records[0].SelectedPerspective == nil)
}

func TestSubmitQuestionEntersGathering(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{assessFunc: needMore("How old are you?", "What is your budget?", "Do you commute?")}
	repo := repository.NewMemory()
	c := newController(gw, repo)

	gt.NoError(t, c.SubmitQuestion(ctx, "Should I buy a car?"))

	v := c.View(ctx)
	gt.V(t, v.Mode).Equal(conversation.ModeGathering)
	gt.V(t, v.Gathering.Index).Equal(0)
	gt.V(t, v.Gathering.Total).Equal(3)
	gt.V(t, v.Gathering.CurrentQuestion).Equal("How old are you?")
	gt.A(t, v.Gathering.Transcript).Length(3)
	gt.V(t, v.Gathering.Transcript[0]).Equal(model.UserMessage("Should I buy a car?"))
	gt.V(t, v.Gathering.Transcript[1]).Equal(model.AssistantMessage("Need more details"))
	gt.V(t, v.Gathering.Transcript[2]).Equal(model.AssistantMessage("How old are you?"))
	gt.A(t, v.Perspectives).Length(0)

	_, advice, _ := gw.counts()
	gt.V(t, advice).Equal(0)

	records, err := repo.ListRecordsByUser(ctx, testUser, 0)
	gt.NoError(t, err)
	gt.A(t, records).Length(0)
}

func TestGatheringRationaleDefault(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{
		assessFunc: func(ctx context.Context, question string, uc model.UserContext) (*model.InfoAssessment, error) {
			return &model.InfoAssessment{FollowUpQuestions: []string{"Why?"}}, nil
		},
	}
	c := newController(gw, repository.NewMemory())

	gt.NoError(t, c.SubmitQuestion(ctx, "q"))
	v := c.View(ctx)
	gt.V(t, v.Gathering.Transcript[1].Content).Equal(conversation.DefaultRationale)
}

func TestAnswerAllFollowUpsSoftCap(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{
		assessFunc: needMore("How old are you?", "What is your budget?", "Do you commute?"),
	}
	repo := repository.NewMemory()
	c := newController(gw, repo)

	gt.NoError(t, c.SubmitQuestion(ctx, "Should I buy a car?"))

	gt.NoError(t, c.AnswerFollowUp(ctx, "30"))
	v := c.View(ctx)
	gt.V(t, v.Mode).Equal(conversation.ModeGathering)
	gt.V(t, v.Gathering.Index).Equal(1)
	gt.A(t, v.Gathering.Transcript).Length(5)
	gt.V(t, v.Gathering.Transcript[3]).Equal(model.UserMessage("30"))
	gt.V(t, v.Gathering.Transcript[4]).Equal(model.AssistantMessage("What is your budget?"))

	gt.NoError(t, c.AnswerFollowUp(ctx, "10k"))
	v = c.View(ctx)
	gt.V(t, v.Gathering.Index).Equal(2)
	gt.A(t, v.Gathering.Transcript).Length(7)

	// second assessment still wants more, but three answers pass the soft cap
	gt.NoError(t, c.AnswerFollowUp(ctx, "Yes, daily"))
	v = c.View(ctx)
	gt.V(t, v.Mode).Equal(conversation.ModeMulti)
	gt.A(t, v.Perspectives).Length(3)
	gt.True(t, v.Gathering == nil)

	assess, advice, _ := gw.counts()
	gt.V(t, assess).Equal(2)
	gt.V(t, advice).Equal(1)
	gt.V(t, gw.assessCalls[1].Len()).Equal(3)

	uc := gw.adviceCalls[0]
	gt.V(t, uc.Len()).Equal(3)
	answer, ok := uc.Get("What is your budget?")
	gt.True(t, ok)
	gt.V(t, answer).Equal("10k")

	records, err := repo.ListRecordsByUser(ctx, testUser, 0)
	gt.NoError(t, err)
	gt.A(t, records).Length(1)
	gt.V(t, records[0].Context.Len()).Equal(3)
	gt.V(t, records[0].Context[0].Question).Equal("How old are you?")
}

func TestReassessmentAsksOneMoreQuestion(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{
		assessFunc: sequence(
			needMore("How old are you?"),
			func(ctx context.Context, question string, uc model.UserContext) (*model.InfoAssessment, error) {
				return &model.InfoAssessment{
					FollowUpQuestions: []string{"What is your budget?", "Do you commute?"},
					Reasoning:         "Almost there",
				}, nil
			},
			needMore("Anything else?"),
		),
	}
	c := newController(gw, repository.NewMemory())

	gt.NoError(t, c.SubmitQuestion(ctx, "Should I buy a car?"))
	gt.NoError(t, c.AnswerFollowUp(ctx, "30"))

	v := c.View(ctx)
	gt.V(t, v.Mode).Equal(conversation.ModeGathering)
	gt.V(t, v.Gathering.Index).Equal(0)
	gt.V(t, v.Gathering.Total).Equal(1)
	gt.V(t, v.Gathering.CurrentQuestion).Equal("What is your budget?")
	gt.A(t, v.Gathering.Transcript).Length(6)
	gt.V(t, v.Gathering.Transcript[4]).Equal(model.AssistantMessage("Almost there"))
	gt.V(t, v.Gathering.Transcript[5]).Equal(model.AssistantMessage("What is your budget?"))

	// two answers reach the soft cap
	gt.NoError(t, c.AnswerFollowUp(ctx, "10k"))
	gt.V(t, c.Mode()).Equal(conversation.ModeMulti)

	assess, advice, _ := gw.counts()
	gt.V(t, assess).Equal(3)
	gt.V(t, advice).Equal(1)
}

func TestReassessmentRepeatingAnsweredQuestion(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{assessFunc: needMore("How old are you?")}
	c := newController(gw, repository.NewMemory())

	gt.NoError(t, c.SubmitQuestion(ctx, "q"))
	gt.NoError(t, c.AnswerFollowUp(ctx, "30"))

	gt.V(t, c.Mode()).Equal(conversation.ModeMulti)
	_, advice, _ := gw.counts()
	gt.V(t, advice).Equal(1)
}

func TestReassessmentRewordedAnsweredQuestion(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{
		assessFunc: sequence(
			needMore("How old are you?"),
			needMore("how old  are you? ", "Where do you live?"),
		),
	}
	c := newController(gw, repository.NewMemory(), conversation.WithPolicy(conversation.Policy{SoftCap: 3, HardCap: 5}))

	gt.NoError(t, c.SubmitQuestion(ctx, "q"))
	gt.NoError(t, c.AnswerFollowUp(ctx, "30"))

	v := c.View(ctx)
	gt.V(t, v.Mode).Equal(conversation.ModeGathering)
	gt.V(t, v.Gathering.CurrentQuestion).Equal("Where do you live?")
	gt.V(t, v.Context.Len()).Equal(1)
}

func TestHardCapSkipsAssessment(t *testing.T) {
	ctx := context.Background()
	questions := []string{"Q1", "Q2", "Q3", "Q4", "Q5"}
	gw := &mockGateway{assessFunc: needMore(questions...)}
	c := newController(gw, repository.NewMemory(),
		conversation.WithPolicy(conversation.Policy{HardCap: 5, SoftCap: 5}))

	gt.NoError(t, c.SubmitQuestion(ctx, "q"))
	for i, q := range questions {
		v := c.View(ctx)
		gt.V(t, v.Gathering.Index).Equal(i)
		gt.V(t, v.Gathering.CurrentQuestion).Equal(q)
		gt.NoError(t, c.AnswerFollowUp(ctx, "answer"))
	}

	gt.V(t, c.Mode()).Equal(conversation.ModeMulti)
	assess, advice, _ := gw.counts()
	gt.V(t, assess).Equal(1)
	gt.V(t, advice).Equal(1)
	gt.V(t, gw.adviceCalls[0].Len()).Equal(5)
	for _, uc := range gw.assessCalls {
		gt.True(t, uc.Len() < 5)
	}
}

func TestCustomPolicy(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{assessFunc: needMore("Q1", "Q2", "Q3")}
	c := newController(gw, repository.NewMemory(),
		conversation.WithPolicy(conversation.Policy{HardCap: 2, SoftCap: 1}))
	gt.V(t, c.Policy()).Equal(conversation.Policy{HardCap: 2, SoftCap: 1})

	gt.NoError(t, c.SubmitQuestion(ctx, "q"))
	gt.V(t, c.View(ctx).Gathering.Total).Equal(2)
	gt.NoError(t, c.AnswerFollowUp(ctx, "a1"))
	gt.NoError(t, c.AnswerFollowUp(ctx, "a2"))

	gt.V(t, c.Mode()).Equal(conversation.ModeMulti)
	assess, _, _ := gw.counts()
	gt.V(t, assess).Equal(1)
	gt.V(t, gw.adviceCalls[0].Len()).Equal(2)
}

func TestInvalidPolicyIsIgnored(t *testing.T) {
	c := conversation.New(&mockGateway{}, conversation.WithPolicy(conversation.Policy{HardCap: 2, SoftCap: 3}))
	gt.V(t, c.Policy()).Equal(conversation.DefaultPolicy())
}

func TestAssessmentFailureGeneratesAdvice(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{
		assessFunc: func(ctx context.Context, question string, uc model.UserContext) (*model.InfoAssessment, error) {
			return nil, errors.New("network down")
		},
	}
	c := newController(gw, repository.NewMemory())

	gt.NoError(t, c.SubmitQuestion(ctx, "q"))
	v := c.View(ctx)
	gt.V(t, v.Mode).Equal(conversation.ModeMulti)
	gt.A(t, v.Perspectives).Length(3)
}

func TestSkipGathering(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{assessFunc: needMore("Q1", "Q2", "Q3")}
	repo := repository.NewMemory()
	c := newController(gw, repo)

	gt.NoError(t, c.SubmitQuestion(ctx, "q"))
	gt.NoError(t, c.AnswerFollowUp(ctx, "a1"))
	gt.NoError(t, c.SkipGathering(ctx))

	v := c.View(ctx)
	gt.V(t, v.Mode).Equal(conversation.ModeMulti)
	gt.A(t, v.Perspectives).Length(3)
	gt.V(t, gw.adviceCalls[0].Len()).Equal(1)
	first := v.RecordID

	// second skip changes nothing
	gt.NoError(t, c.SkipGathering(ctx))
	v = c.View(ctx)
	gt.V(t, v.RecordID).Equal(first)

	_, advice, _ := gw.counts()
	gt.V(t, advice).Equal(1)

	records, err := repo.ListRecordsByUser(ctx, testUser, 0)
	gt.NoError(t, err)
	gt.A(t, records).Length(1)
	gt.V(t, records[0].ID).Equal(first)
}

func TestSkipGatheringWithoutAdvice(t *testing.T) {
	c := newController(&mockGateway{}, repository.NewMemory())
	err := c.SkipGathering(context.Background())
	gt.True(t, errors.Is(err, conversation.ErrInvalidMode))
}

func TestRestartGathering(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{assessFunc: needMore("Q1", "Q2", "Q3")}
	c := newController(gw, repository.NewMemory())

	gt.NoError(t, c.SubmitQuestion(ctx, "q"))
	gt.NoError(t, c.AnswerFollowUp(ctx, "a1"))
	gt.NoError(t, c.AnswerFollowUp(ctx, "a2"))
	gt.NoError(t, c.RestartGathering())

	v := c.View(ctx)
	gt.V(t, v.Mode).Equal(conversation.ModeGathering)
	gt.V(t, v.Context.Len()).Equal(0)
	gt.V(t, v.Gathering.Index).Equal(0)
	gt.V(t, v.Gathering.Total).Equal(3)
	gt.A(t, v.Gathering.Transcript).Length(3)
	gt.V(t, v.Gathering.CurrentQuestion).Equal("Q1")

	gt.NoError(t, c.AnswerFollowUp(ctx, "again"))
	v = c.View(ctx)
	answer, ok := v.Context.Get("Q1")
	gt.True(t, ok)
	gt.V(t, answer).Equal("again")
}

func TestRestartGatheringOutsideGathering(t *testing.T) {
	c := newController(&mockGateway{}, repository.NewMemory())
	gt.True(t, errors.Is(c.RestartGathering(), conversation.ErrInvalidMode))
}

func TestAnswerOutsideGathering(t *testing.T) {
	c := newController(&mockGateway{}, repository.NewMemory())
	err := c.AnswerFollowUp(context.Background(), "hi")
	gt.True(t, errors.Is(err, conversation.ErrInvalidMode))
}

func TestEmptyInput(t *testing.T) {
	ctx := context.Background()
	c := newController(&mockGateway{}, repository.NewMemory())

	gt.True(t, errors.Is(c.SubmitQuestion(ctx, "   "), conversation.ErrEmptyInput))
	gt.True(t, errors.Is(c.AnswerFollowUp(ctx, ""), conversation.ErrEmptyInput))
	gt.True(t, errors.Is(c.SendInSingle(ctx, "\n"), conversation.ErrEmptyInput))
	gt.True(t, errors.Is(c.SelectPerspective(ctx, ""), conversation.ErrEmptyInput))
}

func TestGenerationFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	fail := true
	gw := &mockGateway{}
	gw.adviceFunc = func(ctx context.Context, question string, uc model.UserContext) (*model.AdviceResult, error) {
		if fail {
			return nil, errors.New("model unavailable")
		}
		return sampleAdvice(), nil
	}
	repo := repository.NewMemory()
	c := newController(gw, repo)

	err := c.SubmitQuestion(ctx, "q")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrGenerationFailed))

	v := c.View(ctx)
	gt.V(t, v.Mode).Equal(conversation.ModeMulti)
	gt.A(t, v.Perspectives).Length(0)
	gt.False(t, v.Busy)
	gt.S(t, v.Error).Contains("advice generation failed")

	records, err := repo.ListRecordsByUser(ctx, testUser, 0)
	gt.NoError(t, err)
	gt.A(t, records).Length(0)

	fail = false
	gt.NoError(t, c.SubmitQuestion(ctx, "q"))
	v = c.View(ctx)
	gt.A(t, v.Perspectives).Length(3)
	gt.V(t, v.Error).Equal("")
}

func TestGenerationFailureDuringGathering(t *testing.T) {
	ctx := context.Background()
	fail := true
	gw := &mockGateway{assessFunc: needMore("Q1", "Q2", "Q3", "Q4", "Q5")}
	gw.adviceFunc = func(ctx context.Context, question string, uc model.UserContext) (*model.AdviceResult, error) {
		if fail {
			return nil, model.ErrGenerationFailed
		}
		return sampleAdvice(), nil
	}
	c := newController(gw, repository.NewMemory())

	gt.NoError(t, c.SubmitQuestion(ctx, "q"))
	gt.NoError(t, c.AnswerFollowUp(ctx, "a1"))

	err := c.SkipGathering(ctx)
	gt.True(t, errors.Is(err, model.ErrGenerationFailed))

	v := c.View(ctx)
	gt.V(t, v.Mode).Equal(conversation.ModeGathering)
	gt.V(t, v.Gathering.Index).Equal(1)
	gt.V(t, v.Context.Len()).Equal(1)
	gt.V(t, v.Error).NotEqual("")

	fail = false
	gt.NoError(t, c.SkipGathering(ctx))
	gt.V(t, c.Mode()).Equal(conversation.ModeMulti)
}

func TestGenerationFailureKeepsLastAnswer(t *testing.T) {
	ctx := context.Background()
	fail := true
	var adviceContext model.UserContext
	gw := &mockGateway{assessFunc: needMore("Q1")}
	gw.adviceFunc = func(ctx context.Context, question string, uc model.UserContext) (*model.AdviceResult, error) {
		adviceContext = uc.Clone()
		if fail {
			return nil, model.ErrGenerationFailed
		}
		return sampleAdvice(), nil
	}
	c := newController(gw, repository.NewMemory(), conversation.WithPolicy(conversation.Policy{HardCap: 1, SoftCap: 1}))

	gt.NoError(t, c.SubmitQuestion(ctx, "q"))
	err := c.AnswerFollowUp(ctx, "important answer")
	gt.True(t, errors.Is(err, model.ErrGenerationFailed))

	v := c.View(ctx)
	gt.V(t, v.Mode).Equal(conversation.ModeGathering)
	gt.V(t, v.Busy).Equal(false)
	gt.V(t, v.Error).NotEqual("")
	answer, ok := v.Context.Get("Q1")
	gt.True(t, ok)
	gt.V(t, answer).Equal("important answer")
	last := v.Gathering.Transcript[len(v.Gathering.Transcript)-1]
	gt.V(t, last).Equal(model.UserMessage("important answer"))

	t.Run("skip retries with the kept answer", func(t *testing.T) {
		fail = false
		gt.NoError(t, c.SkipGathering(ctx))
		gt.V(t, c.Mode()).Equal(conversation.ModeMulti)
		gt.V(t, adviceContext.Len()).Equal(1)
		answer, ok := adviceContext.Get("Q1")
		gt.True(t, ok)
		gt.V(t, answer).Equal("important answer")
		gt.V(t, c.View(ctx).Error).Equal("")
	})
}

func TestGenerationFailureReanswerReplacesAnswer(t *testing.T) {
	ctx := context.Background()
	fail := true
	var adviceContext model.UserContext
	gw := &mockGateway{assessFunc: needMore("Q1")}
	gw.adviceFunc = func(ctx context.Context, question string, uc model.UserContext) (*model.AdviceResult, error) {
		adviceContext = uc.Clone()
		if fail {
			return nil, model.ErrGenerationFailed
		}
		return sampleAdvice(), nil
	}
	c := newController(gw, repository.NewMemory(), conversation.WithPolicy(conversation.Policy{HardCap: 1, SoftCap: 1}))

	gt.NoError(t, c.SubmitQuestion(ctx, "q"))
	gt.True(t, errors.Is(c.AnswerFollowUp(ctx, "first try"), model.ErrGenerationFailed))

	fail = false
	gt.NoError(t, c.AnswerFollowUp(ctx, "second try"))
	gt.V(t, c.Mode()).Equal(conversation.ModeMulti)
	gt.V(t, adviceContext.Len()).Equal(1)
	answer, _ := adviceContext.Get("Q1")
	gt.V(t, answer).Equal("second try")
}

func TestSubmitQuestionWhileAdviceExists(t *testing.T) {
	ctx := context.Background()
	c := newController(&mockGateway{}, repository.NewMemory())

	gt.NoError(t, c.SubmitQuestion(ctx, "first"))
	err := c.SubmitQuestion(ctx, "second")
	gt.True(t, errors.Is(err, conversation.ErrAdviceExists))

	gt.NoError(t, c.Reset())
	v := c.View(ctx)
	gt.V(t, v.Mode).Equal(conversation.ModeMulti)
	gt.V(t, v.Question).Equal("")
	gt.A(t, v.Perspectives).Length(0)
	gt.V(t, v.RecordID).Equal(model.RecordID(""))

	gt.NoError(t, c.SubmitQuestion(ctx, "second"))
	gt.V(t, c.View(ctx).Question).Equal("second")
}

func TestSelectPerspective(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	c := newController(&mockGateway{}, repo)

	gt.NoError(t, c.SubmitQuestion(ctx, "Should I buy a car?"))
	recordID := c.View(ctx).RecordID

	err := c.SelectPerspective(ctx, "Stranger")
	gt.True(t, errors.Is(err, conversation.ErrUnknownPerspective))

	gt.NoError(t, c.SelectPerspective(ctx, "Parent"))
	v := c.View(ctx)
	gt.V(t, v.Mode).Equal(conversation.ModeSingle)
	gt.V(t, v.Selected).Equal("Parent")
	gt.A(t, v.Conversation).Length(2)
	gt.V(t, v.Conversation[0]).Equal(model.UserMessage("Should I buy a car?"))
	gt.V(t, v.Conversation[1]).Equal(model.AssistantMessage("Think it over."))
	gt.V(t, v.RecordID).Equal(recordID)

	rec, err := repo.GetRecord(ctx, recordID)
	gt.NoError(t, err)
	gt.V(t, rec.Selected()).Equal("Parent")
	gt.A(t, rec.Conversation).Length(2)
}

func TestSelectPerspectiveWithoutAdvice(t *testing.T) {
	c := newController(&mockGateway{}, repository.NewMemory())
	err := c.SelectPerspective(context.Background(), "Parent")
	gt.True(t, errors.Is(err, conversation.ErrInvalidMode))
}

func TestSelectPerspectiveCreatesMissingRecord(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{assessFunc: needMore("Q1")}
	repo := &flakyRepo{Repository: repository.NewMemory(), failCreates: 1}
	c := newController(gw, repo)

	gt.NoError(t, c.SubmitQuestion(ctx, "Should I buy a car?"))
	gt.NoError(t, c.AnswerFollowUp(ctx, "yes"))
	v := c.View(ctx)
	gt.V(t, v.Mode).Equal(conversation.ModeMulti)
	gt.False(t, v.Saved)
	gt.V(t, v.RecordID).Equal(model.RecordID(""))

	gt.NoError(t, c.SelectPerspective(ctx, "Close Friend"))
	v = c.View(ctx)
	gt.True(t, v.Saved)
	gt.V(t, v.RecordID).NotEqual(model.RecordID(""))

	rec, err := repo.GetRecord(ctx, v.RecordID)
	gt.NoError(t, err)
	gt.V(t, rec.Selected()).Equal("Close Friend")
	gt.A(t, rec.Conversation).Length(2)
	gt.A(t, rec.Perspectives).Length(3)
	answer, ok := rec.Context.Get("Q1")
	gt.True(t, ok)
	gt.V(t, answer).Equal("yes")
}

func TestSendInSingle(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	repo := repository.NewMemory()
	c := newController(gw, repo)

	gt.NoError(t, c.SubmitQuestion(ctx, "Should I buy a car?"))
	gt.NoError(t, c.SelectPerspective(ctx, "Close Friend"))
	gt.NoError(t, c.SendInSingle(ctx, "What about insurance?"))

	v := c.View(ctx)
	gt.V(t, v.Mode).Equal(conversation.ModeSingle)
	gt.A(t, v.Conversation).Length(4)
	gt.V(t, v.Conversation[2]).Equal(model.UserMessage("What about insurance?"))
	gt.V(t, v.Conversation[3]).Equal(model.AssistantMessage("Reply from Close Friend"))

	// the gateway receives the transcript before the new message
	gt.A(t, gw.continueCalls[0]).Length(2)

	rec, err := repo.GetRecord(ctx, v.RecordID)
	gt.NoError(t, err)
	gt.A(t, rec.Conversation).Length(4)
}

func TestSendInSingleContinuationFailure(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{
		continueFunc: func(ctx context.Context, perspective string, history []model.Message, newMessage string) (string, error) {
			return "", errors.New("connection reset")
		},
	}
	c := newController(gw, repository.NewMemory())

	gt.NoError(t, c.SubmitQuestion(ctx, "q"))
	gt.NoError(t, c.SelectPerspective(ctx, "Parent"))
	gt.NoError(t, c.SendInSingle(ctx, "hello"))

	v := c.View(ctx)
	gt.V(t, v.Mode).Equal(conversation.ModeSingle)
	gt.A(t, v.Conversation).Length(4)
	gt.V(t, v.Conversation[3].Content).Equal(model.ContinuationPlaceholder)
}

func TestSendInSingleOutsideSingle(t *testing.T) {
	c := newController(&mockGateway{}, repository.NewMemory())
	err := c.SendInSingle(context.Background(), "hi")
	gt.True(t, errors.Is(err, conversation.ErrInvalidMode))
}

func TestGoBack(t *testing.T) {
	ctx := context.Background()
	c := newController(&mockGateway{}, repository.NewMemory())

	gt.True(t, errors.Is(c.GoBack(), conversation.ErrInvalidMode))

	gt.NoError(t, c.SubmitQuestion(ctx, "q"))
	gt.NoError(t, c.SelectPerspective(ctx, "Parent"))
	gt.NoError(t, c.GoBack())

	v := c.View(ctx)
	gt.V(t, v.Mode).Equal(conversation.ModeMulti)
	gt.V(t, v.Selected).Equal("")
	gt.A(t, v.Conversation).Length(0)
	gt.A(t, v.Perspectives).Length(3)

	gt.NoError(t, c.SelectPerspective(ctx, "Close Friend"))
	gt.A(t, c.View(ctx).Conversation).Length(2)
}

func TestPersistenceFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	repo := &flakyRepo{Repository: repository.NewMemory(), failCreates: -1, failUpdates: true}
	c := newController(&mockGateway{}, repo)

	gt.NoError(t, c.SubmitQuestion(ctx, "q"))
	v := c.View(ctx)
	gt.A(t, v.Perspectives).Length(3)
	gt.False(t, v.Saved)

	gt.NoError(t, c.SelectPerspective(ctx, "Parent"))
	gt.NoError(t, c.SendInSingle(ctx, "hi"))
	v = c.View(ctx)
	gt.A(t, v.Conversation).Length(4)
	gt.False(t, v.Saved)
}

func TestWithoutRepository(t *testing.T) {
	ctx := context.Background()
	c := conversation.New(&mockGateway{})

	gt.NoError(t, c.SubmitQuestion(ctx, "q"))
	gt.NoError(t, c.SelectPerspective(ctx, "Parent"))
	gt.NoError(t, c.SendInSingle(ctx, "hi"))
	gt.False(t, c.View(ctx).Saved)
}

func TestRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	c := newController(&mockGateway{}, repo)

	gt.NoError(t, c.SubmitQuestion(ctx, "Should I buy a car?"))

	records, err := repo.ListRecordsByUser(ctx, testUser, 0)
	gt.NoError(t, err)
	gt.A(t, records).Length(1)
	id := records[0].ID

	gt.NoError(t, c.SelectPerspective(ctx, "Financial Planner"))
	gt.NoError(t, c.SendInSingle(ctx, "How much should I spend?"))

	rec, err := repo.GetRecord(ctx, id)
	gt.NoError(t, err)
	gt.V(t, rec.Question).Equal("Should I buy a car?")
	gt.V(t, rec.Selected()).Equal("Financial Planner")
	gt.A(t, rec.Conversation).Length(4)
	gt.V(t, rec.Conversation[2].Content).Equal("How much should I spend?")
	gt.V(t, rec.Conversation[3].Content).Equal("Reply from Financial Planner")
}

func TestResume(t *testing.T) {
	ctx := context.Background()
	name := "Parent"
	rec := &model.ConversationRecord{
		ID:                  model.NewRecordID(),
		UserID:              testUser,
		Question:            "Should I move?",
		SelectedPerspective: &name,
		Perspectives:        sampleAdvice().Perspectives,
		Conversation: []model.Message{
			model.UserMessage("Should I move?"),
			model.AssistantMessage("Think it over."),
			model.UserMessage("Why?"),
			model.AssistantMessage("Because."),
		},
		Context: model.UserContext{}.Set("Where?", "Berlin"),
	}

	c := newController(&mockGateway{}, repository.NewMemory())
	gt.NoError(t, c.Resume(rec))

	v := c.View(ctx)
	gt.V(t, v.Mode).Equal(conversation.ModeSingle)
	gt.V(t, v.Selected).Equal("Parent")
	gt.A(t, v.Conversation).Length(4)
	gt.A(t, v.Perspectives).Length(3)
	gt.V(t, v.RecordID).Equal(rec.ID)
	gt.True(t, v.Saved)

	gt.NoError(t, c.GoBack())
	gt.V(t, c.Mode()).Equal(conversation.ModeMulti)

	rec.SelectedPerspective = nil
	gt.NoError(t, c.Resume(rec))
	gt.V(t, c.Mode()).Equal(conversation.ModeMulti)
	gt.A(t, c.View(ctx).Perspectives).Length(3)
}

func TestResumeRejectsInvalidRecord(t *testing.T) {
	name := "Stranger"
	rec := &model.ConversationRecord{
		UserID:              testUser,
		Question:            "q",
		SelectedPerspective: &name,
		Perspectives:        sampleAdvice().Perspectives,
	}
	c := newController(&mockGateway{}, repository.NewMemory())
	gt.True(t, errors.Is(c.Resume(rec), model.ErrUnknownSelectedPerspective))
	gt.Error(t, c.Resume(nil))
}

func TestBusyRejectsConcurrentIntents(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	gw := &mockGateway{
		assessFunc: func(ctx context.Context, question string, uc model.UserContext) (*model.InfoAssessment, error) {
			close(started)
			<-release
			return model.EnoughInfo("ok"), nil
		},
	}
	c := newController(gw, repository.NewMemory())

	done := make(chan error, 1)
	go func() {
		done <- c.SubmitQuestion(ctx, "q")
	}()
	<-started

	gt.True(t, c.Busy())
	gt.True(t, c.View(ctx).Busy)
	gt.True(t, errors.Is(c.SubmitQuestion(ctx, "again"), conversation.ErrBusy))
	gt.True(t, errors.Is(c.SkipGathering(ctx), conversation.ErrBusy))
	gt.True(t, errors.Is(c.SelectPerspective(ctx, "Parent"), conversation.ErrBusy))
	gt.True(t, errors.Is(c.Reset(), conversation.ErrBusy))
	gt.True(t, errors.Is(c.GoBack(), conversation.ErrBusy))

	close(release)
	gt.NoError(t, <-done)
	gt.False(t, c.Busy())
	gt.A(t, c.View(ctx).Perspectives).Length(3)
}

type staticDecorator map[string]model.Trait

func (d staticDecorator) Trait(ctx context.Context, name string) model.Trait {
	if t, ok := d[name]; ok {
		return t
	}
	return model.DefaultTrait
}

func TestViewDecoratesPerspectives(t *testing.T) {
	ctx := context.Background()
	c := newController(&mockGateway{}, repository.NewMemory(), conversation.WithDecorator(staticDecorator{
		"Parent": {Color: "amber", Trait: "Protective"},
	}))

	gt.NoError(t, c.SubmitQuestion(ctx, "q"))
	v := c.View(ctx)
	gt.V(t, v.Perspectives[2].Color).Equal("amber")
	gt.V(t, v.Perspectives[2].Trait).Equal("Protective")
	gt.V(t, v.Perspectives[0].Color).Equal(model.DefaultTrait.Color)
}
