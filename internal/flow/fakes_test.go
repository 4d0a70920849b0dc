package flow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BTreeMap/SalesCoach/internal/models"
	"github.com/BTreeMap/SalesCoach/internal/rpc"
)

// fakeAPI is a scripted backend recording every call in order.
type fakeAPI struct {
	mu sync.Mutex

	calls []string

	simulationErr   error
	conversationErr error
	conversation    *models.Conversation

	statuses  []models.ConversationStatus
	statusErr error
	endErr    error

	generateErr error
	feedback    []*models.Feedback
	feedbackErr error

	checkouts   []models.CheckoutStatus
	checkoutErr error
}

func (f *fakeAPI) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeAPI) callNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) CreateSimulation(ctx context.Context, cfg models.SimulationConfig) (*models.Simulation, error) {
	f.record(rpc.ProcCreateSimulation)
	if f.simulationErr != nil {
		return nil, f.simulationErr
	}
	return &models.Simulation{ID: 7, Config: cfg}, nil
}

func (f *fakeAPI) CreateConversation(ctx context.Context, simulationID int64) (*models.Conversation, error) {
	f.record(rpc.ProcCreateConversation)
	if f.conversationErr != nil {
		return nil, f.conversationErr
	}
	if f.conversation != nil {
		conv := *f.conversation
		conv.SimulationID = simulationID
		return &conv, nil
	}
	return &models.Conversation{ID: 42, ConversationURL: "https://provider.example/session/42", Status: models.ConversationCreated, SimulationID: simulationID}, nil
}

// GetConversation serves statuses in order and repeats the last one.
func (f *fakeAPI) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	f.record(rpc.ProcGetConversation)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	status := models.ConversationActive
	if len(f.statuses) > 0 {
		status = f.statuses[0]
		if len(f.statuses) > 1 {
			f.statuses = f.statuses[1:]
		}
	}
	return &models.Conversation{ID: id, Status: status}, nil
}

func (f *fakeAPI) EndConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	f.record(rpc.ProcEndConversation)
	if f.endErr != nil {
		return nil, f.endErr
	}
	return &models.Conversation{ID: id, Status: models.ConversationEnded}, nil
}

func (f *fakeAPI) GenerateFeedback(ctx context.Context, id int64) (*models.GenerateFeedbackResult, error) {
	f.record(rpc.ProcGenerateFeedback)
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return &models.GenerateFeedbackResult{Status: "started"}, nil
}

// GetFeedback serves feedback in order; nil entries mean "not ready". The last entry repeats.
func (f *fakeAPI) GetFeedback(ctx context.Context, id int64) (*models.Feedback, error) {
	f.record(rpc.ProcGetFeedback)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.feedbackErr != nil {
		return nil, f.feedbackErr
	}
	var fb *models.Feedback
	if len(f.feedback) > 0 {
		fb = f.feedback[0]
		if len(f.feedback) > 1 {
			f.feedback = f.feedback[1:]
		}
	}
	if fb.IsEmpty() {
		return nil, rpc.ErrFeedbackNotReady
	}
	return fb, nil
}

func (f *fakeAPI) CheckoutStatus(ctx context.Context, sessionID string) (*models.CheckoutStatus, error) {
	f.record("checkout.status")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	st := models.CheckoutStatus{Status: "open", PaymentStatus: "unpaid"}
	if len(f.checkouts) > 0 {
		st = f.checkouts[0]
		if len(f.checkouts) > 1 {
			f.checkouts = f.checkouts[1:]
		}
	}
	return &st, nil
}

// hookedAPI runs a hook while a request is in flight, before the scripted answer is read.
type hookedAPI struct {
	fakeAPI
	onGet      func()
	onGenerate func()
	onFeedback func()
}

func (h *hookedAPI) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	if h.onGet != nil {
		h.onGet()
	}
	return h.fakeAPI.GetConversation(ctx, id)
}

func (h *hookedAPI) GenerateFeedback(ctx context.Context, id int64) (*models.GenerateFeedbackResult, error) {
	if h.onGenerate != nil {
		h.onGenerate()
	}
	return h.fakeAPI.GenerateFeedback(ctx, id)
}

func (h *hookedAPI) GetFeedback(ctx context.Context, id int64) (*models.Feedback, error) {
	if h.onFeedback != nil {
		h.onFeedback()
	}
	return h.fakeAPI.GetFeedback(ctx, id)
}

// limitedTimer refuses to schedule after its first allowed callbacks.
type limitedTimer struct {
	Timer
	mu      sync.Mutex
	allowed int
}

func (l *limitedTimer) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	l.mu.Lock()
	if l.allowed == 0 {
		l.mu.Unlock()
		return "", errTimerFull
	}
	l.allowed--
	l.mu.Unlock()
	return l.Timer.ScheduleAfter(delay, fn)
}

var (
	errBoom      = errors.New("boom")
	errTimerFull = errors.New("timer refused the callback")
)

func populatedFeedback() *models.Feedback {
	return &models.Feedback{ID: 1, ConversationID: 42, OverallScore: 7.5, ScoresByCategory: map[string]float64{"rapport": 8}}
}

func emptyFeedback(n int) []*models.Feedback {
	return make([]*models.Feedback, n)
}

// recordingObserver keeps every snapshot and notification.
type recordingObserver struct {
	mu        sync.Mutex
	snapshots []Snapshot
	notes     []string
}

func (o *recordingObserver) OnSnapshot(s Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snapshots = append(o.snapshots, s)
}

func (o *recordingObserver) OnNotify(level NotifyLevel, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notes = append(o.notes, string(level)+": "+message)
}

func (o *recordingObserver) notifications() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.notes...)
}

// recordingOpener records how sessions were presented.
type recordingOpener struct {
	mu       sync.Mutex
	external []string
	demos    int
	err      error
}

func (o *recordingOpener) OpenExternal(joinURL string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.external = append(o.external, joinURL)
	return o.err
}

func (o *recordingOpener) ShowDemo(conv *models.Conversation) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.demos++
	return nil
}
