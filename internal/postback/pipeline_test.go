package postback

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"scormrelay/internal/alerts"
	"scormrelay/internal/external"
	"scormrelay/internal/mapping"
	"scormrelay/internal/types"
)

type fakeMappings struct {
	m     mapping.Mapping
	err   error
	calls int
}

func (f *fakeMappings) Load(_ context.Context, force bool) (mapping.Mapping, error) {
	f.calls++
	if force {
		panic("pipeline must not force a reload")
	}
	return f.m, f.err
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, recipient, uri string) (external.Acknowledgement, error) {
	args := m.Called(ctx, recipient, uri)
	return args.Get(0).(external.Acknowledgement), args.Error(1)
}

type alertRecorder struct {
	mu    sync.Mutex
	texts []string
}

func (r *alertRecorder) sink() alerts.Sink {
	return alerts.Func(func(_ context.Context, text string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.texts = append(r.texts, text)
	})
}

type recordedOutcome struct {
	kind     string
	duration time.Duration
}

type outcomeRecorder struct {
	got []recordedOutcome
}

func (r *outcomeRecorder) RecordOutcome(_ context.Context, kind string, d time.Duration) {
	r.got = append(r.got, recordedOutcome{kind: kind, duration: d})
}

type testEnv struct {
	mappings *fakeMappings
	notifier *mockNotifier
	alerts   *alertRecorder
	recorder *outcomeRecorder
	pipeline *Pipeline
}

func newTestEnv() *testEnv {
	env := &testEnv{
		mappings: &fakeMappings{m: mapping.Mapping{"CRS-1": "https://hooks.example/a"}},
		notifier: &mockNotifier{},
		alerts:   &alertRecorder{},
		recorder: &outcomeRecorder{},
	}
	env.pipeline = NewPipeline(Config{
		Mappings: env.mappings,
		Notifier: env.notifier,
		Alerts:   env.alerts.sink(),
		Recorder: env.recorder,
	})
	return env
}

func event(courseID, completion string) types.CompletionEvent {
	return types.CompletionEvent{
		ID:      "reg-1",
		Course:  types.CourseRef{ID: courseID, Title: "Course"},
		Learner: types.LearnerRef{ID: "a@x.com", FirstName: "Ana", LastName: "Silva"},
		ActivityDetails: types.ActivityDetails{
			ID:                 "act-1",
			ActivityCompletion: completion,
		},
	}
}

func TestProcess_DeliversMappedCompletion(t *testing.T) {
	env := newTestEnv()
	ack := external.Acknowledgement{Status: 200, ID: "42", Body: map[string]any{"id": "42"}}
	env.notifier.On("Notify", mock.Anything, "a@x.com", "https://hooks.example/a").Return(ack, nil).Once()

	out := env.pipeline.Process(context.Background(), event("CRS-1", "COMPLETED"))

	delivered, ok := out.(Delivered)
	require.True(t, ok, "got %T", out)
	assert.Equal(t, "CRS-1", delivered.CourseID)
	assert.Equal(t, "https://hooks.example/a", delivered.URI)
	assert.Equal(t, ack, delivered.Ack)

	require.Len(t, env.alerts.texts, 1)
	assert.Contains(t, env.alerts.texts[0], "CRS-1")
	assert.Contains(t, env.alerts.texts[0], "https://hooks.example/a")
	assert.Contains(t, env.alerts.texts[0], "SUCCESS")
	env.notifier.AssertExpectations(t)

	require.Len(t, env.recorder.got, 1)
	assert.Equal(t, "delivered", env.recorder.got[0].kind)
}

func TestProcess_UnmappedCourseIsMappingMissing(t *testing.T) {
	env := newTestEnv()

	out := env.pipeline.Process(context.Background(), event("CRS-9", "Completed"))

	assert.Equal(t, MappingMissing{CourseID: "CRS-9"}, out)
	require.Len(t, env.alerts.texts, 1)
	assert.Contains(t, env.alerts.texts[0], "CRS-9")
	assert.Contains(t, env.alerts.texts[0], "WARNING")
	env.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_EmptyURIIsMissing(t *testing.T) {
	env := newTestEnv()
	env.mappings.m = mapping.Mapping{"CRS-1": ""}

	out := env.pipeline.Process(context.Background(), event("CRS-1", "completed"))

	assert.Equal(t, KindMappingMissing, out.Kind())
	env.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_SkipsIncompleteStatuses(t *testing.T) {
	for _, status := range []string{"INCOMPLETE", "Unknown", "", "  ", "completed-partially", "not completed", " completed "} {
		t.Run(status, func(t *testing.T) {
			env := newTestEnv()

			out := env.pipeline.Process(context.Background(), event("CRS-1", status))

			assert.Equal(t, Skipped{Completion: status}, out)
			assert.Empty(t, env.alerts.texts)
			assert.Zero(t, env.mappings.calls, "skipped events must not touch the cache")
			env.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)

			require.Len(t, env.recorder.got, 1)
			assert.Equal(t, "skipped", env.recorder.got[0].kind)
		})
	}
}

func TestProcess_CompletedAnyCase(t *testing.T) {
	for _, status := range []string{"completed", "COMPLETED", "Completed", "cOmPlEtEd"} {
		t.Run(status, func(t *testing.T) {
			env := newTestEnv()
			env.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).
				Return(external.Acknowledgement{Status: 200, ID: "1"}, nil)

			out := env.pipeline.Process(context.Background(), event("CRS-1", status))
			assert.Equal(t, KindDelivered, out.Kind())
			assert.Equal(t, 1, env.mappings.calls)
		})
	}
}

func TestProcess_NetworkFailureIsDeliveryRejected(t *testing.T) {
	env := newTestEnv()
	timeout := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("i/o timeout")}
	env.notifier.On("Notify", mock.Anything, "a@x.com", "https://hooks.example/a").
		Return(external.Acknowledgement{}, &external.NetworkError{URL: "https://hooks.example/a", Err: timeout})

	out := env.pipeline.Process(context.Background(), event("CRS-1", "completed"))

	rejected, ok := out.(DeliveryRejected)
	require.True(t, ok, "network failures must not become ProcessingFailed, got %T", out)
	assert.True(t, rejected.Network)
	assert.Equal(t, NetworkErrorStatus, rejected.Status)
	assert.Equal(t, "https://hooks.example/a", rejected.URI)
	assert.True(t, strings.HasPrefix(rejected.Detail, "network error: "))
	assert.Contains(t, rejected.Detail, "i/o timeout")

	require.Len(t, env.alerts.texts, 1)
	assert.Contains(t, env.alerts.texts[0], "CRS-1")
}

func TestProcess_AlertSurvivesCallerCancellation(t *testing.T) {
	env := newTestEnv()
	var alertCtxErr error
	sent := 0
	env.pipeline.alerts = alerts.Func(func(ctx context.Context, _ string) {
		sent++
		alertCtxErr = ctx.Err()
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
	})

	ctx, cancel := context.WithCancel(context.Background())
	env.notifier.On("Notify", mock.Anything, "a@x.com", "https://hooks.example/a").
		Run(func(mock.Arguments) { cancel() }).
		Return(external.Acknowledgement{}, &external.NetworkError{URL: "https://hooks.example/a", Err: context.Canceled})

	out := env.pipeline.Process(ctx, event("CRS-1", "completed"))

	_, ok := out.(DeliveryRejected)
	require.True(t, ok, "got %T", out)
	require.Error(t, ctx.Err())
	assert.Equal(t, 1, sent)
	assert.NoError(t, alertCtxErr)
}

func TestProcess_DownstreamRejection(t *testing.T) {
	env := newTestEnv()
	env.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).
		Return(external.Acknowledgement{}, &external.RejectionError{Status: 422, Detail: `{"error":"unknown user"}`})

	out := env.pipeline.Process(context.Background(), event("CRS-1", "completed"))

	assert.Equal(t, DeliveryRejected{
		CourseID: "CRS-1",
		URI:      "https://hooks.example/a",
		Status:   422,
		Detail:   `{"error":"unknown user"}`,
	}, out)
	require.Len(t, env.alerts.texts, 1)
	assert.Contains(t, env.alerts.texts[0], "422")
	assert.Contains(t, env.alerts.texts[0], "unknown user")
	assert.Contains(t, env.alerts.texts[0], "https://hooks.example/a")
}

func TestProcess_UnexpectedNotifierError(t *testing.T) {
	env := newTestEnv()
	cause := errors.New("encode webhook payload: boom")
	env.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).
		Return(external.Acknowledgement{}, cause)

	out := env.pipeline.Process(context.Background(), event("CRS-1", "completed"))

	failed, ok := out.(ProcessingFailed)
	require.True(t, ok, "got %T", out)
	assert.ErrorIs(t, failed, cause)
	assert.Equal(t, "CRS-1", failed.CourseID)

	require.Len(t, env.alerts.texts, 1)
	assert.Contains(t, env.alerts.texts[0], "CRITICAL")
	assert.Contains(t, env.alerts.texts[0], "Traceback")
}

func TestProcess_MappingLoadError(t *testing.T) {
	env := newTestEnv()
	env.mappings.err = &mapping.StoreAccessError{Op: "read", Key: "k", Err: errors.New("denied")}

	out := env.pipeline.Process(context.Background(), event("CRS-1", "completed"))

	failed, ok := out.(ProcessingFailed)
	require.True(t, ok, "got %T", out)
	var storeErr *mapping.StoreAccessError
	assert.ErrorAs(t, failed.Cause, &storeErr)
	assert.Len(t, env.alerts.texts, 1)
	env.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_NotifierPanicBecomesProcessingFailed(t *testing.T) {
	env := newTestEnv()
	env.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("nil pointer somewhere") }).
		Return(external.Acknowledgement{}, nil)

	var out Outcome
	require.NotPanics(t, func() {
		out = env.pipeline.Process(context.Background(), event("CRS-1", "completed"))
	})

	failed, ok := out.(ProcessingFailed)
	require.True(t, ok, "got %T", out)
	assert.Contains(t, failed.Cause.Error(), "nil pointer somewhere")
	assert.Len(t, env.alerts.texts, 1)
	require.Len(t, env.recorder.got, 1)
	assert.Equal(t, "processing_failed", env.recorder.got[0].kind)
}

func TestProcess_AlertSinkPanicIsContained(t *testing.T) {
	env := newTestEnv()
	env.pipeline.alerts = alerts.Func(func(context.Context, string) { panic("slack exploded") })

	var out Outcome
	require.NotPanics(t, func() {
		out = env.pipeline.Process(context.Background(), event("CRS-9", "completed"))
	})
	assert.Equal(t, MappingMissing{CourseID: "CRS-9"}, out)
}

func TestProcess_ExactlyOneAlertPerEvaluatedEvent(t *testing.T) {
	cases := map[string]func(env *testEnv) types.CompletionEvent{
		"delivered": func(env *testEnv) types.CompletionEvent {
			env.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).
				Return(external.Acknowledgement{Status: 201, ID: "9"}, nil)
			return event("CRS-1", "completed")
		},
		"missing": func(env *testEnv) types.CompletionEvent {
			return event("CRS-2", "completed")
		},
		"rejected": func(env *testEnv) types.CompletionEvent {
			env.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).
				Return(external.Acknowledgement{}, &external.RejectionError{Status: 500, Detail: "x"})
			return event("CRS-1", "completed")
		},
		"failed": func(env *testEnv) types.CompletionEvent {
			env.mappings.err = errors.New("boom")
			return event("CRS-1", "completed")
		},
	}

	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv()
			ev := setup(env)
			env.pipeline.Process(context.Background(), ev)
			assert.Len(t, env.alerts.texts, 1)
		})
	}
}

func TestProcess_StackIsCapped(t *testing.T) {
	env := newTestEnv()
	long := make([]byte, maxStackBytes*2)
	for i := range long {
		long[i] = 'x'
	}
	env.pipeline.fail(context.Background(), "CRS-1", "msg", errors.New("cause"), long)

	require.Len(t, env.alerts.texts, 1)
	assert.Less(t, len(env.alerts.texts[0]), maxStackBytes+500)
}

func TestOutcomeKinds(t *testing.T) {
	assert.Equal(t, KindSkipped, Skipped{}.Kind())
	assert.Equal(t, KindDelivered, Delivered{}.Kind())
	assert.Equal(t, KindMappingMissing, MappingMissing{}.Kind())
	assert.Equal(t, KindDeliveryRejected, DeliveryRejected{}.Kind())
	assert.Equal(t, KindProcessingFailed, ProcessingFailed{}.Kind())
}
