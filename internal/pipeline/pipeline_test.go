package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/crmchat/crmchat/internal/descriptor"
	"github.com/crmchat/crmchat/internal/salesforce"
	"github.com/crmchat/crmchat/internal/translate"
)

type fakeTranslator struct {
	desc descriptor.Descriptor
	err  error

	gotUtterance string
}

func (f *fakeTranslator) Translate(ctx context.Context, utterance string) (descriptor.Descriptor, error) {
	f.gotUtterance = utterance
	if f.err != nil {
		return descriptor.Descriptor{}, f.err
	}
	return f.desc, nil
}

type fakeExecutor struct {
	data any
	err  error

	gotDescriptor descriptor.Descriptor
	calls         int
}

func (f *fakeExecutor) Execute(ctx context.Context, desc descriptor.Descriptor) (any, error) {
	f.calls++
	f.gotDescriptor = desc
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func newTestService(t *testing.T, tr translate.Translator, ex Executor) *Service {
	t.Helper()
	svc, err := NewService(tr, ex, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestRunExecutesTranslatedOperation(t *testing.T) {
	tr := &fakeTranslator{desc: descriptor.Descriptor{
		Operation:  descriptor.OperationRead,
		ObjectType: "Account",
		Fields:     []string{"Name"},
	}}
	ex := &fakeExecutor{data: salesforce.QueryResult{TotalSize: 1, Done: true, Records: []map[string]any{{"Name": "Acme"}}}}
	svc := newTestService(t, tr, ex)

	outcome, err := svc.Run(context.Background(), "show me accounts")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tr.gotUtterance != "show me accounts" {
		t.Fatalf("unexpected utterance %q", tr.gotUtterance)
	}
	if ex.gotDescriptor.ObjectType != "Account" {
		t.Fatalf("unexpected descriptor: %+v", ex.gotDescriptor)
	}
	if outcome.Operation != descriptor.OperationRead || !outcome.Success {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if outcome.Message != "Successfully executed read operation" {
		t.Fatalf("unexpected message %q", outcome.Message)
	}
}

func TestRunPropagatesModelUnavailability(t *testing.T) {
	tr := &fakeTranslator{err: translate.ErrModelUnavailable}
	ex := &fakeExecutor{}
	svc := newTestService(t, tr, ex)

	_, err := svc.Run(context.Background(), "show me accounts")
	if !errors.Is(err, translate.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	if ex.calls != 0 {
		t.Fatal("executor must not run when translation fails")
	}
}

func TestRunPropagatesUnparseableOutput(t *testing.T) {
	tr := &fakeTranslator{err: &translate.ModelOutputError{Raw: "gibberish"}}
	svc := newTestService(t, tr, &fakeExecutor{})

	_, err := svc.Run(context.Background(), "show me accounts")
	var outErr *translate.ModelOutputError
	if !errors.As(err, &outErr) {
		t.Fatalf("expected ModelOutputError, got %v", err)
	}
}

func TestRunPropagatesUpstreamFailure(t *testing.T) {
	tr := &fakeTranslator{desc: descriptor.Descriptor{
		Operation:  descriptor.OperationRead,
		ObjectType: "Account",
	}}
	upstream := &salesforce.UpstreamError{Operation: "read", StatusCode: 400, Message: "bad query"}
	svc := newTestService(t, tr, &fakeExecutor{err: upstream})

	_, err := svc.Run(context.Background(), "show me accounts")
	var got *salesforce.UpstreamError
	if !errors.As(err, &got) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
}

func TestRunReportsCancellation(t *testing.T) {
	tr := &fakeTranslator{err: context.Canceled}
	svc := newTestService(t, tr, &fakeExecutor{})

	_, err := svc.Run(context.Background(), "show me accounts")
	if !IsCancellation(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestIsCancellation(t *testing.T) {
	if !IsCancellation(context.Canceled) {
		t.Fatal("context.Canceled must count as cancellation")
	}
	if !IsCancellation(context.DeadlineExceeded) {
		t.Fatal("context.DeadlineExceeded must count as cancellation")
	}
	if IsCancellation(errors.New("boom")) {
		t.Fatal("arbitrary errors are not cancellations")
	}
	if IsCancellation(nil) {
		t.Fatal("nil is not a cancellation")
	}
}
