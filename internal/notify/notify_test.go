package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"fruittrace/internal/model"
	ws "fruittrace/internal/websocket"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	name string
	err  error

	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Notify(ctx context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (o *recordingObserver) ObserveNotification(sink string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := sink + ":ok"
	if err != nil {
		key = sink + ":error"
	}
	o.outcomes[key]++
}

func sampleEvent() Event {
	return Event{
		Type:      EventRequestSubmitted,
		RequestID: uuid.New(),
		Kind:      model.RequestCreate,
		Actor:     uuid.New(),
		Status:    model.ApprovalPending,
	}
}

func TestDispatcherFansOutAndSurvivesFailingSink(t *testing.T) {
	failing := &recordingSink{name: "ses", err: errors.New("throttled")}
	ok := &recordingSink{name: "log"}
	obs := &recordingObserver{outcomes: map[string]int{}}

	d := NewDispatcher([]Notifier{failing, ok}, WithObserver(obs))
	d.Start()
	d.Publish(sampleEvent())
	d.Publish(sampleEvent())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	assert.Equal(t, 2, failing.count())
	assert.Equal(t, 2, ok.count())
	assert.Equal(t, 2, obs.outcomes["ses:error"])
	assert.Equal(t, 2, obs.outcomes["log:ok"])
	assert.False(t, ok.events[0].At.IsZero(), "publish stamps the event time")
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	sink := &recordingSink{name: "log"}
	d := NewDispatcher([]Notifier{sink}, WithQueueSize(1))

	// not started: the second event has nowhere to go
	d.Publish(sampleEvent())
	d.Publish(sampleEvent())

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 1, sink.count())

	assert.NotPanics(t, func() { d.Publish(sampleEvent()) })
}

func TestDispatcherPublishRacesClose(t *testing.T) {
	sink := &recordingSink{name: "log"}
	d := NewDispatcher([]Notifier{sink}, WithQueueSize(1000))
	d.Start()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				d.Publish(sampleEvent())
			}
		}()
	}
	require.NoError(t, d.Close(context.Background()))
	wg.Wait()

	delivered := sink.count()
	assert.LessOrEqual(t, delivered, 400)
	d.Publish(sampleEvent())
	assert.Equal(t, delivered, sink.count(), "events published after close are dropped")
	assert.NoError(t, d.Close(context.Background()), "closing twice is harmless")
}

func TestEventBodyNamesActorRole(t *testing.T) {
	e := sampleEvent()
	assert.Contains(t, e.Body(), "Requested by: "+e.Actor.String())

	e.Type = EventRequestReviewed
	e.Status = model.ApprovalApproved
	assert.Contains(t, e.Body(), "Reviewed by: "+e.Actor.String())
	assert.NotContains(t, e.Body(), "Requested by")

	e.Type = EventDirectApplied
	assert.Contains(t, e.Body(), "Applied by: "+e.Actor.String())

	e.Type = "custom"
	assert.Contains(t, e.Body(), "Actor: "+e.Actor.String())
}

type fakeSES struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	return &sesv2.SendEmailOutput{}, f.err
}

func TestEmailNotifier(t *testing.T) {
	client := &fakeSES{}
	n := NewEmailNotifier(client, "noreply@fruittrace.test", StaticRecipients("admin@fruittrace.test"))

	e := sampleEvent()
	require.NoError(t, n.Notify(context.Background(), e))
	require.NotNil(t, client.in)
	assert.Equal(t, "noreply@fruittrace.test", aws.ToString(client.in.FromEmailAddress))
	assert.Equal(t, []string{"admin@fruittrace.test"}, client.in.Destination.ToAddresses)
	assert.Equal(t, "New create request pending approval", aws.ToString(client.in.Content.Simple.Subject.Data))
	assert.Contains(t, aws.ToString(client.in.Content.Simple.Body.Text.Data), e.RequestID.String())
}

func TestEmailNotifierErrors(t *testing.T) {
	assert.Error(t, NewEmailNotifier(&fakeSES{}, "", StaticRecipients("a@b.c")).Notify(context.Background(), sampleEvent()))

	failing := NewEmailNotifier(&fakeSES{err: errors.New("denied")}, "x@y.z", StaticRecipients("a@b.c"))
	assert.Error(t, failing.Notify(context.Background(), sampleEvent()))

	client := &fakeSES{}
	none := NewEmailNotifier(client, "x@y.z", StaticRecipients())
	assert.NoError(t, none.Notify(context.Background(), sampleEvent()))
	assert.Nil(t, client.in, "no recipients, no mail")
}

type fakeSNS struct {
	in *sns.PublishInput
}

func (f *fakeSNS) Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.in = in
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func TestTopicNotifier(t *testing.T) {
	client := &fakeSNS{}
	n := NewTopicNotifier(client, "arn:aws:sns:eu-central-1:123456789012:approvals")

	e := sampleEvent()
	require.NoError(t, n.Notify(context.Background(), e))
	assert.Equal(t, "arn:aws:sns:eu-central-1:123456789012:approvals", aws.ToString(client.in.TopicArn))
	assert.Equal(t, EventRequestSubmitted, aws.ToString(client.in.MessageAttributes["event"].StringValue))

	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(client.in.Message)), &decoded))
	assert.Equal(t, e.RequestID, decoded.RequestID)
}

func TestHubNotifierTargetsAdmins(t *testing.T) {
	hub := ws.NewHub()
	n := NewHubNotifier(hub)

	require.NoError(t, n.Notify(context.Background(), sampleEvent()))

	msg := <-hub.Broadcast
	assert.Equal(t, []model.Role{model.RoleAdmin}, msg.Roles)
	assert.Contains(t, string(msg.Data), EventRequestSubmitted)
}
