package tracelog

import (
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/dispatchflow/internal/runtime/envelope"
	"github.com/drblury/dispatchflow/internal/runtime/logging"
)

func newEnvelope(causation []string) *envelope.Envelope {
	md := envelope.NewMetadata("861c3d6e-0000-4000-8000-000000000001", "ctx.command.do-x").WithCausation(causation)
	return envelope.New(md, envelope.MustPayload(`{"secret":"not-logged"}`))
}

func TestToTraceStringWithAbsentCausation(t *testing.T) {
	out := ToTraceString(newEnvelope(nil))
	assert.JSONEq(t, `{"id":"861c3d6e-0000-4000-8000-000000000001","name":"ctx.command.do-x","causation":[]}`, out)
	assert.NotContains(t, out, "secret")
}

func TestToTraceStringKeepsCausationOrder(t *testing.T) {
	out := ToTraceString(newEnvelope([]string{"first", "second"}))
	assert.JSONEq(t, `{"id":"861c3d6e-0000-4000-8000-000000000001","name":"ctx.command.do-x","causation":["first","second"]}`, out)
	assert.Less(t, strings.Index(out, "first"), strings.Index(out, "second"))
}

func TestToTraceStringFieldOrder(t *testing.T) {
	out := ToTraceString(newEnvelope([]string{}))
	assert.Equal(t, `{"id":"861c3d6e-0000-4000-8000-000000000001","name":"ctx.command.do-x","causation":[]}`, out)
}

func TestToTraceStringNilEnvelope(t *testing.T) {
	assert.NotPanics(t, func() {
		out := ToTraceString(nil)
		assert.Contains(t, out, `"error"`)
	})

	_, err := SafeTraceString(nil)
	assert.Error(t, err)
}

func TestValuesOf(t *testing.T) {
	values := ValuesOf(newEnvelope(nil))
	assert.Equal(t, "ctx.command.do-x", values.Name)
	assert.NotNil(t, values.Causation)
	assert.Empty(t, values.Causation)

	assert.Equal(t, []string{}, ValuesOf(nil).Causation)
}

func TestTraceLine(t *testing.T) {
	assert.Equal(t,
		"pre dispatching message with ID {861c3d6e-0000-4000-8000-000000000001} and NAME {ctx.command.do-x}",
		Trace("pre", newEnvelope(nil)))
	assert.Equal(t,
		"post dispatching message with ID {861c3d6e-0000-4000-8000-000000000001} and NAME {ctx.command.do-x} with causation message IDs {a, b}",
		Trace("post", newEnvelope([]string{"a", "b"})))
	assert.Equal(t, "pre dispatching nil envelope", Trace("pre", nil))
}

func TestMessageTraceString(t *testing.T) {
	msg := message.NewMessage("msg-1", []byte("{}"))
	middleware.SetCorrelationID("corr-1", msg)

	out := MessageTraceString(msg)
	assert.JSONEq(t, `{"message_id":"msg-1","topic":"","correlation_id":"corr-1"}`, out)
	assert.Contains(t, MessageTraceString(nil), `"error"`)
}

func TestLogSwallowsLoggerPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		Log(panickingLogger{}, "pre", newEnvelope(nil))
		LogMessage(panickingLogger{}, "pre", message.NewMessage("id", nil))
		Log(nil, "pre", nil)
	})
}

func TestLogWritesTraceLine(t *testing.T) {
	rec := &recordingLogger{}
	Log(rec, "pre", newEnvelope([]string{"a"}))

	require.Len(t, rec.messages, 1)
	assert.Contains(t, rec.messages[0], "pre dispatching message")
	assert.Contains(t, rec.fields[0]["envelope"], `"causation":["a"]`)
}

type panickingLogger struct{}

func (p panickingLogger) With(logging.LogFields) logging.ServiceLogger { return p }
func (panickingLogger) Debug(string, logging.LogFields)                 { panic("debug") }
func (panickingLogger) Info(string, logging.LogFields)                  { panic("info") }
func (panickingLogger) Error(string, error, logging.LogFields)          { panic("error") }
func (panickingLogger) Trace(string, logging.LogFields)                 { panic("trace") }

type recordingLogger struct {
	messages []string
	fields   []map[string]string
}

func (r *recordingLogger) With(logging.LogFields) logging.ServiceLogger { return r }
func (r *recordingLogger) Debug(string, logging.LogFields)              {}
func (r *recordingLogger) Info(string, logging.LogFields)               {}
func (r *recordingLogger) Error(string, error, logging.LogFields)       {}
func (r *recordingLogger) Trace(msg string, fields logging.LogFields) {
	r.messages = append(r.messages, msg)
	flat := map[string]string{}
	for k, v := range fields {
		flat[k] = v.(string)
	}
	r.fields = append(r.fields, flat)
}
