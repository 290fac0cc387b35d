package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kbagent"
	"github.com/hupe1980/kbagent/agent"
	"github.com/hupe1980/kbagent/core"
	"github.com/hupe1980/kbagent/internal/metrics"
	"github.com/hupe1980/kbagent/knowledge"
	"github.com/hupe1980/kbagent/knowledge/vectordb"
	"github.com/hupe1980/kbagent/model"
	"github.com/hupe1980/kbagent/stream"
	"github.com/hupe1980/kbagent/tool/builtin"
)

type fixture struct {
	server *Server
	kb     *knowledge.Service
	llm    *model.ScriptedModel
}

func newFixture(t *testing.T, turns ...model.Turn) fixture {
	t.Helper()

	embedder, err := knowledge.NewEmbedder(context.Background(), knowledge.EmbedderConfig{Provider: knowledge.EmbedderHash, Dimension: 1024})
	require.NoError(t, err)

	kb, err := knowledge.NewService(vectordb.NewMemory(1024), embedder)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	recorder, err := metrics.NewRecorder(reg)
	require.NoError(t, err)

	llm := model.NewScriptedModel(turns...)

	a, err := kbagent.New(llm, kb, func(o *kbagent.Options) {
		o.Loop = append(o.Loop, func(lo *agent.Options) { lo.Metrics = recorder })
	})
	require.NoError(t, err)

	return fixture{
		server: New(a, kb, func(o *Options) { o.Gatherer = reg }),
		kb:     kb,
		llm:    llm,
	}
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	rec := do(t, f.server, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestTools(t *testing.T) {
	f := newFixture(t)

	rec := do(t, f.server, http.MethodGet, "/api/tools", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var tools []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tools))
	require.Len(t, tools, 3)
	assert.Equal(t, builtin.AddResourceName, tools[0].Name)
}

func TestChat_DataStream(t *testing.T) {
	f := newFixture(t,
		model.Turn{Calls: []core.FunctionCall{model.CallWithID("c1", builtin.AddResourceName, map[string]string{"content": "The sky is blue."})}},
		model.Turn{Text: "Noted."},
	)

	rec := do(t, f.server, http.MethodPost, "/api/chat", `{"messages":[{"role":"user","content":"The sky is blue."}]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "v1", rec.Header().Get(stream.DataStreamVersionHeader))
	assert.True(t, rec.Flushed)

	body := rec.Body.String()
	assert.Contains(t, body, `9:{"toolCallId":"c1","toolName":"addResource","args":{"content":"The sky is blue."}}`)
	assert.Contains(t, body, `a:{"toolCallId":"c1","result":"Resource successfully created and embedded."}`)
	assert.Contains(t, body, `0:"Noted."`)
	assert.Contains(t, body, `d:{"finishReason":"stop"`)

	fragments, err := f.kb.Retrieve(context.Background(), "What color is the sky?")
	require.NoError(t, err)
	require.NotEmpty(t, fragments)
}

func TestChat_SSE(t *testing.T) {
	f := newFixture(t, model.Turn{Text: "Hello."})

	rec := do(t, f.server, http.MethodPost, "/api/chat", `{"messages":[{"role":"user","content":"Hi"}]}`,
		map[string]string{"Accept": "text/event-stream"})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event: text-delta\n")
	assert.Contains(t, rec.Body.String(), "event: finish\n")
}

func TestChat_ModelFailure(t *testing.T) {
	f := newFixture(t)

	rec := do(t, f.server, http.MethodPost, "/api/chat", `{"messages":[{"role":"user","content":"Hi"}]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3:"+mustJSON(t, agent.DefaultErrorMessage)+"\n", rec.Body.String()[strings.LastIndex(rec.Body.String(), "3:"):])
}

func TestChat_InvalidRequests(t *testing.T) {
	f := newFixture(t)

	for name, body := range map[string]string{
		"not json":           `{`,
		"no messages":        `{"messages":[]}`,
		"unknown role":       `{"messages":[{"role":"robot","content":"x"}]}`,
		"tool without call":  `{"messages":[{"role":"tool","content":"x"}]}`,
		"invocation sans id": `{"messages":[{"role":"assistant","toolInvocations":[{"toolName":"x"}]}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(t, f.server, http.MethodPost, "/api/chat", body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	assert.Zero(t, f.llm.Calls())
}

func TestChat_ValidationMessages(t *testing.T) {
	f := newFixture(t)

	for name, tc := range map[string]struct {
		body string
		want string
	}{
		"unknown role":       {`{"messages":[{"role":"robot","content":"x"}]}`, `field "messages[0].role" failed "oneof"`},
		"missing call id":    {`{"messages":[{"role":"tool","content":"x"}]}`, `field "messages[0].toolCallId" failed "required_if"`},
		"invocation sans id": {`{"messages":[{"role":"assistant","toolInvocations":[{"toolName":"x"}]}]}`, `field "messages[0].toolInvocations[0].toolCallId" failed "required"`},
		"no messages":        {`{"messages":[]}`, `field "messages" failed "min"`},
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(t, f.server, http.MethodPost, "/api/chat", tc.body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.want, body["error"])
			assert.NotContains(t, body["error"], "ChatRequest")
			assert.NotContains(t, body["error"], "Key:")
		})
	}
}

func TestResources(t *testing.T) {
	f := newFixture(t)

	rec := do(t, f.server, http.MethodPost, "/api/resources", `{"content":"Grass is green. The sky is blue."}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var res ResourceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, 2, res.Chunks)

	rec = do(t, f.server, http.MethodPost, "/api/resources", `{"content":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, f.server, http.MethodPost, "/api/resources", `{"content":" . . "}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, model.Turn{Text: "Hello."})

	do(t, f.server, http.MethodPost, "/api/chat", `{"messages":[{"role":"user","content":"Hi"}]}`, nil)

	rec := do(t, f.server, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kbagent_")
}

func TestToConversation(t *testing.T) {
	conv, err := ToConversation([]Message{
		{Role: "user", Content: "The sky is blue."},
		{Role: "assistant", ToolInvocations: []ToolInvocation{{
			State:      "result",
			ToolCallID: "c1",
			ToolName:   "addResource",
			Args:       json.RawMessage(`{"content":"The sky is blue."}`),
			Result:     json.RawMessage(`"Resource successfully created and embedded."`),
		}}},
		{Role: "assistant", Content: "Noted."},
		{Role: "user", Content: "What color is the sky?"},
	})
	require.NoError(t, err)
	require.Len(t, conv, 5)

	assert.Equal(t, core.RoleAssistant, conv[1].Role)
	require.Len(t, conv[1].FunctionCalls(), 1)
	assert.Equal(t, "c1", conv[1].FunctionCalls()[0].ID)

	assert.Equal(t, core.RoleTool, conv[2].Role)
	assert.Equal(t, "Resource successfully created and embedded.", conv[2].FunctionResponses()[0].Payload())
	assert.Equal(t, "Noted.", conv[3].Text())

	_, err = ToConversation([]Message{{Role: "robot"}})
	assert.Error(t, err)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()

	b, err := json.Marshal(v)
	require.NoError(t, err)

	return string(b)
}
