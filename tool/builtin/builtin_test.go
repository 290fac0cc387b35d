package builtin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kbagent/core"
	"github.com/hupe1980/kbagent/tool"
)

type fakeKB struct {
	ingested  []string
	fragments []core.Fragment
	err       error
}

func (f *fakeKB) Ingest(_ context.Context, text string) (core.Resource, error) {
	if f.err != nil {
		return core.Resource{}, f.err
	}
	f.ingested = append(f.ingested, text)

	return core.Resource{ID: "res-1", Content: text, Chunks: 1, CreatedAt: time.Now()}, nil
}

func (f *fakeKB) Retrieve(_ context.Context, _ string) ([]core.Fragment, error) {
	return f.fragments, f.err
}

func toolCtx(name string) *core.ToolContext {
	return core.NewToolContext(context.Background(), "run", 1, core.FunctionCall{ID: "fc", Name: name}, nil)
}

func TestAddResource(t *testing.T) {
	kb := &fakeKB{}
	add := NewAddResourceTool(kb)

	assert.Equal(t, AddResourceName, add.Name())
	assert.True(t, tool.HasSideEffects(add))

	res, err := add.Call(toolCtx(AddResourceName), map[string]any{"content": "The sky is blue."})
	require.NoError(t, err)
	assert.Equal(t, IngestAcknowledgement, res)
	assert.Equal(t, []string{"The sky is blue."}, kb.ingested)

	_, err = add.Call(toolCtx(AddResourceName), map[string]any{"content": "   "})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = add.Call(toolCtx(AddResourceName), map[string]any{})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestAddResource_IngestFailure(t *testing.T) {
	add := NewAddResourceTool(&fakeKB{err: errors.New("db down")})

	_, err := add.Call(toolCtx(AddResourceName), map[string]any{"content": "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrToolExecution)
	assert.Contains(t, err.Error(), "db down")
}

func TestGetInformation(t *testing.T) {
	kb := &fakeKB{fragments: []core.Fragment{
		{Text: "The sky is blue", Score: 0.91},
		{Text: "Grass is green", Score: 0.52},
	}}
	get := NewGetInformationTool(kb)

	assert.False(t, tool.HasSideEffects(get))
	assert.Equal(t, GetInformationDescription, get.Description())

	res, err := get.Call(toolCtx(GetInformationName), map[string]any{"question": "What color is the sky?"})
	require.NoError(t, err)

	fragments, ok := res.([]core.Fragment)
	require.True(t, ok)
	assert.Equal(t, kb.fragments, fragments, "fragments must keep retriever order")
}

func TestGetInformation_EmptyResultIsNotNil(t *testing.T) {
	get := NewGetInformationTool(&fakeKB{})

	res, err := get.Call(toolCtx(GetInformationName), map[string]any{"question": "anything?"})
	require.NoError(t, err)
	assert.Equal(t, []core.Fragment{}, res)
}

func TestIsHarmful(t *testing.T) {
	h := NewIsHarmfulTool(nil)
	res, err := h.Call(toolCtx(IsHarmfulName), map[string]any{"product": "bleach"})
	require.NoError(t, err)
	assert.Equal(t, "The product bleach is not harmful.", res)

	h = NewIsHarmfulTool(KeywordClassifier{Terms: []string{"Bleach"}})
	res, err = h.Call(toolCtx(IsHarmfulName), map[string]any{"product": "chlorine bleach"})
	require.NoError(t, err)
	assert.Contains(t, res, "is harmful")

	h = NewIsHarmfulTool(ClassifierFunc(func(context.Context, string) (string, error) {
		return "", errors.New("classifier offline")
	}))
	_, err = h.Call(toolCtx(IsHarmfulName), map[string]any{"product": "x"})
	assert.ErrorIs(t, err, core.ErrToolExecution)
}

func TestStaticClassifier_Template(t *testing.T) {
	v, err := StaticClassifier{Template: "%s: unknown"}.Classify(context.Background(), "widget")
	require.NoError(t, err)
	assert.Equal(t, "widget: unknown", v)
}
