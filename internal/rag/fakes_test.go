package rag

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// fakeEmbedder returns a fixed vector per input text.
type fakeEmbedder struct {
	dim  int
	err  error
	seen [][]string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.seen = append(f.seen, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

// fakeVectorStore records calls and serves canned results.
type fakeVectorStore struct {
	searchNodes []Node
	searchErr   error

	lastTenant string
	lastTopK   int
}

func (f *fakeVectorStore) Upsert(context.Context, []Node, [][]float32) error { return nil }

func (f *fakeVectorStore) Search(_ context.Context, _ []float32, tenant string, topK int) ([]Node, error) {
	f.lastTenant = tenant
	f.lastTopK = topK
	return f.searchNodes, f.searchErr
}

func (f *fakeVectorStore) FetchPoint(context.Context, string, string) (*PointRecord, error) {
	return nil, ErrNotFound
}
func (f *fakeVectorStore) Restore(context.Context, *PointRecord) error                  { return nil }
func (f *fakeVectorStore) UpdatePoint(context.Context, *PointRecord, string, []float32) error {
	return nil
}
func (f *fakeVectorStore) DeleteByDoc(context.Context, string, string) error        { return nil }
func (f *fakeVectorStore) ScrollDocIDs(context.Context, string, string) ([]string, error) {
	return nil, nil
}
func (f *fakeVectorStore) DeleteByFile(context.Context, string, string) error { return nil }
func (f *fakeVectorStore) Close() error                                       { return nil }

// fakeChatModel replays scripted responses in order.
type fakeChatModel struct {
	responses []string
	err       error
	calls     []string
}

var _ model.ChatModel = (*fakeChatModel)(nil)

func (f *fakeChatModel) Generate(_ context.Context, msgs []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(msgs) > 0 {
		f.calls = append(f.calls, msgs[len(msgs)-1].Content)
	}
	if len(f.responses) == 0 {
		return nil, fmt.Errorf("fake model: no scripted response left")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return schema.AssistantMessage(resp, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, msgs []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	resp, err := f.Generate(ctx, msgs, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{resp}), nil
}

func (f *fakeChatModel) BindTools([]*schema.ToolInfo) error { return nil }

// fakeLookup serves answers from a map keyed by doc id.
type fakeLookup struct {
	answers map[string]string
	err     error
}

func (f *fakeLookup) Answer(_ context.Context, docID, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	answer, ok := f.answers[docID]
	if !ok {
		return "", fmt.Errorf("lookup: qa pair %s: %w", docID, ErrNotFound)
	}
	return answer, nil
}

// qaNode builds a question node for the given tenant.
func qaNode(id, text, tenant string) Node {
	return Node{
		ID:   id,
		Text: text,
		Metadata: map[string]string{
			MetaUserType: tenant,
			MetaDocID:    id,
		},
	}
}
