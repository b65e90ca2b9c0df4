package llmstream

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// toolCallAssembler reconstructs tool calls from partial wire deltas. A call's
// name arrives in content_block_start and its JSON arguments may be split
// across any number of input_json_delta fragments, keyed by the block's
// stream-assigned index. Fragments are accumulated verbatim and parsed only
// once the block is closed, never while accumulating.
type toolCallAssembler struct {
	open map[int]*openToolBlock
}

type openToolBlock struct {
	index int
	id    string
	name  string
	args  strings.Builder
}

func newToolCallAssembler() *toolCallAssembler {
	return &toolCallAssembler{open: make(map[int]*openToolBlock)}
}

// start opens a tool_use block at the given index. A second start for an
// index that is still open is a protocol error.
func (a *toolCallAssembler) start(index int, id, name string) error {
	if _, exists := a.open[index]; exists {
		return &ProtocolError{StreamError: StreamError{
			Message: fmt.Sprintf("tool block index %d started twice", index),
		}}
	}
	a.open[index] = &openToolBlock{index: index, id: id, name: name}
	return nil
}

// appendArgs buffers one argument fragment for the block at index. A fragment
// for an unknown index means the endpoint sent deltas out of order; that is
// treated as a protocol error rather than guessed at.
func (a *toolCallAssembler) appendArgs(index int, fragment string) error {
	block, ok := a.open[index]
	if !ok {
		return &ProtocolError{StreamError: StreamError{
			Message: fmt.Sprintf("argument delta for unknown tool block index %d", index),
		}}
	}
	block.args.WriteString(fragment)
	return nil
}

// isOpen reports whether index refers to an open tool_use block.
func (a *toolCallAssembler) isOpen(index int) bool {
	_, ok := a.open[index]
	return ok
}

// finish closes the block at index, parses the accumulated arguments, and
// returns the completed call. An empty buffer means an argumentless call.
func (a *toolCallAssembler) finish(index int) (*ToolCall, error) {
	block, ok := a.open[index]
	if !ok {
		return nil, &ProtocolError{StreamError: StreamError{
			Message: fmt.Sprintf("stop for unknown tool block index %d", index),
		}}
	}
	delete(a.open, index)
	return block.complete()
}

// drain closes any blocks still open at end-of-stream, in index order, so a
// stream that ends without explicit content_block_stop markers still yields
// its calls.
func (a *toolCallAssembler) drain() ([]*ToolCall, error) {
	if len(a.open) == 0 {
		return nil, nil
	}
	indexes := make([]int, 0, len(a.open))
	for i := range a.open {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	calls := make([]*ToolCall, 0, len(indexes))
	for _, i := range indexes {
		call, err := a.finish(i)
		if err != nil {
			return calls, err
		}
		calls = append(calls, call)
	}
	return calls, nil
}

func (b *openToolBlock) complete() (*ToolCall, error) {
	raw := b.args.String()
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = "{}"
	}
	if !json.Valid([]byte(trimmed)) {
		return nil, &ProtocolError{StreamError: StreamError{
			Message: fmt.Sprintf("tool call %q (block %d) closed with invalid argument JSON", b.name, b.index),
		}}
	}
	return &ToolCall{
		ID:       b.id,
		Name:     b.name,
		Input:    json.RawMessage(trimmed),
		RawInput: raw,
	}, nil
}
