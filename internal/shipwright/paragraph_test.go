package shipwright

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParagraphRoundTrip(t *testing.T) {
	input := "Source: zlib\nVersion: 1.2.11\nDescription: a compression library\n zlib is widely used\nMaintainer: nobody\n\nFeature: tools\nDescription: command line tools\n"

	paragraphs, err := ParseParagraphs(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, paragraphs, 2)

	var buf bytes.Buffer
	require.NoError(t, WriteParagraphs(&buf, paragraphs))

	reparsed, err := ParseParagraphs(&buf)
	require.NoError(t, err)
	assert.Equal(t, paragraphs, reparsed)
}

func TestParagraphRejectsDuplicateField(t *testing.T) {
	input := "Source: zlib\nVersion: 1\nVersion: 2\n"
	_, err := ParseParagraphs(strings.NewReader(input))
	assert.Error(t, err)
}

func TestParagraphContinuationLines(t *testing.T) {
	input := "Source: zlib\nDescription: line one\n line two\n line three\n"
	paragraphs, err := ParseParagraphs(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, paragraphs, 1)

	desc, ok := paragraphs[0].Get("Description")
	require.True(t, ok)
	assert.Equal(t, "line one\nline two\nline three", desc)
}

func TestParagraphPreservesFieldOrder(t *testing.T) {
	p := NewParagraph()
	require.NoError(t, p.Set("Z", "1"))
	require.NoError(t, p.Set("A", "2"))
	require.NoError(t, p.Set("M", "3"))
	assert.Equal(t, []string{"Z", "A", "M"}, p.Keys())
}

func TestParagraphSetDuplicateKeyErrors(t *testing.T) {
	p := NewParagraph()
	require.NoError(t, p.Set("K", "1"))
	assert.Error(t, p.Set("K", "2"))
}
