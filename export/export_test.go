package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zerofisher/wordchain/pkg/model"
)

var words = []*model.Word{
	{ID: 1, Token: "hello", Total: 3, Start: 3, Class: model.ClassAlpha},
	{ID: 2, Token: "world", Total: 3, End: 3, Class: model.ClassAlpha},
}

func exportAll(t *testing.T, e *Exporter, ws []*model.Word) {
	t.Helper()
	require.NoError(t, e.Start())
	for _, w := range ws {
		require.NoError(t, e.ExportWord(w))
		if e.ShouldStop() {
			break
		}
	}
	require.NoError(t, e.Finish())
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	f, err = ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestExportText(t *testing.T) {
	var buf bytes.Buffer
	e := NewExporter(&buf, FormatText)
	exportAll(t, e, words)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"1", "hello", "3", "3", "0", "alpha"}, strings.Fields(lines[0]))
	assert.Equal(t, 2, e.Count())
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	exportAll(t, NewExporter(&buf, FormatJSON), words)

	var got []*model.Word
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, words, got)
}

func TestExportJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	exportAll(t, NewExporter(&buf, FormatJSON), nil)

	var got []*model.Word
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Empty(t, got)
}

func TestExportFields(t *testing.T) {
	var buf bytes.Buffer
	e := NewExporter(&buf, FormatFields)
	require.NoError(t, e.SetFields([]string{"word.token", "word.end_ratio"}))
	e.SetSeparator(",")
	e.SetHeader(true)
	exportAll(t, e, words)

	assert.Equal(t, "word.token,word.end_ratio\nhello,0.0000\nworld,1.0000\n", buf.String())

	assert.Error(t, e.SetFields([]string{"ip.src"}))
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	e := NewExporter(&buf, FormatCSV)
	exportAll(t, e, []*model.Word{{ID: 3, Token: `o"neil`, Total: 1, Class: model.ClassAlpha}})

	assert.Equal(t, "word.id,word.token,word.total,word.start,word.end,word.class\n"+
		`3,"o""neil",1,0,0,alpha`+"\n", buf.String())

	buf.Reset()
	e = NewExporter(&buf, FormatCSV)
	require.NoError(t, e.StartFollowers())
	require.NoError(t, e.ExportFollower("hello", model.FollowerCount{Token: "world", Count: 2}))
	require.NoError(t, e.Finish())
	assert.Equal(t, "from,to,count\nhello,world,2\n", buf.String())
}

func TestExportCSVNotStarted(t *testing.T) {
	e := NewExporter(&bytes.Buffer{}, FormatCSV)
	assert.Error(t, e.ExportWord(words[0]))
}

func TestExportMaxCount(t *testing.T) {
	var buf bytes.Buffer
	e := NewExporter(&buf, FormatText)
	e.SetMaxCount(1)
	exportAll(t, e, words)

	assert.Equal(t, 1, e.Count())
	assert.NotContains(t, buf.String(), "world")
	require.NoError(t, e.ExportWord(words[1]))
	assert.Equal(t, 1, e.Count())
}

func TestExportFollowers(t *testing.T) {
	fcs := []model.FollowerCount{{Token: "world", Count: 2}, {Token: "again", Count: 1}}

	var buf bytes.Buffer
	e := NewExporter(&buf, FormatJSON)
	require.NoError(t, e.Start())
	for _, fc := range fcs {
		require.NoError(t, e.ExportFollower("hello", fc))
	}
	require.NoError(t, e.Finish())

	var got []FollowerJSON
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, []FollowerJSON{{"hello", "world", 2}, {"hello", "again", 1}}, got)

	buf.Reset()
	e = NewExporter(&buf, FormatFields)
	require.NoError(t, e.ExportFollower("hello", fcs[0]))
	assert.Equal(t, "hello\tworld\t2\n", buf.String())
}

func TestExportFiles(t *testing.T) {
	var buf bytes.Buffer
	files := []*model.File{{ID: 1, Path: "/data/a.txt", WordCount: 9, DateImported: time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)}}
	require.NoError(t, ExportFiles(&buf, files))

	out := buf.String()
	assert.Contains(t, out, "2024-03-09")
	assert.Contains(t, out, "/data/a.txt")
}
