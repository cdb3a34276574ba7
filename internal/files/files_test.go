package files

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub/agentdesk/internal/logging"
	"github.com/aihub/agentdesk/internal/store"
)

var sampleDXF = strings.Join([]string{
	"  0", "SECTION", "  2", "HEADER",
	"  9", "$ACADVER", "  1", "AC1015",
	"  0", "ENDSEC",
	"  0", "SECTION", "  2", "TABLES",
	"  0", "TABLE", "  2", "LAYER", " 70", "2",
	"  0", "LAYER", "  2", "Walls", " 70", "0",
	"  0", "LAYER", "  2", "Unused", " 70", "0",
	"  0", "ENDTAB",
	"  0", "ENDSEC",
	"  0", "SECTION", "  2", "BLOCKS",
	"  0", "BLOCK", "  8", "0", "  2", "Door",
	"  0", "LINE", "  8", "0",
	"  0", "ENDBLK",
	"  0", "ENDSEC",
	"  0", "SECTION", "  2", "ENTITIES",
	"  0", "LINE", "  8", "Walls", " 10", "0.0", " 20", "0.0",
	"  0", "LINE", "  8", "Walls",
	"  0", "CIRCLE", "  8", "Fixtures", " 40", "5.0",
	"  0", "TEXT", "  8", "Notes", "  1", "Kitchen",
	"  0", "INSERT", "  8", "Walls", "  2", "Door",
	"  0", "ENDSEC",
	"  0", "EOF",
}, "\r\n") + "\r\n"

func silentLog() *logging.Logger { return logging.New(nil, "silent") }

func newTestStore(t *testing.T, maxSize int64) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "uploads"), maxSize, silentLog())
	require.NoError(t, err)
	return s
}

func TestStore_Save(t *testing.T) {
	s := newTestStore(t, 0)
	up, err := s.Save(strings.NewReader("hello world"), "../../notes.TXT")
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(up.ID, ".txt"))
	assert.Equal(t, "/uploads/"+up.ID, up.URL)
	assert.Equal(t, "notes.TXT", up.Filename)
	assert.Equal(t, int64(11), up.Size)
	assert.Contains(t, up.MimeType, "text/plain")

	data, err := os.ReadFile(filepath.Join(s.Dir(), up.ID))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestStore_SaveMime(t *testing.T) {
	s := newTestStore(t, 0)
	tests := []struct {
		name, filename, content, want string
	}{
		{"dxf", "plan.dxf", sampleDXF, "image/vnd.dxf"},
		{"png by extension", "a.png", "xx", "image/png"},
		{"sniffed", "blob", "%PDF-1.4 ...", "application/pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up, err := s.Save(strings.NewReader(tt.content), tt.filename)
			require.NoError(t, err)
			assert.Equal(t, tt.want, up.MimeType)
		})
	}
}

func TestStore_SaveLimits(t *testing.T) {
	s := newTestStore(t, 4)

	_, err := s.Save(strings.NewReader("12345"), "big.txt")
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = s.Save(strings.NewReader(""), "empty.txt")
	assert.ErrorIs(t, err, ErrEmpty)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)

	up, err := s.Save(strings.NewReader("1234"), "")
	require.NoError(t, err)
	assert.Equal(t, up.ID, up.Filename)
}

func TestStore_PathAndDelete(t *testing.T) {
	s := newTestStore(t, 0)
	up, err := s.Save(strings.NewReader("data"), "a.txt")
	require.NoError(t, err)

	for _, bad := range []string{"", "../a.txt", ".hidden", "a/b"} {
		_, err := s.Path(bad)
		assert.ErrorIs(t, err, ErrInvalidID, bad)
	}
	_, err = s.Path("missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	f, err := s.Open(up.ID)
	require.NoError(t, err)
	f.Close()

	require.NoError(t, s.Delete(up.ID))
	_, err = s.Open(up.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAnalyzeDXF(t *testing.T) {
	res, err := AnalyzeDXF(strings.NewReader(sampleDXF))
	require.NoError(t, err)

	assert.Equal(t, "AC1015", res.Version)
	assert.Equal(t, 5, res.TotalEntities)
	assert.Equal(t, map[string]int{"LINE": 2, "CIRCLE": 1, "TEXT": 1, "INSERT": 1}, res.Entities)
	assert.Equal(t, []string{"Fixtures", "Notes", "Unused", "Walls"}, res.Layers)
	assert.Equal(t, map[string]int{"Walls": 3, "Fixtures": 1, "Notes": 1}, res.LayerEntities)
	assert.Equal(t, 1, res.Blocks)

	summary := res.Summary()
	assert.True(t, strings.HasPrefix(summary, "DXF drawing with 5 entities on 4 layers (AC1015)."))
	assert.Less(t, strings.Index(summary, "LINE: 2"), strings.Index(summary, "CIRCLE: 1"))
}

func TestAnalyzeDXF_Errors(t *testing.T) {
	tests := []struct {
		name, input string
	}{
		{"empty", ""},
		{"bad code", "abc\nSECTION\n"},
		{"missing value", "  0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AnalyzeDXF(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestAnalyzer_CachesAndPersists(t *testing.T) {
	db, err := store.Open(":memory:", silentLog())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	prefs := store.NewPreferences(db)

	files := newTestStore(t, 0)
	up, err := files.Save(bytes.NewBufferString(sampleDXF), "plan.dxf")
	require.NoError(t, err)

	a := NewAnalyzer(files, prefs, 4, time.Hour, silentLog())
	res, err := a.Analyze(up.ID)
	require.NoError(t, err)
	assert.Equal(t, up.ID, res.FileID)

	var persisted CADAnalysis
	require.True(t, prefs.GetJSON(store.CADAnalysisKey(up.ID), &persisted))
	assert.Equal(t, 5, persisted.TotalEntities)

	// Served from memory once the file is gone.
	require.NoError(t, files.Delete(up.ID))
	again, err := a.Analyze(up.ID)
	require.NoError(t, err)
	assert.Same(t, res, again)

	// A fresh analyzer falls back to the persisted copy.
	b := NewAnalyzer(files, prefs, 4, time.Hour, silentLog())
	fromPrefs, err := b.Analyze(up.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Entities, fromPrefs.Entities)
}

func TestAnalyzer_NoFileID(t *testing.T) {
	a := NewAnalyzer(nil, nil, 0, 0, silentLog())
	res, err := a.AnalyzeReader("", strings.NewReader(sampleDXF))
	require.NoError(t, err)
	assert.Empty(t, res.FileID)

	_, err = a.Analyze("unknown.dxf")
	assert.ErrorIs(t, err, ErrNotFound)
}

type countingTracker struct {
	counts map[string]int
}

func (c *countingTracker) Record(name string, _ time.Duration, _ bool) {
	c.counts[name]++
}

func TestAnalyzer_TracksCacheLookups(t *testing.T) {
	files := newTestStore(t, 0)
	up, err := files.Save(strings.NewReader(sampleDXF), "plan.dxf")
	require.NoError(t, err)

	tr := &countingTracker{counts: map[string]int{}}
	a := NewAnalyzer(files, nil, 4, time.Hour, silentLog())
	a.SetTracker(tr)

	_, err = a.Analyze(up.ID)
	require.NoError(t, err)
	_, err = a.Analyze(up.ID)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"cache.miss": 1, "cache.hit": 1}, tr.counts)
}
