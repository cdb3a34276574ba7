package files

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/aihub/agentdesk/internal/logging"
	"github.com/aihub/agentdesk/internal/optimization"
	"github.com/aihub/agentdesk/internal/store"
)

// CADAnalysis summarizes the contents of a DXF drawing.
type CADAnalysis struct {
	FileID        string         `json:"fileId,omitempty"`
	Version       string         `json:"version,omitempty"`
	TotalEntities int            `json:"totalEntities"`
	Entities      map[string]int `json:"entities"`
	Layers        []string       `json:"layers"`
	LayerEntities map[string]int `json:"layerEntities"`
	Blocks        int            `json:"blocks"`
	AnalyzedAt    time.Time      `json:"analyzedAt"`
}

// Summary renders the analysis as a short human readable text, sent to the
// chat agent alongside the drawing.
func (a *CADAnalysis) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "DXF drawing with %d entities on %d layers", a.TotalEntities, len(a.Layers))
	if a.Version != "" {
		fmt.Fprintf(&b, " (%s)", a.Version)
	}
	b.WriteString(".")
	types := make([]string, 0, len(a.Entities))
	for t := range a.Entities {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if a.Entities[types[i]] != a.Entities[types[j]] {
			return a.Entities[types[i]] > a.Entities[types[j]]
		}
		return types[i] < types[j]
	})
	for _, t := range types {
		fmt.Fprintf(&b, "\n- %s: %d", t, a.Entities[t])
	}
	return b.String()
}

// AnalyzeDXF reads an ASCII DXF file. Entities are counted inside the
// ENTITIES section; layers come from the LAYER table and from the layer
// (group 8) of every entity.
func AnalyzeDXF(r io.Reader) (*CADAnalysis, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	res := &CADAnalysis{
		Entities:      map[string]int{},
		LayerEntities: map[string]int{},
		AnalyzedAt:    time.Now().UTC(),
	}
	layers := map[string]bool{}

	var (
		section    string
		table      string
		entity     string
		nextIsName bool
		inLayer    bool
		wantVer    bool
		pairs      int
	)

	for {
		code, value, ok, err := nextPair(sc)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		pairs++

		switch code {
		case 0:
			entity = ""
			inLayer = false
			switch value {
			case "SECTION":
				nextIsName = true
				continue
			case "ENDSEC":
				section = ""
				continue
			case "TABLE":
				table = ""
				continue
			case "ENDTAB":
				table = ""
				continue
			case "EOF":
				continue
			}
			switch section {
			case "ENTITIES":
				entity = value
				res.Entities[value]++
				res.TotalEntities++
			case "TABLES":
				inLayer = value == "LAYER" && table == "LAYER"
			case "BLOCKS":
				if value == "BLOCK" {
					res.Blocks++
				}
			}
		case 2:
			switch {
			case nextIsName:
				section = value
				nextIsName = false
			case section == "TABLES" && table == "" && !inLayer:
				table = value
			case inLayer && value != "":
				layers[value] = true
			}
		case 8:
			if entity != "" && value != "" {
				layers[value] = true
				res.LayerEntities[value]++
			}
		case 9:
			wantVer = value == "$ACADVER"
			continue
		case 1:
			if wantVer {
				res.Version = value
			}
		}
		wantVer = false
	}

	if pairs == 0 {
		return nil, fmt.Errorf("dxf: empty file")
	}
	for l := range layers {
		res.Layers = append(res.Layers, l)
	}
	sort.Strings(res.Layers)
	if res.Layers == nil {
		res.Layers = []string{}
	}
	return res, nil
}

// nextPair reads one group code / value pair.
func nextPair(sc *bufio.Scanner) (int, string, bool, error) {
	var codeLine string
	for {
		if !sc.Scan() {
			return 0, "", false, sc.Err()
		}
		codeLine = strings.TrimSpace(sc.Text())
		if codeLine != "" {
			break
		}
	}
	var code int
	if _, err := fmt.Sscanf(codeLine, "%d", &code); err != nil {
		return 0, "", false, fmt.Errorf("dxf: invalid group code %q", codeLine)
	}
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return 0, "", false, err
		}
		return 0, "", false, fmt.Errorf("dxf: missing value for group code %d", code)
	}
	return code, strings.TrimSpace(sc.Text()), true, nil
}

// Analyzer caches DXF analyses in memory and in the preference store.
type Analyzer struct {
	files *Store
	prefs *store.Preferences
	cache *expirable.LRU[string, *CADAnalysis]
	log   *logging.Logger

	mu      sync.Mutex
	tracker Tracker
}

// Tracker receives cache hit and miss samples.
type Tracker interface {
	Record(name string, d time.Duration, failed bool)
}

// SetTracker reports cache lookups to t.
func (a *Analyzer) SetTracker(t Tracker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tracker = t
}

// NewAnalyzer creates an analyzer. prefs may be nil, which disables
// persistence.
func NewAnalyzer(files *Store, prefs *store.Preferences, size int, ttl time.Duration, log *logging.Logger) *Analyzer {
	if size <= 0 {
		size = 64
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Analyzer{
		files: files,
		prefs: prefs,
		cache: expirable.NewLRU[string, *CADAnalysis](size, nil, ttl),
		log:   log.Sub("cad"),
	}
}

// Analyze returns the analysis of a stored upload.
func (a *Analyzer) Analyze(fileID string) (*CADAnalysis, error) {
	start := time.Now()
	res, ok := a.cached(fileID)
	a.track(ok, time.Since(start))
	if ok {
		return res, nil
	}
	if a.files == nil {
		return nil, ErrNotFound
	}
	f, err := a.files.Open(fileID)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return a.AnalyzeReader(fileID, f)
}

// AnalyzeReader analyzes r and caches the result under fileID when set.
func (a *Analyzer) AnalyzeReader(fileID string, r io.Reader) (*CADAnalysis, error) {
	if res, ok := a.cached(fileID); ok {
		return res, nil
	}
	start := time.Now()
	res, err := AnalyzeDXF(r)
	if err != nil {
		return nil, err
	}
	res.FileID = fileID
	a.log.Debug().
		Str("file", fileID).
		Int("entities", res.TotalEntities).
		Int("layers", len(res.Layers)).
		Dur("took", time.Since(start)).
		Msg("dxf analyzed")

	if fileID == "" {
		return res, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache.Add(fileID, res)
	if a.prefs != nil {
		if err := a.prefs.SetJSON(store.CADAnalysisKey(fileID), res); err != nil {
			a.log.Warn().Err(err).Str("file", fileID).Msg("failed to persist cad analysis")
		}
	}
	return res, nil
}

func (a *Analyzer) track(hit bool, d time.Duration) {
	a.mu.Lock()
	t := a.tracker
	a.mu.Unlock()
	if t == nil {
		return
	}
	name := optimization.CacheMissMetric
	if hit {
		name = optimization.CacheHitMetric
	}
	t.Record(name, d, false)
}

func (a *Analyzer) cached(fileID string) (*CADAnalysis, bool) {
	if fileID == "" {
		return nil, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if res, ok := a.cache.Get(fileID); ok {
		return res, true
	}
	if a.prefs == nil {
		return nil, false
	}
	var res CADAnalysis
	if !a.prefs.GetJSON(store.CADAnalysisKey(fileID), &res) {
		return nil, false
	}
	a.cache.Add(fileID, &res)
	return &res, true
}
