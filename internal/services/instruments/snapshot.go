package instruments

import (
	"fmt"
	"os"
	"strings"

	"TradeReview/internal/domain/models"
	domsvc "TradeReview/internal/domain/service"

	"gopkg.in/yaml.v3"
)

// Snapshot is reference data loaded once at startup. It is never mutated after
// construction, so request handlers share it without locking.
type Snapshot struct {
	bySymbol map[string]*models.Instrument
	count    int
}

type snapshotFile struct {
	Instruments []models.Instrument `yaml:"instruments"`
}

// Load reads a YAML snapshot from path.
func Load(path string) (*Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instruments: %w", err)
	}
	return Parse(b)
}

// Parse builds a snapshot from YAML bytes. Symbols and aliases are matched case-insensitively;
// a duplicate key is an error.
func Parse(b []byte) (*Snapshot, error) {
	var f snapshotFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse instruments: %w", err)
	}
	return New(f.Instruments)
}

func New(list []models.Instrument) (*Snapshot, error) {
	s := &Snapshot{bySymbol: make(map[string]*models.Instrument, len(list))}
	for i := range list {
		inst := list[i]
		inst.Symbol = strings.ToUpper(strings.TrimSpace(inst.Symbol))
		if inst.Symbol == "" {
			return nil, fmt.Errorf("instrument %d: empty symbol", i)
		}
		keys := append([]string{inst.Symbol}, inst.Aliases...)
		for _, k := range keys {
			k = normalize(k)
			if k == "" {
				continue
			}
			if prev, ok := s.bySymbol[k]; ok && prev.Symbol != inst.Symbol {
				return nil, fmt.Errorf("instrument key %q maps to both %s and %s", k, prev.Symbol, inst.Symbol)
			}
			s.bySymbol[k] = &inst
		}
		s.count++
	}
	return s, nil
}

// Resolve returns a copy of the canonical instrument for ref.
func (s *Snapshot) Resolve(ref string) (*models.Instrument, bool) {
	inst, ok := s.bySymbol[normalize(ref)]
	if !ok {
		return nil, false
	}
	c := *inst
	return &c, true
}

func (s *Snapshot) Len() int { return s.count }

// normalize accepts "nse:reliance" and "RELIANCE" alike.
func normalize(ref string) string {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	if i := strings.IndexByte(ref, ':'); i >= 0 {
		ref = ref[i+1:]
	}
	return ref
}

var _ domsvc.InstrumentResolver = (*Snapshot)(nil)
