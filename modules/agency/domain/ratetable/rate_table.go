package ratetable

import (
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/coverline/agency-sdk/pkg/serrors"
)

// ErrConfig wraps every rate-table validation failure. A malformed table is a
// startup fault, not a per-request error.
var ErrConfig = serrors.NewError("AGENCY_RATE_CONFIG", "invalid override rate table", "")

type entryYAML struct {
	Level int             `yaml:"level"`
	Rate  decimal.Decimal `yaml:"rate"`
}

type fileYAML struct {
	Default        []entryYAML         `yaml:"default"`
	ContractLevels map[int][]entryYAML `yaml:"contract_levels"`
}

// Table maps hierarchy distance to an override percentage. Levels are counted
// from the commission source: 1 is the direct upline. Per-contract-level
// schedules override the default schedule wholesale for beneficiaries at that
// contract level.
type Table struct {
	defaultSchedule   map[int]decimal.Decimal
	contractSchedules map[int]map[int]decimal.Decimal
	maxLevel          int
}

// Load reads and validates a rate table from a YAML file.
func Load(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return Parse(raw)
}

// Parse validates the YAML payload: at least one default level, levels >= 1
// and unique within a schedule, every rate within [0, 1].
func Parse(raw []byte) (*Table, error) {
	var file fileYAML
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	if len(file.Default) == 0 {
		return nil, fmt.Errorf("%w: default schedule is empty", ErrConfig)
	}

	t := &Table{
		contractSchedules: make(map[int]map[int]decimal.Decimal, len(file.ContractLevels)),
	}

	var err error
	if t.defaultSchedule, err = buildSchedule("default", file.Default); err != nil {
		return nil, err
	}
	for contractLevel, entries := range file.ContractLevels {
		if contractLevel < 1 {
			return nil, fmt.Errorf("%w: contract level %d is invalid", ErrConfig, contractLevel)
		}
		schedule, err := buildSchedule(fmt.Sprintf("contract level %d", contractLevel), entries)
		if err != nil {
			return nil, err
		}
		t.contractSchedules[contractLevel] = schedule
	}

	for level := range t.defaultSchedule {
		if level > t.maxLevel {
			t.maxLevel = level
		}
	}
	for _, schedule := range t.contractSchedules {
		for level := range schedule {
			if level > t.maxLevel {
				t.maxLevel = level
			}
		}
	}

	return t, nil
}

func buildSchedule(name string, entries []entryYAML) (map[int]decimal.Decimal, error) {
	one := decimal.NewFromInt(1)
	schedule := make(map[int]decimal.Decimal, len(entries))
	for _, e := range entries {
		if e.Level < 1 {
			return nil, fmt.Errorf("%w: %s schedule has level %d, levels start at 1", ErrConfig, name, e.Level)
		}
		if _, dup := schedule[e.Level]; dup {
			return nil, fmt.Errorf("%w: %s schedule defines level %d twice", ErrConfig, name, e.Level)
		}
		if e.Rate.IsNegative() || e.Rate.GreaterThan(one) {
			return nil, fmt.Errorf("%w: %s schedule level %d rate %s is outside [0, 1]", ErrConfig, name, e.Level, e.Rate)
		}
		schedule[e.Level] = e.Rate
	}
	return schedule, nil
}

// RateForLevel returns the override rate for a beneficiary at the given
// hierarchy distance. Levels beyond the configured maximum return zero, which
// terminates the distributor's ancestor walk.
func (t *Table) RateForLevel(level, contractLevel int) decimal.Decimal {
	if level < 1 {
		return decimal.Zero
	}
	if schedule, ok := t.contractSchedules[contractLevel]; ok {
		return schedule[level]
	}
	return t.defaultSchedule[level]
}

// MaxLevel is the deepest level any schedule configures.
func (t *Table) MaxLevel() int {
	return t.maxLevel
}

// Levels lists the configured default levels in ascending order, for
// diagnostics output.
func (t *Table) Levels() []int {
	out := make([]int, 0, len(t.defaultSchedule))
	for level := range t.defaultSchedule {
		out = append(out, level)
	}
	sort.Ints(out)
	return out
}
