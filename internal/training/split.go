package training

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
)

// DefaultTestRatio is used when a split request does not name one.
const DefaultTestRatio = 0.2

// DefaultSeed is used when a split request does not name one.
const DefaultSeed = "default"

// SplitParams configures a train/test partition.
type SplitParams struct {
	Seed      string
	TestRatio float64
}

// Validate ensures correctness.
func (p SplitParams) Validate() error {
	if p.Seed == "" {
		return fmt.Errorf("%w: seed required", ErrInvalidSplit)
	}
	if p.TestRatio <= 0 || p.TestRatio >= 1 {
		return fmt.Errorf("%w: test ratio must be between 0 and 1", ErrInvalidSplit)
	}
	return nil
}

// SplitResult lists the company ids on each side of the partition.
type SplitResult struct {
	Seed         string   `json:"seed"`
	TestRatio    float64  `json:"test_ratio"`
	Train        []string `json:"train"`
	Test         []string `json:"test"`
	TrainChurned int      `json:"train_churned"`
	TestChurned  int      `json:"test_churned"`
}

// Split partitions rows into train and test sets, stratified on the churn
// label so both sides keep the class balance. Assignment depends only on
// the seed and the company id; adding or changing feature columns later
// selects the same companies, so metrics stay comparable across runs.
func Split(rows []Row, params SplitParams) (SplitResult, error) {
	if err := params.Validate(); err != nil {
		return SplitResult{}, err
	}

	var churned, retained []Row
	for _, row := range rows {
		if row.Churned {
			churned = append(churned, row)
		} else {
			retained = append(retained, row)
		}
	}

	result := SplitResult{Seed: params.Seed, TestRatio: params.TestRatio}
	testChurned := assignStratum(churned, params, &result)
	assignStratum(retained, params, &result)
	result.TestChurned = testChurned
	result.TrainChurned = len(churned) - testChurned

	sort.Strings(result.Train)
	sort.Strings(result.Test)
	return result, nil
}

// assignStratum hashes every company, sends the lowest-scoring ceil(ratio*n)
// to the test side, and reports how many it sent.
func assignStratum(stratum []Row, params SplitParams, result *SplitResult) int {
	if len(stratum) == 0 {
		return 0
	}
	type scored struct {
		id    string
		score uint64
	}
	members := make([]scored, len(stratum))
	for i, row := range stratum {
		members[i] = scored{id: row.CompanyID, score: splitScore(params.Seed, row.CompanyID)}
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].score != members[j].score {
			return members[i].score < members[j].score
		}
		return members[i].id < members[j].id
	})

	testCount := int(math.Ceil(params.TestRatio * float64(len(members))))
	for i, member := range members {
		if i < testCount {
			result.Test = append(result.Test, member.id)
		} else {
			result.Train = append(result.Train, member.id)
		}
	}
	return testCount
}

func splitScore(seed, companyID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(companyID))
	return h.Sum64()
}
