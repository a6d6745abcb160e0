package identity

import (
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var syntheticPattern = regexp.MustCompile(`^dev_[0-9a-f]{8}$`)

type setLookup map[string]bool

func (s setLookup) Contains(id string) bool { return s[id] }

func TestSynthesize_Format(t *testing.T) {
	r := NewResolver(setLookup{})
	for i := 0; i < 100; i++ {
		assert.Regexp(t, syntheticPattern, r.Synthesize())
	}
}

func TestSynthesize_RerollsOnCollision(t *testing.T) {
	taken := setLookup{"dev_aaaaaaaa": true}
	seq := []string{
		"aaaaaaaa000000000000000000000000",
		"bbbbbbbb000000000000000000000000",
	}
	r := NewResolver(taken)
	r.newID = func() string {
		v := seq[0]
		seq = seq[1:]
		return v
	}

	assert.Equal(t, "dev_bbbbbbbb", r.Synthesize())
}

func TestSynthesize_FallsBackToFullLength(t *testing.T) {
	r := NewResolver(lookupFunc(func(id string) bool { return len(id) == len("dev_")+8 }))
	id := r.Synthesize()
	assert.Regexp(t, `^dev_[0-9a-f]{32}$`, id)
}

type lookupFunc func(string) bool

func (f lookupFunc) Contains(id string) bool { return f(id) }

func TestSynthesize_NoDuplicatesAcrossManyCalls(t *testing.T) {
	seen := make(map[string]bool)
	r := NewResolver(lookupFunc(func(id string) bool { return seen[id] }))
	for i := 0; i < 2000; i++ {
		id := r.Synthesize()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestForRegister(t *testing.T) {
	r := NewResolver(setLookup{})

	var b Binding
	id := r.ForRegister(&b, "")
	assert.Regexp(t, syntheticPattern, id)

	// empty register on a bound connection keeps the id
	assert.Equal(t, id, r.ForRegister(&b, ""))

	// explicit id rebinds
	assert.Equal(t, "phone-7", r.ForRegister(&b, "phone-7"))
	bound, ok := b.DeviceID()
	assert.True(t, ok)
	assert.Equal(t, "phone-7", bound)
}

func TestForSample_FirstResolutionWins(t *testing.T) {
	r := NewResolver(setLookup{})

	var b Binding
	assert.Equal(t, "A", r.ForSample(&b, "A"))
	assert.Equal(t, "A", r.ForSample(&b, "B"))
	assert.Equal(t, "A", r.ForSample(&b, ""))
}

func TestForSample_SynthesizesWhenUnclaimed(t *testing.T) {
	r := NewResolver(setLookup{})

	var b Binding
	id := r.ForSample(&b, "")
	assert.Regexp(t, syntheticPattern, id)
	assert.Equal(t, id, r.ForSample(&b, "other"))
}

func TestForSample_AfterRegisterUsesRegisteredID(t *testing.T) {
	r := NewResolver(setLookup{})

	var b Binding
	r.ForRegister(&b, "A")
	assert.Equal(t, "A", r.ForSample(&b, "B"))
}

func TestBinding_ConcurrentFirstResolution(t *testing.T) {
	r := NewResolver(setLookup{})
	var b Binding

	results := make([]string, 32)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.ForSample(&b, "")
		}(i)
	}
	wg.Wait()

	for _, id := range results {
		assert.Equal(t, results[0], id)
	}
}
